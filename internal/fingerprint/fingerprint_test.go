package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByPort_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, "ssh", ByPort(22))
	assert.Equal(t, "postgresql", ByPort(5432))
	assert.Equal(t, "", ByPort(59999))
}

func TestIdentifyOS(t *testing.T) {
	assert.Equal(t, "Linux", IdentifyOS(map[int]string{22: "SSH-2.0-OpenSSH_8.9p1 Ubuntu"}))
	assert.Equal(t, "Windows", IdentifyOS(map[int]string{80: "Microsoft-IIS/10.0"}))
	assert.Equal(t, "", IdentifyOS(map[int]string{80: "nondescript banner"}))
}
