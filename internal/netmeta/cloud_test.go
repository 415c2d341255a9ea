package netmeta

import (
	"testing"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestClassifyNetwork(t *testing.T) {
	d := NewDetector()

	assert.Equal(t, types.NetworkTypeOnPremises, d.ClassifyNetwork([]string{"10.0.0.5", "10.0.0.6"}))
	assert.Equal(t, types.NetworkTypeCloud, d.ClassifyNetwork([]string{"3.1.2.3"}))
	assert.Equal(t, types.NetworkTypeHybrid, d.ClassifyNetwork([]string{"10.0.0.5", "3.1.2.3"}))
	assert.Equal(t, types.NetworkTypeUnknown, d.ClassifyNetwork(nil))
	assert.Equal(t, types.NetworkTypeUnknown, d.ClassifyNetwork([]string{"8.8.8.8"}))
}
