// Package fingerprint supplies a well-known port→service lookup, used by
// the Scanner Driver to fill in a service name when nmap's own
// service-detection (-sV) reported none, and a crude OS guess from banner
// text (IdentifyOS), which the scan pipeline does not call.
package fingerprint

import "strings"

// ByPort returns the well-known service name for port, or "" if unknown.
func ByPort(port int) string {
	return wellKnownPorts[port]
}

var wellKnownPorts = map[int]string{
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	143:   "imap",
	443:   "https",
	445:   "smb",
	465:   "smtps",
	587:   "smtp-submission",
	993:   "imaps",
	995:   "pop3s",
	1433:  "mssql",
	1521:  "oracle",
	3306:  "mysql",
	3389:  "rdp",
	5432:  "postgresql",
	5672:  "amqp",
	6379:  "redis",
	8080:  "http-alt",
	8443:  "https-alt",
	9200:  "elasticsearch",
	9300:  "elasticsearch-transport",
	15672: "rabbitmq-management",
	27017: "mongodb",
}

// IdentifyOS makes a coarse OS guess from a set of banner strings keyed by
// port. When several banners name different systems, the result depends on
// map iteration order.
func IdentifyOS(banners map[int]string) string {
	for _, banner := range banners {
		lower := strings.ToLower(banner)
		switch {
		case containsAny(lower, "windows", "microsoft", "iis"):
			return "Windows"
		case containsAny(lower, "ubuntu", "debian", "centos", "rhel", "fedora", "linux"):
			return "Linux"
		case containsAny(lower, "darwin", "macos"):
			return "macOS"
		case containsAny(lower, "freebsd"):
			return "FreeBSD"
		}
	}
	return ""
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
