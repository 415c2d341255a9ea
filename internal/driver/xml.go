package driver

import (
	"encoding/xml"
	"io"
	"sort"

	"github.com/eidolon-project/eidolon/internal/types"
)

// nmapHost mirrors the subset of nmap's per-host XML element this package
// cares about. Decoding one of these per <host> start token, rather than the
// whole <nmaprun> document, keeps memory bounded regardless of scan size.
type nmapHost struct {
	XMLName xml.Name `xml:"host"`
	Status  struct {
		State string `xml:"state,attr"`
	} `xml:"status"`
	Addresses []struct {
		Addr     string `xml:"addr,attr"`
		AddrType string `xml:"addrtype,attr"`
		Vendor   string `xml:"vendor,attr"`
	} `xml:"address"`
	Hostnames struct {
		Hostname []struct {
			Name string `xml:"name,attr"`
		} `xml:"hostname"`
	} `xml:"hostnames"`
	Ports struct {
		Port []struct {
			PortID   int    `xml:"portid,attr"`
			Protocol string `xml:"protocol,attr"`
			State    struct {
				State string `xml:"state,attr"`
			} `xml:"state"`
			Service struct {
				Name    string `xml:"name,attr"`
				Product string `xml:"product,attr"`
				Version string `xml:"version,attr"`
			} `xml:"service"`
		} `xml:"port"`
	} `xml:"ports"`
	Uptime struct {
		Seconds int64 `xml:"seconds,attr"`
	} `xml:"uptime"`
	Times struct {
		SRTT int64 `xml:"srtt,attr"`
	} `xml:"times"`
	OS struct {
		OSMatch []struct {
			Name     string `xml:"name,attr"`
			Accuracy int    `xml:"accuracy,attr"`
		} `xml:"osmatch"`
	} `xml:"os"`
}

func (h nmapHost) ip() string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" || a.AddrType == "" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}

func (h nmapHost) mac() string {
	for _, a := range h.Addresses {
		if a.AddrType == "mac" {
			return a.Addr
		}
	}
	return ""
}

func (h nmapHost) vendor() string {
	for _, a := range h.Addresses {
		if a.AddrType == "mac" && a.Vendor != "" {
			return a.Vendor
		}
	}
	return ""
}

func (h nmapHost) hostname() string {
	if len(h.Hostnames.Hostname) > 0 {
		return h.Hostnames.Hostname[0].Name
	}
	return ""
}

func (h nmapHost) osMatches() []types.OSMatch {
	out := make([]types.OSMatch, 0, len(h.OS.OSMatch))
	for _, m := range h.OS.OSMatch {
		out = append(out, types.OSMatch{Name: m.Name, Accuracy: m.Accuracy})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accuracy > out[j].Accuracy })
	return out
}

func (h nmapHost) ports() []types.Port {
	out := make([]types.Port, 0, len(h.Ports.Port))
	for _, p := range h.Ports.Port {
		out = append(out, identifyFallbackService(types.Port{
			Port:    p.PortID,
			Proto:   p.Protocol,
			State:   p.State.State,
			Service: p.Service.Name,
			Product: p.Service.Product,
			Version: p.Service.Version,
		}))
	}
	return out
}

// parseNmapXML walks r token by token, decoding exactly one <host> element
// at a time and emitting the ScanEvent(s) it implies for stage. A <host>
// element that fails to decode is skipped and reported as a log_line; the
// token loop continues with the rest of the document. It returns a non-nil
// error only when the underlying token stream itself is malformed (e.g. a
// document truncated outside any <host>); a clean EOF is not an error.
func parseNmapXML(r io.Reader, stage types.Stage, plan *types.ScanPlan, send func(types.ScanEvent)) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "host" {
			continue
		}

		var h nmapHost
		if err := dec.DecodeElement(&h, &start); err != nil {
			send(types.ScanEvent{
				Kind:    types.EventLogLine,
				Level:   "warn",
				Message: "skipping malformed host element: " + err.Error(),
			})
			continue
		}

		emitHostEvents(h, stage, plan, send)
	}
}

func emitHostEvents(h nmapHost, stage types.Stage, plan *types.ScanPlan, send func(types.ScanEvent)) {
	ip := h.ip()
	if ip == "" {
		return
	}
	cidr := ""
	if plan != nil {
		cidr = plan.CIDRForHost(ip)
	}

	switch stage {
	case types.StagePing:
		info := types.HostInfo{
			IP:         ip,
			Hostname:   h.hostname(),
			MAC:        h.mac(),
			Vendor:     h.vendor(),
			CIDR:       cidr,
			RTTSrttUs:  h.Times.SRTT,
			DNSResolve: h.hostname() != "",
		}
		if h.Status.State == "up" {
			send(types.ScanEvent{Kind: types.EventHostUp, Host: info})
		} else {
			send(types.ScanEvent{Kind: types.EventHostDown, Host: info})
		}

	case types.StagePort:
		ports := h.ports()
		info := types.HostInfo{
			IP:        ip,
			Hostname:  h.hostname(),
			CIDR:      cidr,
			Ports:     ports,
			Uptime:    h.Uptime.Seconds,
			RTTSrttUs: h.Times.SRTT,
		}
		send(types.ScanEvent{Kind: types.EventPortState, Host: info})

		if matches := h.osMatches(); len(matches) > 0 {
			send(types.ScanEvent{
				Kind: types.EventOSMatch,
				Host: types.HostInfo{IP: ip, CIDR: cidr, OSMatches: matches},
			})
		}
	}
}
