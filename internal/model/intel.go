package model

// IPCategory classifies the network origin of a vote attempt.
type IPCategory string

const (
	IPResidential IPCategory = "residential"
	IPDatacenter  IPCategory = "datacenter"
	IPVPNProxy    IPCategory = "vpn_proxy"
	IPTor         IPCategory = "tor"
	IPUnknown     IPCategory = "unknown"
)

// IPIntelligence is the cached classification of a source address.
// Confidence 0 with category unknown is the safe default when the reputation
// source times out or errors; the pipeline proceeds on it.
type IPIntelligence struct {
	Category   IPCategory `json:"category"`
	Confidence float64    `json:"confidence"`
}

// UnknownIntel is the safe default classification.
func UnknownIntel() IPIntelligence {
	return IPIntelligence{Category: IPUnknown, Confidence: 0}
}
