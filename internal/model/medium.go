package model

import "strings"

// Medium is the coarse connection class derived from the producer's type
// string, e.g. "802-3-ethernet" or "802-11-wireless".
type Medium int

const (
	MediumEthernet Medium = iota
	MediumVPN
	MediumWiFi
	MediumOther
)

func ParseMedium(s string) Medium {

	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "ethernet"):
		return MediumEthernet
	case strings.Contains(s, "wireless"), strings.Contains(s, "wifi"):
		return MediumWiFi
	case strings.Contains(s, "vpn"), strings.Contains(s, "wireguard"):
		return MediumVPN
	}
	return MediumOther
}

func (m Medium) String() string {
	switch m {
	case MediumEthernet:
		return "ethernet"
	case MediumVPN:
		return "vpn"
	case MediumWiFi:
		return "wifi"
	}
	return "other"
}
