// Package privacy masks personal data before it reaches logs: client
// addresses, ledger payment addresses and student identifiers.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP reduces an address to its network: /24 for IPv4 (including
// IPv4-mapped IPv6) and /48 for IPv6. Empty input yields "unknown" and
// unparseable input yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap().WithZone("")

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskAddress keeps the bech32 prefix, the first payload characters and the
// checksum tail of a ledger address, enough to tell wallets apart in logs.
func MaskAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	sep := strings.LastIndexByte(addr, '1')
	if sep <= 0 || len(addr)-sep-1 < 12 {
		return mask(addr, 2)
	}
	hrp, data := addr[:sep+1], addr[sep+1:]
	return hrp + data[:6] + "..." + data[len(data)-4:]
}

// MaskIdentifier keeps the last keep characters of a subject identifier.
func MaskIdentifier(id string, keep int) string {
	return mask(strings.TrimSpace(id), keep)
}

func mask(s string, keep int) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if keep < 0 {
		keep = 0
	}
	if len(r) <= keep {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-keep) + string(r[len(r)-keep:])
}
