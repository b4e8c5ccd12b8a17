package verify

import "net/netip"

// SameNetwork reports whether two addresses are judged to be on the same
// network. Exact string match passes; two IPv4 addresses pass within the
// same /24; two IPv6 addresses within the same /64. Mixed families and
// unparseable addresses fail closed.
func SameNetwork(onFile, caller string) bool {
	if onFile == "" || caller == "" {
		return false
	}
	if onFile == caller {
		return true
	}
	a, err := netip.ParseAddr(onFile)
	if err != nil {
		return false
	}
	b, err := netip.ParseAddr(caller)
	if err != nil {
		return false
	}
	var bits int
	switch {
	case a.Is4() && b.Is4():
		bits = 24
	case a.Is6() && b.Is6() && !a.Is4In6() && !b.Is4In6():
		bits = 64
	default:
		return false
	}
	ap, err := a.Prefix(bits)
	if err != nil {
		return false
	}
	return ap.Contains(b)
}
