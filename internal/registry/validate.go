package registry

// dnsLabelMaxLen mirrors the DNS-label length limit used by
// internal/eventbus's topic-naming fast path, which depends on
// Application names holding this shape (§3, §4.4).
const dnsLabelMaxLen = 63

// isDNSLabel reports whether s matches DNS-label syntax: lowercase
// alphanumerics and hyphens, starting and ending with an alphanumeric,
// at most dnsLabelMaxLen characters.
func isDNSLabel(s string) bool {
	if len(s) == 0 || len(s) > dnsLabelMaxLen {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(s)-1:
		default:
			return false
		}
	}
	return true
}
