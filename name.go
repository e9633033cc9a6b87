package resolvd

import "github.com/miekg/dns"

// canonicalName lowercases and FQDN-qualifies a name for use as a cache key
// or comparison value. DomainName equality in this package is always
// case-insensitive on the owner (spec.md §3).
func canonicalName(name string) string {
	return dns.CanonicalName(name)
}

// sameName reports whether two names are equal under canonicalization.
func sameName(a, b string) bool {
	return canonicalName(a) == canonicalName(b)
}

// parentZones returns the ancestor zones of name, from the immediate parent
// up to the root, by iteratively stripping the leftmost label. It is used by
// the referral engine's SelectZone step to find the deepest known zone cut.
func parentZones(name string) []string {
	name = canonicalName(name)
	if name == "." {
		return nil
	}
	var out []string
	for off, end := dns.NextLabel(name, 0); !end; off, end = dns.NextLabel(name, off) {
		out = append(out, name[off:])
	}
	out = append(out, ".")
	return out
}

// isSubdomain reports whether child is equal to or a descendant of zone.
func isSubdomain(child, zone string) bool {
	return dns.IsSubDomain(canonicalName(zone), canonicalName(child))
}

// labelDepth returns the number of labels in name, used to pick the
// "longest ancestor with a cached NS RRSet" zone cut.
func labelDepth(name string) int {
	return dns.CountLabel(canonicalName(name))
}
