package resolvd

import "github.com/miekg/dns"

// NSEC3-specific helpers. The hash-interval matching itself is delegated to
// dns.NSEC3's own Match/Cover (used via the dns.Denialer interface in
// nsec.go, exactly as the teacher's solvere/nsec.go does) — this file only
// adds the opt-out semantics RFC 5155 layers on top, grounded on
// 0xERR0R/blocky/resolver/dnssec/nsec3.go's opt-out handling.

const nsec3OptOutFlag = 0x01

func isOptOut(rr dns.RR) bool {
	n3, ok := rr.(*dns.NSEC3)
	if !ok {
		return false
	}
	return n3.Flags&nsec3OptOutFlag != 0
}

// verifyInsecureDelegation proves that a child zone is unsigned: a direct
// NSEC/NSEC3 match with the DS bit absent, or, for NSEC3, an opt-out
// covering record over the next-closer name (RFC 5155 §8.9, RFC 7129).
// verifyDelegation (nsec.go) already implements both cases; this is the
// name the DNSSEC validator's DenialInsecureDelegation path calls through.
func verifyInsecureDelegation(delegation string, nsec []dns.RR) error {
	return verifyDelegation(delegation, nsec)
}

// isNSEC3Set reports whether a denial set uses NSEC3 rather than NSEC.
func isNSEC3Set(nsec []dns.RR) bool {
	for _, rr := range nsec {
		if rr.Header().Rrtype == dns.TypeNSEC3 {
			return true
		}
	}
	return false
}
