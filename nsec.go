package resolvd

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// The functions in this file implement RFC 5155 §8's authenticated-denial
// checks against either NSEC or NSEC3 records, sharing logic via
// dns.Denialer exactly as the teacher's solvere/nsec.go does. NSEC3-specific
// hash-interval plumbing lives in nsec3.go.

func typesSet(set []uint16, types ...uint16) bool {
	tm := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		tm[t] = struct{}{}
	}
	for _, t := range set {
		if _, present := tm[t]; present {
			return true
		}
	}
	return false
}

func asDenialer(rr dns.RR) dns.Denialer {
	switch ns := rr.(type) {
	case *dns.NSEC:
		return dns.Denialer(ns)
	case *dns.NSEC3:
		return dns.Denialer(ns)
	default:
		return nil
	}
}

func typeBitmapOf(rr dns.RR) []uint16 {
	switch ns := rr.(type) {
	case *dns.NSEC:
		return ns.TypeBitMap
	case *dns.NSEC3:
		return ns.TypeBitMap
	default:
		return nil
	}
}

// findClosestEncloser finds the Closest Encloser and Next Closer names for
// name in a set of NSEC/NSEC3 records (RFC 5155 §8.3).
func findClosestEncloser(name string, nsec []dns.RR) (closest, nextCloser string) {
	labelIndices := dns.Split(name)
	for i := 0; i < len(labelIndices); i++ {
		z := name[labelIndices[i]:]
		for _, rr := range nsec {
			d := asDenialer(rr)
			if d == nil {
				continue
			}
			if d.Match(z) {
				if i == 0 {
					return z, name
				}
				return z, name[labelIndices[i-1]:]
			}
		}
	}
	return "", ""
}

func findMatching(name string, nsec []dns.RR) ([]uint16, error) {
	var types []uint16
	found := false
	for _, rr := range nsec {
		d := asDenialer(rr)
		if d == nil {
			continue
		}
		if d.Match(name) {
			if found {
				return nil, ErrNSECMultipleCoverage
			}
			types = typeBitmapOf(rr)
			found = true
		}
	}
	if !found {
		return nil, ErrNSECMissingCoverage
	}
	return types, nil
}

func findCoverer(name string, nsec []dns.RR) ([]uint16, error) {
	rr, err := findCovererRR(name, nsec)
	if err != nil {
		return nil, err
	}
	return typeBitmapOf(rr), nil
}

// findCovererRR is findCoverer but returns the covering record itself, so a
// caller can inspect NSEC3-specific flags (the opt-out bit) on it.
func findCovererRR(name string, nsec []dns.RR) (dns.RR, error) {
	var match dns.RR
	found := false
	for _, rr := range nsec {
		d := asDenialer(rr)
		if d == nil {
			continue
		}
		if d.Cover(name) {
			if found {
				return nil, ErrNSECMultipleCoverage
			}
			match = rr
			found = true
		}
	}
	if !found {
		return nil, ErrNSECMissingCoverage
	}
	return match, nil
}

// verifyNameError proves a NXDOMAIN response via RFC 5155 §8.4: the
// closest encloser exists, the name itself is covered, and the wildcard at
// the closest encloser is covered too.
func verifyNameError(q Question, nsec []dns.RR) error {
	ce, _ := findClosestEncloser(q.Name, nsec)
	if ce == "" {
		return ErrNSECMissingCoverage
	}
	if _, err := findCoverer(q.Name, nsec); err != nil {
		return err
	}
	if _, err := findCoverer(fmt.Sprintf("*.%s", ce), nsec); err != nil {
		return err
	}
	return nil
}

// verifyNODATA verifies NSEC/NSEC3 records from a NOERROR response with an
// empty Answer section (RFC 5155 §8.5-8.7).
func verifyNODATA(q Question, nsec []dns.RR) error {
	types, err := findMatching(q.Name, nsec)
	if err == nil {
		if typesSet(types, q.Type, dns.TypeCNAME) {
			return ErrNSECTypeExists
		}
		if strings.HasPrefix(q.Name, "*.") {
			ce, _ := findClosestEncloser(q.Name, nsec)
			if ce == "" {
				return ErrNSECMissingCoverage
			}
			matchTypes, merr := findMatching(fmt.Sprintf("*.%s", ce), nsec)
			if merr != nil {
				return merr
			}
			if typesSet(matchTypes, q.Type, dns.TypeCNAME) {
				return ErrNSECTypeExists
			}
		}
		return nil
	}

	if q.Type != dns.TypeDS {
		return err
	}

	// RFC 5155 §8.6: opt-out DS denial via closest-encloser/next-closer proof.
	ce, nc := findClosestEncloser(q.Name, nsec)
	if ce == "" {
		return ErrNSECMissingCoverage
	}
	if _, err := findCoverer(nc, nsec); err != nil {
		return err
	}
	return nil
}

// verifyDelegation proves an unsigned (Insecure) delegation, per RFC 5155
// §8.9: either the delegation's NSEC/NSEC3 owner matches and lacks a DS bit
// (with NS set), or its next-closer name is covered by an opt-out NSEC3
// record (RFC 5155 §7.2.1, RFC 7129).
func verifyDelegation(delegation string, nsec []dns.RR) error {
	types, err := findMatching(delegation, nsec)
	if err != nil {
		ce, nc := findClosestEncloser(delegation, nsec)
		if ce == "" {
			return ErrNSECMissingCoverage
		}
		coverer, cerr := findCovererRR(nc, nsec)
		if cerr != nil {
			return cerr
		}
		if !isNSEC3Set(nsec) || !isOptOut(coverer) {
			return ErrNSECBadDelegation
		}
		return nil
	}
	if !typesSet(types, dns.TypeNS) {
		return ErrNSECNSMissing
	}
	if typesSet(types, dns.TypeDS, dns.TypeSOA) {
		return ErrNSECBadDelegation
	}
	return nil
}
