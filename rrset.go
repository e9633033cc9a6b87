package resolvd

import (
	"sort"

	"github.com/miekg/dns"
)

// CacheKey identifies a cache slot. Equality is case-insensitive on Owner
// (spec.md §3).
type CacheKey struct {
	Owner string
	Type  uint16
	Class uint16
}

func cacheKeyFor(q Question) CacheKey {
	return CacheKey{Owner: canonicalName(q.Name), Type: q.Type, Class: q.Class}
}

// rrsetKey groups records sharing (owner,type,class), the smallest unit a
// signature covers (spec.md §3).
type rrsetKey struct {
	owner string
	rtype uint16
	class uint16
}

// groupRRsets partitions a flat record list into RRSets, each internally
// deduplicated and ordered in canonical wire form for signature input
// (RFC 4034 §6.3). Mirrors the teacher's extractAndMapRRSet but keyed on the
// full (owner,type,class) tuple instead of type alone.
func groupRRsets(rrs []dns.RR) map[rrsetKey][]dns.RR {
	out := make(map[rrsetKey][]dns.RR)
	for _, r := range rrs {
		if r.Header().Rrtype == dns.TypeOPT {
			continue
		}
		k := rrsetKey{
			owner: canonicalName(r.Header().Name),
			rtype: r.Header().Rrtype,
			class: r.Header().Class,
		}
		out[k] = append(out[k], r)
	}
	for k := range out {
		out[k] = canonicalRRSet(out[k])
	}
	return out
}

// canonicalRRSet orders rdata lexicographically over wire bytes and drops
// duplicates, per RFC 4034 §6.3.
func canonicalRRSet(rrs []dns.RR) []dns.RR {
	seen := make(map[string]struct{}, len(rrs))
	out := make([]dns.RR, 0, len(rrs))
	for _, r := range rrs {
		cp := dns.Copy(r)
		cp.Header().Name = canonicalName(cp.Header().Name)
		wire, err := cp.Pack(nil)
		_ = err
		key := string(wire)
		if err != nil {
			key = cp.String()
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, ei := out[i].Pack(nil)
		wj, ej := out[j].Pack(nil)
		if ei != nil || ej != nil {
			return out[i].String() < out[j].String()
		}
		return string(wi) < string(wj)
	})
	return out
}

// extractRRSet returns every record of any of the given types, optionally
// filtered by owner name. Mirrors solvere's extractRRSet helper.
func extractRRSet(in []dns.RR, name string, types ...uint16) []dns.RR {
	tset := make(map[uint16]struct{}, len(types))
	for _, t := range types {
		tset[t] = struct{}{}
	}
	out := make([]dns.RR, 0)
	for _, r := range in {
		if _, ok := tset[r.Header().Rrtype]; !ok {
			continue
		}
		if name != "" && !sameName(name, r.Header().Name) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// extractAndMapRRSet is solvere's extractAndMapRRSet, used to pick apart
// NSEC vs NSEC3 denial sets without caring which is present.
func extractAndMapRRSet(in []dns.RR, name string, types ...uint16) map[uint16][]dns.RR {
	out := make(map[uint16][]dns.RR, len(types))
	for _, t := range types {
		out[t] = nil
	}
	for _, r := range in {
		rt := r.Header().Rrtype
		if _, ok := out[rt]; !ok {
			continue
		}
		if name != "" && !sameName(name, r.Header().Name) {
			continue
		}
		out[rt] = append(out[rt], r)
	}
	return out
}

// rrsetContains reports whether any record of rrtype is present.
func rrsetContains(rrset []dns.RR, rrtype uint16) bool {
	for _, r := range rrset {
		if r.Header().Rrtype == rrtype {
			return true
		}
	}
	return false
}

// typeOf filters records whose concrete Go type matches T's RR type tag,
// the cache's generic Get<T> contract (spec.md §4.1), applied at the
// caller's boundary rather than inside the cache itself (spec.md §9).
func typeOf[T dns.RR](rrs []dns.RR) []T {
	out := make([]T, 0, len(rrs))
	for _, r := range rrs {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
