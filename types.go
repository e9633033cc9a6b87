package resolvd

import (
	"time"

	"github.com/miekg/dns"
)

// Question identifies a single (name, type, class) lookup. Class is always
// dns.ClassINET in practice but is kept explicit to match the spec's data
// model (spec.md §3).
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

func (q Question) canonical() Question {
	return Question{Name: canonicalName(q.Name), Type: q.Type, Class: q.Class}
}

// Verdict is the DNSSEC validation verdict attached to a cache entry or
// returned from Resolve, per RFC 4035 semantics (spec.md §3, §4.4).
type Verdict int

const (
	Unsigned Verdict = iota
	Secure
	Insecure
	Bogus
	Indeterminate
)

func (v Verdict) String() string {
	switch v {
	case Secure:
		return "Secure"
	case Insecure:
		return "Insecure"
	case Bogus:
		return "Bogus"
	case Indeterminate:
		return "Indeterminate"
	default:
		return "Unsigned"
	}
}

// Nameserver describes an upstream authoritative server candidate, resolved
// either from cached glue or recursively.
type Nameserver struct {
	Name string
	Addr string
	Zone string

	// lastSuccess is not written or read anywhere in this package: the
	// referral engine's authority selection does not take a server's recent
	// successful responses into account.
	lastSuccess time.Time

	// candidates holds every glue address available for Name at selection
	// time, so the dispatcher can fan out across them (spec.md §4.3 bounded
	// parallel fan-out) instead of being limited to the single Addr chosen
	// as the preferred candidate.
	candidates []string
}

// Answer holds the sections of a resolved response, mirroring the teacher's
// own Answer type (solvere/resolver.go) with an explicit verdict field in
// place of a bare bool.
type Answer struct {
	Answer     []dns.RR
	Authority  []dns.RR
	Additional []dns.RR
	Rcode      int
	Verdict    Verdict
}

// QueryContext is created once per top-level Resolve call and threaded
// through every referral/alias hop (spec.md §3, §9: "shared budget and
// visited sets live in a single owned value per resolve, not as re-entrant
// stack frames").
type QueryContext struct {
	Original      Question
	DepthBudget   int
	RequireDNSSEC bool
	Deadline      time.Time

	visitedAliases map[Question]struct{}
	visitedQueries map[visitedKey]struct{}
	visitedServers []Nameserver
}

type visitedKey struct {
	server string
	name   string
	qtype  uint16
}

func newQueryContext(q Question, depthBudget int, requireDNSSEC bool, deadline time.Time) *QueryContext {
	return &QueryContext{
		Original:       q,
		DepthBudget:    depthBudget,
		RequireDNSSEC:  requireDNSSEC,
		Deadline:       deadline,
		visitedAliases: make(map[Question]struct{}),
		visitedQueries: make(map[visitedKey]struct{}),
	}
}

func (qc *QueryContext) markAlias(q Question) (loop bool) {
	q = q.canonical()
	if _, present := qc.visitedAliases[q]; present {
		return true
	}
	qc.visitedAliases[q] = struct{}{}
	return false
}

func (qc *QueryContext) markVisited(server string, q Question) (cycle bool) {
	k := visitedKey{server: server, name: canonicalName(q.Name), qtype: q.Type}
	if _, present := qc.visitedQueries[k]; present {
		return true
	}
	qc.visitedQueries[k] = struct{}{}
	return false
}

func (qc *QueryContext) expired(now time.Time) bool {
	return !qc.Deadline.IsZero() && now.After(qc.Deadline)
}

func (qc *QueryContext) recordServer(ns Nameserver) {
	qc.visitedServers = append(qc.visitedServers, ns)
}
