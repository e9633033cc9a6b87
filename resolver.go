package resolvd

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
	"github.com/mroth/weightedrand"
	"github.com/sirupsen/logrus"

	"github.com/arnegraf/resolvd/hints"
)

// QueryLog describes a single query to an upstream nameserver (or a cache
// hit standing in for one), kept from the teacher's solvere/resolver.go
// QueryLog type and emitted through logrus instead of hand-marshaled JSON.
type QueryLog struct {
	Query    Question
	NS       *Nameserver
	Rcode    int
	CacheHit bool
	Verdict  Verdict
	Latency  time.Duration
	Error    string
	Referral bool
}

func (ql *QueryLog) fields() logrus.Fields {
	f := logrus.Fields{
		"qname": ql.Query.Name, "qtype": typeString(ql.Query.Type),
		"rcode": dns.RcodeToString[ql.Rcode], "cache_hit": ql.CacheHit,
		"verdict": ql.Verdict.String(), "latency": durationField(ql.Latency),
		"referral": ql.Referral,
	}
	if ql.NS != nil {
		f["ns_addr"] = ql.NS.Addr
		f["ns_zone"] = ql.NS.Zone
	}
	if ql.Error != "" {
		f["error"] = ql.Error
	}
	return f
}

// LookupLog describes one complete iterative resolution, kept from the
// teacher's LookupLog type, with the zone-cut chain visited appended.
type LookupLog struct {
	Query      Question
	Verdict    Verdict
	Started    time.Time
	Latency    time.Duration
	Rcode      int
	Composites []*QueryLog
}

// ReferralEngine is the referral engine (C3): it walks the delegation chain
// from the root down to an authoritative answer, chasing CNAME/DNAME
// aliases and validating each hop's DNSSEC chain along the way. Grounded on
// the teacher's RecursiveResolver (solvere/resolver.go), generalized with a
// depth/visited budget (QueryContext) in place of the teacher's bare
// MaxReferrals loop counter and BUG(roland)-stubbed alias chasing.
type ReferralEngine struct {
	cfg       *Config
	dispatch  *Dispatcher
	cache     *Cache
	validator *Validator
	clk       clock.Clock
	log       logrus.FieldLogger

	rootNS []Nameserver
}

// NewReferralEngine builds a ReferralEngine. Root hints come from cfg if
// set, otherwise from the built-in hints package (solvere/cmd/solvere's
// missing "solvere/hints" import, filled in here).
func NewReferralEngine(cfg *Config, dispatch *Dispatcher, cache *Cache, validator *Validator, clk clock.Clock, log logrus.FieldLogger) (*ReferralEngine, error) {
	if clk == nil {
		clk = clock.Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	var hintRRs []dns.RR
	if len(cfg.RootHints) > 0 {
		for _, h := range cfg.RootHints {
			rr, err := dns.NewRR(h)
			if err != nil {
				return nil, newResolverError(KindConfigError, ".", err)
			}
			hintRRs = append(hintRRs, rr)
		}
	} else {
		hintRRs = hints.RootNameservers()
	}

	re := &ReferralEngine{cfg: cfg, dispatch: dispatch, cache: cache, validator: validator, clk: clk, log: log}

	addrs := extractRRSet(hintRRs, "", dns.TypeA)
	if cfg.UseIPv6 {
		addrs = append(addrs, extractRRSet(hintRRs, "", dns.TypeAAAA)...)
	}
	for _, a := range addrs {
		switch r := a.(type) {
		case *dns.A:
			re.rootNS = append(re.rootNS, Nameserver{Name: a.Header().Name, Addr: r.A.String(), Zone: "."})
		case *dns.AAAA:
			re.rootNS = append(re.rootNS, Nameserver{Name: a.Header().Name, Addr: r.AAAA.String(), Zone: "."})
		}
	}
	if len(re.rootNS) == 0 {
		return nil, newResolverError(KindConfigError, ".", fmt.Errorf("resolvd: no usable root nameserver addresses"))
	}
	return re, nil
}

// Resolve iteratively resolves q, chasing referrals and aliases, validating
// DNSSEC along the way when requireDNSSEC is set or a chain is discoverable
// (spec.md §4.3, §4.4). All budget/visited-set state lives in one
// QueryContext owned by this call (spec.md §9).
func (re *ReferralEngine) Resolve(ctx context.Context, q Question, requireDNSSEC bool) (*Answer, *LookupLog, error) {
	q = q.canonical()
	now := re.clk.Now().UTC()
	deadline := now.Add(re.cfg.ResolveTimeout)
	qc := newQueryContext(q, re.cfg.MaxReferrals, requireDNSSEC || re.cfg.RequireDNSSEC, deadline)

	corrID := uuid.New().String()
	log := re.log.WithFields(logrus.Fields{"correlation_id": corrID}).WithFields(questionFields(q))
	ll := &LookupLog{Query: q, Started: now}
	defer func() { ll.Latency = re.clk.Now().UTC().Sub(ll.Started) }()

	current := q
	var parentDSSet []dns.RR
	authority := re.pickRootAuthority()

	for hop := 0; ; hop++ {
		if qc.expired(re.clk.Now().UTC()) {
			return nil, ll, newResolverError(KindTimeout, current.Name, ErrCancelled)
		}
		if hop >= qc.DepthBudget {
			return nil, ll, newResolverError(KindDepthExceeded, current.Name, ErrDepthExceeded)
		}
		select {
		case <-ctx.Done():
			return nil, ll, newResolverError(KindCancelled, current.Name, ctx.Err())
		default:
		}
		if cycle := qc.markVisited(authority.Addr, current); cycle {
			return nil, ll, newResolverError(KindLoopDetected, current.Name, ErrAliasLoop)
		}
		qc.recordServer(*authority)

		msg, verdict, qlog, err := re.queryAuthenticated(ctx, qc, authority, current, parentDSSet)
		ll.Composites = append(ll.Composites, qlog)
		if err != nil {
			log.WithFields(qlog.fields()).WithError(err).Debug("hop failed")
			return nil, ll, err
		}
		log.WithFields(qlog.fields()).Debug("hop complete")
		ll.Verdict = verdict
		ll.Rcode = msg.Rcode

		if msg.Rcode == dns.RcodeNameError {
			if err := re.validateDenial(DenialNXDomain, current, msg, verdict); err != nil {
				return nil, ll, newResolverError(KindBogus, current.Name, err)
			}
			answer := &Answer{Authority: msg.Ns, Additional: msg.Extra, Rcode: msg.Rcode, Verdict: verdict}
			return nil, ll, newNegativeResolverError(KindNameError, current.Name, answer)
		}
		if msg.Rcode != dns.RcodeSuccess {
			return nil, ll, newResolverError(KindServerFailure, current.Name, fmt.Errorf("resolvd: %s", dns.RcodeToString[msg.Rcode]))
		}

		if alias, chased := chaseAlias(current, msg.Answer); chased {
			if loop := qc.markAlias(current); loop {
				return nil, ll, newResolverError(KindLoopDetected, current.Name, ErrAliasLoop)
			}
			current = Question{Name: alias, Type: current.Type, Class: current.Class}.canonical()
			authority = re.selectZone(current)
			parentDSSet = nil
			continue
		}

		if len(msg.Answer) > 0 {
			re.cacheAnswer(current, msg, verdict)
			return &Answer{Answer: msg.Answer, Authority: msg.Ns, Additional: msg.Extra, Rcode: msg.Rcode, Verdict: verdict}, ll, nil
		}

		if len(msg.Ns) == 0 {
			// NOERROR with an empty Answer and nothing at all in Authority is not
			// a protocol-valid NODATA (spec.md §4 "NoData" requires an authority
			// SOA); the server simply failed to say anything useful.
			return nil, ll, newResolverError(KindServerFailure, current.Name, ErrNoNSAuthorities)
		}

		nsRRs := extractRRSet(msg.Ns, "", dns.TypeNS)
		if len(nsRRs) == 0 {
			if err := re.validateDenial(DenialNoData, current, msg, verdict); err != nil {
				return nil, ll, newResolverError(KindBogus, current.Name, err)
			}
			answer := &Answer{Authority: msg.Ns, Additional: msg.Extra, Rcode: msg.Rcode, Verdict: verdict}
			return nil, ll, newNegativeResolverError(KindNoData, current.Name, answer)
		}

		qlog.Referral = true
		next, err := re.pickAuthority(ctx, msg.Ns, msg.Extra)
		if err != nil {
			return nil, ll, newResolverError(KindServerFailure, current.Name, err)
		}
		if !isSubdomain(next.Zone, authority.Zone) {
			return nil, ll, newResolverError(KindServerFailure, current.Name, ErrOutOfBailiwick)
		}
		if isRootZone(authority.Zone) || len(parentDSSet) > 0 {
			ds := extractRRSet(msg.Ns, next.Zone, dns.TypeDS)
			if len(ds) == 0 && verdict != Insecure {
				if derr := re.validateDenial(DenialInsecureDelegation, Question{Name: next.Zone, Type: dns.TypeDS, Class: current.Class}, msg, verdict); derr != nil {
					return nil, ll, newResolverError(KindBogus, next.Zone, derr)
				}
			}
			parentDSSet = ds
		}
		authority = next
	}
}

// queryAuthenticated sends current to auth (trying the cache first), then
// runs DNSSEC validation over the response (spec.md §4.4 chain assembly),
// returning the verdict alongside the raw message.
func (re *ReferralEngine) queryAuthenticated(ctx context.Context, qc *QueryContext, auth *Nameserver, current Question, parentDSSet []dns.RR) (*dns.Msg, Verdict, *QueryLog, error) {
	ql := &QueryLog{Query: current, NS: auth}
	started := re.clk.Now().UTC()
	defer func() { ql.Latency = re.clk.Now().UTC().Sub(started) }()

	key := cacheKeyFor(current)
	if raw, verdict, ok := re.cache.GetRaw(key); ok {
		ql.CacheHit = true
		ql.Verdict = verdict
		ql.Rcode = dns.RcodeSuccess
		m := &dns.Msg{}
		m.Rcode = dns.RcodeSuccess
		m.Answer = raw
		return m, verdict, ql, nil
	}

	dnssec := qc.RequireDNSSEC || re.validator.anchors.HasAny()
	var msg *dns.Msg
	var err error
	if len(auth.candidates) > 1 {
		msg, _, err = fanOutQuery(ctx, re.dispatch, auth.candidates, current, dnssec, re.cfg.FanOutDegree)
	} else {
		msg, err = re.dispatch.Query(ctx, auth.Addr, current, dnssec)
	}
	if err != nil {
		ql.Error = err.Error()
		return nil, Indeterminate, ql, err
	}
	ql.Rcode = msg.Rcode

	if err := checkBailiwick(msg, auth.Zone); err != nil {
		ql.Error = err.Error()
		return nil, Indeterminate, ql, newResolverError(KindBogus, current.Name, err)
	}

	verdict := Unsigned
	if re.validator.anchors.HasAny() {
		v, err := re.validator.ValidateAnswer(ctx, auth, msg, parentDSSet)
		if err != nil && qc.RequireDNSSEC {
			ql.Error = err.Error()
			return nil, Bogus, ql, newResolverError(KindBogus, current.Name, err)
		}
		verdict = v
	} else if qc.RequireDNSSEC {
		return nil, Indeterminate, ql, newResolverError(KindIndeterminate, current.Name, ErrNoTrustAnchor)
	}
	ql.Verdict = verdict
	return msg, verdict, ql, nil
}

// checkBailiwick rejects any answer/authority record outside auth's zone
// (spec.md §4.2, teacher's solvere/resolver.go query() bailiwick check).
func checkBailiwick(m *dns.Msg, zone string) error {
	if zone == "" {
		return nil
	}
	for _, section := range [][]dns.RR{m.Answer, m.Ns} {
		for _, rr := range section {
			if _, isOPT := rr.(*dns.OPT); isOPT {
				continue
			}
			if !isSubdomain(rr.Header().Name, zone) {
				return ErrOutOfBailiwick
			}
		}
	}
	return nil
}

// chaseAlias reports whether answer resolves q.Name via a CNAME (or DNAME
// synthesis) rather than directly, and if so the name to re-query — the
// feature the teacher's resolver.go left as BUG(roland) "collapse the CNAME
// chain" (spec.md §4.3).
func chaseAlias(q Question, answer []dns.RR) (target string, chased bool) {
	if q.Type == dns.TypeCNAME {
		return "", false
	}
	owner := canonicalName(q.Name)
	for _, rr := range answer {
		if !sameName(rr.Header().Name, owner) {
			continue
		}
		if cn, ok := rr.(*dns.CNAME); ok {
			return canonicalName(cn.Target), true
		}
	}
	for _, rr := range answer {
		if dn, ok := rr.(*dns.DNAME); ok && isSubdomain(owner, canonicalName(dn.Header().Name)) {
			suffix := canonicalName(dn.Header().Name)
			target := owner[:len(owner)-len(suffix)] + canonicalName(dn.Target)
			return canonicalName(target), true
		}
	}
	return "", false
}

func (re *ReferralEngine) cacheAnswer(q Question, msg *dns.Msg, verdict Verdict) {
	ttl := minTTL(msg.Answer)
	if verdict == Bogus {
		ttl = int(re.cfg.BogusCacheTTL.Seconds())
	}
	re.cache.Insert(cacheKeyFor(q), msg.Answer, verdict, ttl)
}

func (re *ReferralEngine) validateDenial(kind DenialKind, q Question, msg *dns.Msg, verdict Verdict) error {
	if verdict == Unsigned || verdict == Indeterminate {
		return nil
	}
	return re.validator.ValidateDenial(kind, q, msg.Ns)
}

func (re *ReferralEngine) pickRootAuthority() *Nameserver {
	ns := re.rootNS[rand.Intn(len(re.rootNS))]
	return &ns
}

// selectZone finds the deepest ancestor zone of name with a cached NS
// RRSet, falling back to a root server when nothing closer is known
// (spec.md §4.3 "SelectZone").
func (re *ReferralEngine) selectZone(q Question) *Nameserver {
	for _, zone := range parentZones(q.Name) {
		key := CacheKey{Owner: zone, Type: dns.TypeNS, Class: q.Class}
		if nsRRs, _, ok := Get[*dns.NS](re.cache, key); ok && len(nsRRs) > 0 {
			target := nsRRs[rand.Intn(len(nsRRs))].Ns
			if addr, err := re.lookupNSAddr(context.Background(), target); err == nil {
				return &Nameserver{Name: target, Addr: addr, Zone: zone}
			}
		}
	}
	return re.pickRootAuthority()
}

// splitAuthsByZone groups a referral's NS records by zone and resolves
// glue addresses from the accompanying additional section, replacing the
// teacher's own (never checked in) helper of the same purpose.
func splitAuthsByZone(auths, extras []dns.RR, useIPv6 bool) (zones map[string][]string, nsToZone map[string]string) {
	zones = make(map[string][]string)
	nsToZone = make(map[string]string)

	addrByName := make(map[string][]string)
	for _, rr := range typeOf[*dns.A](extras) {
		name := canonicalName(rr.Header().Name)
		addrByName[name] = append(addrByName[name], rr.A.String())
	}
	if useIPv6 {
		for _, rr := range typeOf[*dns.AAAA](extras) {
			name := canonicalName(rr.Header().Name)
			addrByName[name] = append(addrByName[name], rr.AAAA.String())
		}
	}

	for _, a := range auths {
		ns, ok := a.(*dns.NS)
		if !ok {
			continue
		}
		zone := canonicalName(ns.Header().Name)
		name := canonicalName(ns.Ns)
		nsToZone[name] = zone
		if addrs, present := addrByName[name]; present {
			zones[zone] = append(zones[zone], addrs...)
		}
	}
	return zones, nsToZone
}

// pickAuthority chooses the next authoritative server to query from a
// referral response, preferring glue addresses present in the additional
// section and falling back to an out-of-band lookup of the nameserver's own
// address when no glue was provided (mirrors the teacher's pickAuthority).
// Ties between equally-eligible addresses are broken with a weighted random
// pick (github.com/mroth/weightedrand) rather than the teacher's map
// iteration order "abuse".
func (re *ReferralEngine) pickAuthority(ctx context.Context, auths, extras []dns.RR) (*Nameserver, error) {
	zones, nsToZone := splitAuthsByZone(auths, extras, re.cfg.UseIPv6)
	if len(zones) == 0 {
		if len(nsToZone) == 0 {
			return nil, ErrNoNSAuthorities
		}
		// No glue was provided for any candidate. Only a nameserver name
		// out of bailiwick of the zone it serves can be resolved safely
		// here: an in-bailiwick name is exactly the case glue exists to
		// avoid, and recursing for its address would chase the very
		// delegation being validated (spec.md §4.3 QueryServers). Try
		// every candidate rather than an arbitrary one so a single
		// in-bailiwick NS doesn't fail a referral that has a usable
		// sibling.
		var errs error
		for ns, zone := range nsToZone {
			if isSubdomain(ns, zone) {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", ns, ErrGlueRequired))
				continue
			}
			addr, err := re.lookupNSAddr(ctx, ns)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			return &Nameserver{Name: ns, Addr: addr, Zone: zone}, nil
		}
		if errs == nil {
			errs = ErrGlueRequired
		}
		return nil, errs
	}
	for ns, zone := range nsToZone {
		addrs := zones[zone]
		if len(addrs) == 0 {
			continue
		}
		return &Nameserver{Name: ns, Addr: pickWeighted(addrs), Zone: zone, candidates: addrs}, nil
	}
	return nil, ErrNoNSAuthorities
}

// lookupNSAddr resolves the A record for a bare nameserver name via a fresh
// top-level Resolve, bounded by its own depth budget so a malicious or
// misconfigured zone can't recurse forever chasing its own glue (the
// teacher's lookupNS carried an explicit BUG(roland) noting this was
// unbounded; here it is simply a normal Resolve call with its own
// DepthBudget, per spec.md §9).
func (re *ReferralEngine) lookupNSAddr(ctx context.Context, name string) (string, error) {
	answer, _, err := re.Resolve(ctx, Question{Name: name, Type: dns.TypeA, Class: dns.ClassINET}, false)
	if err != nil {
		return "", err
	}
	if answer.Rcode != dns.RcodeSuccess || len(answer.Answer) == 0 {
		return "", ErrNoAuthorityAddress
	}
	addrs := typeOf[*dns.A](answer.Answer)
	if len(addrs) == 0 {
		return "", ErrNoAuthorityAddress
	}
	return addrs[rand.Intn(len(addrs))].A.String(), nil
}

func pickWeighted(addrs []string) string {
	if len(addrs) == 1 {
		return addrs[0]
	}
	choices := make([]weightedrand.Choice, 0, len(addrs))
	for _, a := range addrs {
		choices = append(choices, weightedrand.Choice{Item: a, Weight: 1})
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return addrs[rand.Intn(len(addrs))]
	}
	return chooser.Pick().(string)
}

// fanOutQuery races up to Config.FanOutDegree candidate addresses for the
// same query concurrently, returning the first success and aggregating
// every failure into a single error (spec.md §4.3 "bounded parallel
// fan-out"). queryAuthenticated calls it when the chosen authority carries
// more than one glue address (Nameserver.candidates); a single-address
// authority is queried directly instead.
func fanOutQuery(ctx context.Context, d *Dispatcher, addrs []string, q Question, dnssec bool, degree int) (*dns.Msg, string, error) {
	if degree <= 0 || degree > len(addrs) {
		degree = len(addrs)
	}
	type result struct {
		msg  *dns.Msg
		addr string
		err  error
	}
	results := make(chan result, degree)
	var wg sync.WaitGroup
	for i := 0; i < degree; i++ {
		addr := addrs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := d.Query(ctx, addr, q, dnssec)
			results <- result{msg: m, addr: addr, err: err}
		}()
	}
	go func() { wg.Wait(); close(results) }()

	var errs error
	for r := range results {
		if r.err == nil {
			return r.msg, r.addr, nil
		}
		errs = multierror.Append(errs, r.err)
	}
	return nil, "", errs
}
