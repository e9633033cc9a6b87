package resolvd

import (
	"testing"

	"github.com/miekg/dns"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("failed to build default config: %s", err)
	}
	r, err := NewResolver(cfg, nil)
	if err != nil {
		t.Fatalf("failed to wire a resolver from default config: %s", err)
	}
	return r
}

func TestNewResolverWiresBuiltinRootHints(t *testing.T) {
	r := newTestResolver(t)
	defer r.Close()
	if len(r.referral.rootNS) == 0 {
		t.Fatal("expected the built-in root hints to seed at least one root nameserver")
	}
	if !r.anchors.HasAny() {
		t.Fatal("expected the built-in IANA root keys to seed the trust anchor store")
	}
}

func TestResolverFlushAndSweepAndLen(t *testing.T) {
	r := newTestResolver(t)
	defer r.Close()

	key := CacheKey{Owner: "example.com.", Type: dns.TypeA, Class: dns.ClassINET}
	r.cache.Insert(key, []dns.RR{&dns.A{Hdr: dns.RR_Header{Ttl: 30}}}, Secure, 30)

	if r.CacheLen() != 1 {
		t.Fatalf("expected one cached entry, got %d", r.CacheLen())
	}
	r.SweepNow()
	if r.CacheLen() != 1 {
		t.Fatalf("expected sweep to leave a non-expired entry alone, got %d", r.CacheLen())
	}
	r.FlushCache()
	if r.CacheLen() != 0 {
		t.Fatalf("expected FlushCache to empty the cache, got %d", r.CacheLen())
	}
}

func TestResolverConfigureReplacesAnchors(t *testing.T) {
	r := newTestResolver(t)
	defer r.Close()

	if err := r.Configure([]string{testDS}); err != nil {
		t.Fatalf("expected Configure to accept a well-formed DS anchor: %s", err)
	}
	if len(r.anchors.For(".")) != 1 {
		t.Fatalf("expected Configure to replace the root anchors with exactly the new set")
	}
}

func TestNewResolverRejectsInvalidConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("failed to build default config: %s", err)
	}
	cfg.MaxReferrals = 0
	if _, err := NewResolver(cfg, nil); err == nil {
		t.Fatal("expected an invalid config to be rejected before any wiring happens")
	}
}
