package resolvd

import (
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

func TestCheckDS(t *testing.T) {
	k := &dns.DNSKEY{Algorithm: dns.RSASHA256}
	if _, err := k.Generate(512); err != nil {
		t.Fatalf("failed to generate DNSKEY: %s", err)
	}
	keyMap := map[uint16]*dns.DNSKEY{}
	dsSet := []dns.RR{k.ToDS(dns.SHA256)}

	if err := checkDS(keyMap, dsSet); err == nil {
		t.Fatal("expected failure with an empty key map")
	}

	keyMap[k.KeyTag()] = k
	if err := checkDS(keyMap, dsSet); err != nil {
		t.Fatalf("expected a valid key/DS combination to verify: %s", err)
	}

	newDS := k.ToDS(dns.SHA256)
	newDS.DigestType = dns.SHA1
	if err := checkDS(keyMap, []dns.RR{newDS}); err == nil {
		t.Fatal("expected failure with a mismatching DS record")
	}

	k.PublicKey = "broken"
	if err := checkDS(keyMap, []dns.RR{newDS}); err == nil {
		t.Fatal("expected failure with a malformed KSK record")
	}
}

// signedWindow mirrors the teacher's own dnssec_test.go year68-wraparound
// arithmetic for building an Inception/Expiration pair around now.
func signedWindow(now time.Time) (inception, expiration uint32) {
	year68 := int64(1 << 31)
	n := now.Unix()
	mod := (n / year68) - 1
	if mod < 0 {
		mod = 0
	}
	inception = uint32(n - (mod * year68))
	n = now.Add(time.Hour).Unix()
	mod = (n / year68) - 1
	if mod < 0 {
		mod = 0
	}
	expiration = uint32(n - (mod * year68))
	return
}

func TestVerifyRRSIG(t *testing.T) {
	fc := clock.NewFake()
	k := &dns.DNSKEY{Hdr: dns.RR_Header{Name: "org."}, Algorithm: dns.RSASHA256, Protocol: 3}
	pk, err := k.Generate(512)
	if err != nil {
		t.Fatalf("failed to generate DNSKEY: %s", err)
	}
	rk := pk.(*rsa.PrivateKey)
	keyMap := map[uint16]*dns.DNSKEY{k.KeyTag(): k}

	inception, expiration := signedWindow(fc.Now())

	sigA := &dns.RRSIG{Inception: inception, Expiration: expiration, KeyTag: k.KeyTag(), SignerName: "org.", Algorithm: dns.RSASHA256}
	sigB := &dns.RRSIG{Inception: inception, Expiration: expiration, KeyTag: k.KeyTag(), SignerName: "org.", Algorithm: dns.RSASHA256}

	aSet := []dns.RR{
		&dns.A{Hdr: dns.RR_Header{Name: "a.com.", Rrtype: dns.TypeA}, A: net.IP{1, 2, 3, 4}},
		&dns.A{Hdr: dns.RR_Header{Name: "a.com.", Rrtype: dns.TypeA}, A: net.IP{1, 2, 3, 5}},
	}
	nsSet := []dns.RR{&dns.NS{Hdr: dns.RR_Header{Name: "c.com.", Rrtype: dns.TypeNS}, Ns: "a.com."}}

	if err := sigA.Sign(rk, aSet); err != nil {
		t.Fatalf("failed to sign aSet: %s", err)
	}
	if err := sigB.Sign(rk, nsSet); err != nil {
		t.Fatalf("failed to sign nsSet: %s", err)
	}

	withNS := append(append([]dns.RR{}, nsSet...), sigB)
	if err := verifyRRSIG(withNS, keyMap, fc); err != nil {
		t.Fatalf("expected valid RRSIGs to verify: %s", err)
	}

	if err := verifyRRSIG(aSet, keyMap, fc); err == nil {
		t.Fatal("expected failure with missing signatures")
	}

	if err := verifyRRSIG([]dns.RR{sigA}, keyMap, fc); err == nil {
		t.Fatal("expected failure with missing signed records")
	}

	withA := append(append([]dns.RR{}, aSet...), sigA)
	if err := verifyRRSIG(withA, make(map[uint16]*dns.DNSKEY), fc); err == nil {
		t.Fatal("expected failure with a missing DNSKEY")
	}

	sigA.Signature = ""
	if err := verifyRRSIG(withA, keyMap, fc); err == nil {
		t.Fatal("expected failure with an invalid signature")
	}

	sigA.Expiration = inception - 10
	if err := sigA.Sign(rk, aSet); err != nil {
		t.Fatalf("failed to re-sign aSet: %s", err)
	}
	if err := verifyRRSIG(withA, keyMap, fc); err == nil {
		t.Fatal("expected failure with an invalid validity period")
	}
}

// TestVerifyRRSIGRequiresEverySignature guards against short-circuiting to
// success on the first RRSIG that verifies: a section bundling one
// legitimately-signed RRset alongside a second RRset whose RRSIG fails must
// not validate as a whole.
func TestVerifyRRSIGRequiresEverySignature(t *testing.T) {
	fc := clock.NewFake()
	k := &dns.DNSKEY{Hdr: dns.RR_Header{Name: "org."}, Algorithm: dns.RSASHA256, Protocol: 3}
	pk, err := k.Generate(512)
	if err != nil {
		t.Fatalf("failed to generate DNSKEY: %s", err)
	}
	rk := pk.(*rsa.PrivateKey)
	keyMap := map[uint16]*dns.DNSKEY{k.KeyTag(): k}

	inception, expiration := signedWindow(fc.Now())

	goodSig := &dns.RRSIG{Inception: inception, Expiration: expiration, KeyTag: k.KeyTag(), SignerName: "org.", Algorithm: dns.RSASHA256}
	nsSet := []dns.RR{&dns.NS{Hdr: dns.RR_Header{Name: "c.com.", Rrtype: dns.TypeNS}, Ns: "a.com."}}
	if err := goodSig.Sign(rk, nsSet); err != nil {
		t.Fatalf("failed to sign nsSet: %s", err)
	}

	badSig := &dns.RRSIG{Inception: inception, Expiration: expiration, KeyTag: k.KeyTag(), SignerName: "org.", Algorithm: dns.RSASHA256}
	aSet := []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: "a.com.", Rrtype: dns.TypeA}, A: net.IP{6, 6, 6, 6}}}
	if err := badSig.Sign(rk, aSet); err != nil {
		t.Fatalf("failed to sign aSet: %s", err)
	}
	badSig.Signature = "" // simulates a forged RRset paired with a broken signature

	section := append(append(append([]dns.RR{}, nsSet...), goodSig), append(aSet, badSig)...)
	if err := verifyRRSIG(section, keyMap, fc); err == nil {
		t.Fatal("expected failure: one valid signature must not validate an unrelated forged RRset")
	}
}

func TestValidateDenialRejectsMixedSets(t *testing.T) {
	v := NewValidator(nil, nil, nil, clock.NewFake(), nil)
	mixed := []dns.RR{
		&dns.NSEC{Hdr: dns.RR_Header{Name: "a.com.", Rrtype: dns.TypeNSEC}},
		makeNSEC3("a.com.", "b.com.", false, nil),
	}
	if err := v.ValidateDenial(DenialNXDomain, Question{Name: "a.com.", Type: dns.TypeA}, mixed); err == nil {
		t.Fatal("expected failure when both NSEC and NSEC3 records are present")
	}
}

func TestValidatorCheckRootAnchor(t *testing.T) {
	anchorKey := &dns.DNSKEY{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeDNSKEY}, Flags: dns.SEP | 256, Protocol: 3, Algorithm: dns.RSASHA256}
	if _, err := anchorKey.Generate(512); err != nil {
		t.Fatalf("failed to generate root anchor key: %s", err)
	}
	store, err := NewTrustAnchorStore([]string{anchorKey.String()})
	if err != nil {
		t.Fatalf("failed to build trust anchor store: %s", err)
	}
	v := NewValidator(nil, nil, store, clock.NewFake(), nil)

	keyMap := map[uint16]*dns.DNSKEY{anchorKey.KeyTag(): anchorKey}
	if err := v.checkRootAnchor(keyMap); err != nil {
		t.Fatalf("expected the configured anchor to match: %s", err)
	}

	if err := v.checkRootAnchor(map[uint16]*dns.DNSKEY{}); err == nil {
		t.Fatal("expected failure when no candidate key matches the anchor")
	}
}
