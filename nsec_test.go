package resolvd

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
)

func makeNSEC3(name, next string, optOut bool, types []uint16) *dns.NSEC3 {
	salt := "FFFF"
	flags := uint8(0)
	if optOut {
		flags |= nsec3OptOutFlag
	}
	return &dns.NSEC3{
		Hdr: dns.RR_Header{
			Name:   dns.HashName(name, dns.SHA1, 2, salt) + ".com",
			Rrtype: dns.TypeNSEC3,
			Class:  dns.ClassINET,
		},
		Hash:       dns.SHA1,
		Flags:      flags,
		Iterations: 2,
		SaltLength: 2,
		Salt:       salt,
		HashLength: 20,
		NextDomain: dns.HashName(next, dns.SHA1, 2, salt),
		TypeBitMap: types,
	}
}

func zoneToRecords(t *testing.T, z string) []dns.RR {
	t.Helper()
	var records []dns.RR
	for tok := range dns.ParseZone(strings.NewReader(z), "", "") {
		if tok.Error != nil {
			t.Fatalf("failed to parse zone fixture: %s", tok.Error)
		}
		records = append(records, tok.RR)
	}
	return records
}

func TestVerifyNameError(t *testing.T) {
	if err := verifyNameError(Question{Name: "easdasdd1q2e2d2w.org.", Type: dns.TypeA}, nil); err == nil {
		t.Fatal("expected failure against an empty NSEC3 set")
	}

	records := zoneToRecords(t, `h9p7u7tr2u91d0v0ljs9l1gidnp90u3h.org. 86400 IN NSEC3 1 1 1 D399EAAB H9PARR669T6U8O1GSG9E1LMITK4DEM0T NS SOA RRSIG DNSKEY NSEC3PARAM
7787tb18r44mr7o4pqc3n8ur0h2043tl.org. 86400 IN NSEC3 1 1 1 D399EAAB 778KI18543GPI8BANNL5TLE6A49ALNT4 NS DS RRSIG
vaittv1g2ies9s3920soaumh73klnhs5.org. 86400 IN NSEC3 1 1 1 D399EAAB VAJSHJ9G9U88NEFMNIS1LOG48CM6L9LO NS DS RRSIG`)

	if err := verifyNameError(Question{Name: "easdasdd1q2e2d2w.org.", Type: dns.TypeA}, records); err != nil {
		t.Fatalf("expected a valid name-error proof, got: %s", err)
	}

	records = zoneToRecords(t, `h9p7u7tr2u91d0v0ljs9l1gidnp90u3h.org. 86400 IN NSEC3 1 1 1 D399EAAB H9PARR669T6U8O1GSG9E1LMITK4DEM0T NS SOA RRSIG DNSKEY NSEC3PARAM
7787tb18r44mr7o4pqc3n8ur0h2043tl.org. 86400 IN NSEC3 1 1 1 D399EAAB 778KI18543GPI8BANNL5TLE6A49ALNT4 NS DS RRSIG`)

	if err := verifyNameError(Question{Name: "easdasdd1q2e2d2w.org.", Type: dns.TypeA}, records); err == nil {
		t.Fatal("expected failure with an incomplete proof")
	}
	if err := verifyNameError(Question{Name: "xxxx.org.", Type: dns.TypeA}, records); err == nil {
		t.Fatal("expected failure for a name the proof doesn't cover")
	}
	if err := verifyNameError(Question{Name: "different-parent.com.", Type: dns.TypeA}, records); err == nil {
		t.Fatal("expected failure for a name in a different zone")
	}
}

func TestVerifyNODATA(t *testing.T) {
	records := zoneToRecords(t, `lg1c6bf6hv6ooib05ir8kolkofua0upg.whitehouse.gov. 3600 IN NSEC3 1 0 1 67C6697351FF4AEC LK8T7NFS811HQPP3UDU7A6KQ12IIOTKF A NS SOA MX TXT AAAA RRSIG DNSKEY NSEC3PARAM`)

	if err := verifyNODATA(Question{Name: "whitehouse.gov.", Type: dns.TypeCAA}, records); err != nil {
		t.Fatalf("expected a valid NODATA proof, got: %s", err)
	}
	if err := verifyNODATA(Question{Name: "mighthouse.gov.", Type: dns.TypeCAA}, records); err == nil {
		t.Fatal("expected failure for a name the proof doesn't cover")
	}

	withCAA := zoneToRecords(t, `lg1c6bf6hv6ooib05ir8kolkofua0upg.whitehouse.gov. 3600 IN NSEC3 1 0 1 67C6697351FF4AEC LK8T7NFS811HQPP3UDU7A6KQ12IIOTKF A NS SOA MX TXT AAAA RRSIG DNSKEY NSEC3PARAM CAA`)
	if err := verifyNODATA(Question{Name: "whitehouse.gov.", Type: dns.TypeCAA}, withCAA); err == nil {
		t.Fatal("expected failure when the type bitmap actually has the queried type set")
	}

	if err := verifyNODATA(Question{Name: "whitehouse.gov.", Type: dns.TypeDS}, records); err != nil {
		t.Fatalf("expected a valid DS opt-out NODATA proof, got: %s", err)
	}
}

func TestVerifyDelegation(t *testing.T) {
	// Valid direct delegation.
	records := []dns.RR{makeNSEC3("a.b.com.", "b.b.com.", false, []uint16{dns.TypeNS})}
	if err := verifyDelegation("a.b.com.", records); err != nil {
		t.Fatalf("expected a valid direct delegation match: %s", err)
	}

	// NS bit not set.
	records = []dns.RR{makeNSEC3("a.b.com.", "b.b.com.", false, nil)}
	if err := verifyDelegation("a.b.com.", records); err == nil {
		t.Fatal("expected failure when the NS bit isn't set")
	}

	// DS bit set: signed delegation, not insecure.
	records = []dns.RR{makeNSEC3("a.b.com.", "b.b.com.", false, []uint16{dns.TypeNS, dns.TypeDS})}
	if err := verifyDelegation("a.b.com.", records); err == nil {
		t.Fatal("expected failure when the DS bit is set")
	}

	// SOA bit set: not a delegation at all.
	records = []dns.RR{makeNSEC3("a.b.com.", "b.b.com.", false, []uint16{dns.TypeNS, dns.TypeSOA})}
	if err := verifyDelegation("a.b.com.", records); err == nil {
		t.Fatal("expected failure when the SOA bit is set")
	}

	// Valid opt-out delegation.
	records = []dns.RR{
		makeNSEC3("com.", "a.com.", false, []uint16{dns.TypeNS}),
		makeNSEC3("a.com.", "e.com.", true, []uint16{dns.TypeNS}),
	}
	if err := verifyDelegation("b.com.", records); err != nil {
		t.Fatalf("expected a valid opt-out delegation match: %s", err)
	}

	// Opt-out bit not set on the covering record.
	records = []dns.RR{
		makeNSEC3("com.", "a.com.", false, []uint16{dns.TypeNS}),
		makeNSEC3("a.com.", "e.com.", false, []uint16{dns.TypeNS}),
	}
	if err := verifyDelegation("b.com.", records); err == nil {
		t.Fatal("expected failure when the opt-out bit isn't set on the covering record")
	}

	// RFC 5155 Appendix B.3.
	records = zoneToRecords(t, `35mthgpgcu1qg68fab165klnsnk3dpvl.example. 3600 IN NSEC3 1 1 12 aabbccdd b4um86eghhds6nea196smvmlo4ors995 NS DS RRSIG
0p9mhaveqvm6t7vbl5lop2u3t2rp3tom.example. 3600 IN NSEC3 1 1 12 aabbccdd 2t7b4g4vsa5smi47k61mv5bv1a22bojr MX DNSKEY NS SOA NSEC3PARAM RRSIG`)
	if err := verifyDelegation("c.example.", records); err != nil {
		t.Fatalf("expected the RFC 5155 opt-out example to validate: %s", err)
	}
}
