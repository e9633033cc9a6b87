// Package hints provides the built-in root server hints and root zone
// trust anchors used when a Config leaves RootHints/TrustAnchors empty.
// The teacher (solvere/cmd/solvere/main.go) imports a sibling
// "solvere/hints" package that isn't present anywhere in the pack; this
// package fills that gap. Root KSK key material mirrors the constants
// 0xERR0R/blocky/resolver/dnssec/trust_anchor.go carries from IANA's
// published root-anchors.xml.
package hints

import "github.com/miekg/dns"

// rootServers is a working subset of the IANA root hints zone file.
var rootServers = []string{
	". 3600000 IN NS a.root-servers.net.",
	". 3600000 IN NS b.root-servers.net.",
	". 3600000 IN NS c.root-servers.net.",
	". 3600000 IN NS d.root-servers.net.",
	". 3600000 IN NS e.root-servers.net.",
	"a.root-servers.net. 3600000 IN A 198.41.0.4",
	"a.root-servers.net. 3600000 IN AAAA 2001:503:ba3e::2:30",
	"b.root-servers.net. 3600000 IN A 199.9.14.201",
	"b.root-servers.net. 3600000 IN AAAA 2001:500:200::b",
	"c.root-servers.net. 3600000 IN A 192.33.4.12",
	"c.root-servers.net. 3600000 IN AAAA 2001:500:2::c",
	"d.root-servers.net. 3600000 IN A 199.7.91.13",
	"d.root-servers.net. 3600000 IN AAAA 2001:500:2d::d",
	"e.root-servers.net. 3600000 IN A 192.203.230.10",
	"e.root-servers.net. 3600000 IN AAAA 2001:500:a8::e",
}

// rootKeys are the IANA root zone KSKs (Key Tags 20326 and 38696), kept as
// DNSKEY records so they can anchor the trust chain at zone ".".
var rootKeys = []string{
	". 172800 IN DNSKEY 257 3 8 " +
		"AwEAAaz/tAm8yTn4Mfeh5eyI96WSVexTBAvkMgJzkKTOiW1vkIbzxeF3+/4RgWOq7HrxRixHlFlExOLAJr5emLvN7SWXgnLh4+B5xQlNVz8Og8k" +
		"vArMtNROxVQuCaSnIDdD5LKyWbRd2n9WGe2R8PzgCmr3EgVLrjyBxWezF0jLHwVN8efS3rCj/EWgvIWgb9tarpVUDK/b58Da+sqqls3eNbuv7pr" +
		"+eoZG+SrDK6nWeL3c6H5Apxz7LjVc1uTIdsIXxuOLYA4/ilBmSVIzuDWfdRUfhHdY6+cn8HFRm+2hM8AnXGXws9555KrUB5qihylGa8subX2Nn6" +
		"UwNR1AkUTV74bU=",
	". 172800 IN DNSKEY 257 3 8 " +
		"AwEAAa96jeuknZlaeSrvyAJj6ZHv28hhOKkx3rLGXVaC6rXTsDc449/cidltpkyGwCJNnOAlFNKF2jBosZBU5eeHspaQWOmOElZsjICMQMC3aeH" +
		"bGiShvZsx4wMYSjH8e7Vrhbu6irwCzVBApESjbUdpWWmEnhathWu1jo+siFUiRAAxm9qyJNg/wOZqqzL/dL/q8PkcRU5oUKEpUge71M3ej2/7CP" +
		"qpdVwuMoTvoB+ZOT4YeGyxMvHmbrxlFzGOHOijtzN+u1TQNatX2XBuzZNQ1K+s2CXkPIZo7s6JgZyvaBevYtxPvYLw4z9mR7K2vaF18UYH9Z9GN" +
		"UUeayffKC73PYc=",
}

// RootNameservers parses the built-in root hints into resource records.
func RootNameservers() []dns.RR {
	return mustParseAll(rootServers)
}

// RootKeys parses the built-in root KSKs into DNSKEY records usable as
// TrustAnchor inputs or Config.TrustAnchors entries.
func RootKeys() []dns.RR {
	return mustParseAll(rootKeys)
}

func mustParseAll(zone []string) []dns.RR {
	out := make([]dns.RR, 0, len(zone))
	for _, line := range zone {
		rr, err := dns.NewRR(line)
		if err != nil {
			panic("hints: malformed built-in record: " + err.Error())
		}
		out = append(out, rr)
	}
	return out
}
