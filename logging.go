package resolvd

import (
	"time"

	"github.com/hako/durafmt"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// questionFields builds the common logrus.Fields set every component
// attaches when logging about a question, replacing the teacher's
// hand-marshaled QueryLog/LookupLog JSON blobs (solvere/resolver.go) with
// structured logrus fields.
func questionFields(q Question) logrus.Fields {
	return logrus.Fields{
		"qname":  q.Name,
		"qtype":  typeString(q.Type),
		"qclass": classString(q.Class),
	}
}

func typeString(t uint16) string {
	if s, ok := dns.TypeToString[t]; ok {
		return s
	}
	return "TYPE"
}

func classString(c uint16) string {
	if s, ok := dns.ClassToString[c]; ok {
		return s
	}
	return "CLASS"
}

// durationField renders a duration the way a human reads it in a log line
// (blocky's dependency on hako/durafmt, used for exactly this purpose).
func durationField(d time.Duration) string {
	return durafmt.Parse(d).String()
}
