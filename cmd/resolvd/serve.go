package main

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arnegraf/resolvd"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resolver as a DNS server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "0.0.0.0:53", "address to listen on")
}

// handler adapts incoming dns.Msg requests to Resolver.Resolve, mirroring
// the teacher's cmd/solvere/server.go handler shape (one question in, one
// answer out, verdict mapped onto the reply's AD bit and Rcode).
type handler struct {
	r   *resolvd.Resolver
	log logrus.FieldLogger
}

func (h *handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true

	if len(r.Question) != 1 {
		m.Rcode = dns.RcodeNotImplemented
		_ = w.WriteMsg(m)
		return
	}

	q := r.Question[0]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	answer, err := h.r.Resolve(ctx, q.Name, q.Qtype, q.Qclass, false)
	if err != nil {
		// NameError/NoData are validated negative answers, not resolve
		// failures: the ResolverError still carries the SOA/denial records
		// the reply needs (spec.md §7).
		var rerr *resolvd.ResolverError
		if errors.As(err, &rerr) && rerr.Answer != nil {
			answer = rerr.Answer
		} else {
			h.log.WithError(err).WithField("qname", q.Name).Warn("resolve failed")
			m.Rcode = dns.RcodeServerFailure
			_ = w.WriteMsg(m)
			return
		}
	}

	m.Rcode = answer.Rcode
	m.AuthenticatedData = answer.Verdict == resolvd.Secure
	m.Answer = answer.Answer
	m.Ns = answer.Authority
	m.Extra = answer.Additional
	_ = w.WriteMsg(m)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logrus.StandardLogger()

	r, err := resolvd.NewResolver(cfg, log)
	if err != nil {
		return err
	}
	defer r.Close()

	h := &handler{r: r, log: log}
	dns.Handle(".", h)

	srv := &dns.Server{Addr: serveAddr, Net: "udp"}
	log.WithField("addr", serveAddr).Info("resolvd listening")
	return srv.ListenAndServe()
}
