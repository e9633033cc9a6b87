package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arnegraf/resolvd"
)

var queryDNSSEC bool

var queryCmd = &cobra.Command{
	Use:   "query <name> [type]",
	Short: "Resolve a single name and print the answer",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryDNSSEC, "dnssec", false, "require a validated DNSSEC chain")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	qtype := uint16(dns.TypeA)
	if len(args) == 2 {
		t, ok := dns.StringToType[args[1]]
		if !ok {
			return fmt.Errorf("resolvd: unknown record type %q", args[1])
		}
		qtype = t
	}

	r, err := resolvd.NewResolver(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ResolveTimeout)
	defer cancel()

	answer, err := r.Resolve(ctx, dns.Fqdn(args[0]), qtype, dns.ClassINET, queryDNSSEC)
	if err != nil {
		var rerr *resolvd.ResolverError
		if !errors.As(err, &rerr) || rerr.Answer == nil {
			return err
		}
		answer = rerr.Answer
	}

	fmt.Printf(";; rcode: %s, verdict: %s\n", dns.RcodeToString[answer.Rcode], answer.Verdict)
	for _, rr := range answer.Answer {
		fmt.Println(rr.String())
	}
	return nil
}
