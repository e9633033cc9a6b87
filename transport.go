package resolvd

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"

	retry "github.com/avast/retry-go/v4"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Transport errors (spec.md §4.2).
var (
	ErrTransportTimeout     = errors.New("resolvd: transport: timeout")
	ErrNetworkUnreachable   = errors.New("resolvd: transport: network unreachable")
	ErrMalformedResponse    = errors.New("resolvd: transport: malformed response")
	ErrTransactionIDMismatch = errors.New("resolvd: transport: transaction id mismatch")
	ErrCasingMismatch       = errors.New("resolvd: transport: 0x20 casing mismatch")
)

// dnsPort is a var, not a const, so tests can point the dispatcher at a
// mock server on an unprivileged port (mirrors the teacher's own
// solvere/dnssec.go dnsPort override in its test suite).
var dnsPort = "53"

// Dispatcher is the transport dispatcher (C2): it sends a single question
// to a chosen authoritative server, handling UDP truncation -> TCP
// fallback, timeouts, and retries with backoff. Grounded on the teacher's
// RecursiveResolver.query (solvere/resolver.go), split out into its own
// type and given the retry/backoff/0x20 behavior the teacher never
// implemented.
type Dispatcher struct {
	udp *dns.Client
	tcp *dns.Client

	cfg *Config
	log logrus.FieldLogger

	mu   sync.Mutex
	pool map[string]*pooledConn
}

type pooledConn struct {
	conn  *dns.Conn
	idle  *IdleTimer
	owner string
}

// NewDispatcher builds a Dispatcher from cfg.
func NewDispatcher(cfg *Config, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		udp:  &dns.Client{Net: "udp", Timeout: cfg.HopTimeout},
		tcp:  &dns.Client{Net: "tcp", Timeout: cfg.HopTimeout},
		cfg:  cfg,
		log:  log,
		pool: make(map[string]*pooledConn),
	}
}

// Query sends (name,qtype,qclass) to server, trying UDP first (with
// retries and 0x20 bit-randomization) and falling back to TCP on
// truncation, per spec.md §4.2.
func (d *Dispatcher) Query(ctx context.Context, server string, q Question, dnssec bool) (*dns.Msg, error) {
	sentName := q.Name
	if d.cfg.Use0x20 {
		sentName = randomizeCase(q.Name)
	}

	var resp *dns.Msg
	err := retry.Do(
		func() error {
			m := buildQuery(sentName, q, d.cfg.UDPBufferSize, dnssec)
			r, _, err := d.udp.ExchangeContext(ctx, m, net.JoinHostPort(server, dnsPort))
			if err != nil {
				return classifyTransportError(err)
			}
			if r.Id != m.Id {
				return retry.Unrecoverable(ErrTransactionIDMismatch)
			}
			if d.cfg.Use0x20 && len(r.Question) > 0 && r.Question[0].Name != sentName {
				return retry.Unrecoverable(ErrCasingMismatch)
			}
			resp = r
			return nil
		},
		retry.Attempts(uint(d.cfg.UDPRetries)),
		retry.Delay(d.cfg.UDPRetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	if resp.Truncated {
		d.log.WithFields(questionFields(q)).WithField("server", server).Debug("UDP truncated, retrying over TCP")
		m := buildQuery(sentName, q, d.cfg.UDPBufferSize, dnssec)
		r, terr := d.queryTCP(ctx, server, m)
		if terr != nil {
			return nil, terr
		}
		if r.Id != m.Id {
			return nil, ErrTransactionIDMismatch
		}
		if d.cfg.Use0x20 && len(r.Question) > 0 && r.Question[0].Name != sentName {
			return nil, ErrCasingMismatch
		}
		resp = r
	}
	return resp, nil
}

// queryTCP exchanges m over a pooled connection to server, acquired through
// acquireTCP so repeated TCP fallbacks to the same upstream within
// Config.ConnIdleTimeout reuse one socket (spec.md §5) instead of dialing
// fresh every time. A connection that errors on exchange is reaped rather
// than returned to the pool, so the next call dials fresh.
func (d *Dispatcher) queryTCP(ctx context.Context, server string, m *dns.Msg) (*dns.Msg, error) {
	conn, err := d.acquireTCP(server)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	r, _, err := d.tcp.ExchangeWithConnContext(ctx, conn, m)
	if err != nil {
		d.reapTCP(server)
		return nil, classifyTransportError(err)
	}
	return r, nil
}

func buildQuery(sentName string, q Question, bufsize uint16, dnssec bool) *dns.Msg {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = false
	m.SetEdns0(bufsize, dnssec)
	m.Question = []dns.Question{{Name: sentName, Qtype: q.Type, Qclass: q.Class}}
	return m
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTransportTimeout
	}
	if errors.Is(err, dns.ErrTruncated) {
		return nil
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrNetworkUnreachable
	}
	return ErrMalformedResponse
}

// randomizeCase returns a copy of name with each ASCII letter's case chosen
// pseudo-randomly, for 0x20 spoofing resistance (spec.md §4.2, GLOSSARY).
func randomizeCase(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			if rand.Intn(2) == 0 {
				b[i] = byte(strings.ToUpper(string(c))[0])
			} else {
				b[i] = byte(strings.ToLower(string(c))[0])
			}
		}
	}
	return string(b)
}

// acquireTCP returns the pooled TCP connection for server, dialing one if
// none exists, and arms (or resets) its IdleTimer so it's reaped after
// ConnIdleTimeout of inactivity (spec.md §5 idle timer). Used by queryTCP so
// repeated TCP fallbacks to the same upstream share one socket instead of
// dialing fresh per query.
func (d *Dispatcher) acquireTCP(server string) (*dns.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pc, ok := d.pool[server]; ok {
		pc.idle.Reset()
		return pc.conn, nil
	}
	conn, err := d.tcp.Dial(net.JoinHostPort(server, dnsPort))
	if err != nil {
		return nil, err
	}
	pc := &pooledConn{conn: conn, owner: server}
	pc.idle = NewIdleTimer(d.cfg.ConnIdleTimeout, func() { d.reapTCP(server) })
	d.pool[server] = pc
	return conn, nil
}

func (d *Dispatcher) reapTCP(server string) {
	d.mu.Lock()
	pc, ok := d.pool[server]
	if ok {
		delete(d.pool, server)
	}
	d.mu.Unlock()
	if ok {
		_ = pc.conn.Close()
	}
}

// Close tears down every pooled connection.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for addr, pc := range d.pool {
		pc.idle.Stop()
		_ = pc.conn.Close()
		delete(d.pool, addr)
	}
}
