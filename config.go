package resolvd

import (
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v2"
)

// Config is the resolver's process-wide, read-mostly configuration
// (spec.md §6 configure(...), §5 "Trust-anchor set: read-only after
// initialization; a configuration reload MUST be an atomic swap"). Fields
// get their defaults from github.com/creasty/defaults (the same library
// 0xERR0R/blocky uses for its own config struct) and the whole struct is
// loadable from YAML (blocky's config format).
type Config struct {
	// UDPBufferSize is advertised via EDNS(0) (default 4096, spec.md §4.2).
	UDPBufferSize uint16 `yaml:"udpBufferSize" default:"4096"`
	// UDPRetries is the number of UDP attempts before giving up on an
	// endpoint (spec.md §4.2).
	UDPRetries int `yaml:"udpRetries" default:"3"`
	// UDPRetryBackoff is the base exponential backoff between UDP retries.
	UDPRetryBackoff time.Duration `yaml:"udpRetryBackoff" default:"100ms"`
	// Use0x20 toggles QNAME case randomization (spec.md §4.2, GLOSSARY).
	Use0x20 bool `yaml:"use0x20" default:"true"`

	// HopTimeout bounds a single C2 query (spec.md §5, default 2s).
	HopTimeout time.Duration `yaml:"hopTimeout" default:"2s"`
	// ResolveTimeout bounds an entire top-level resolve (spec.md §5, default 10s).
	ResolveTimeout time.Duration `yaml:"resolveTimeout" default:"10s"`
	// ConnIdleTimeout governs pooled TCP connection reaping (spec.md §5 idle timer).
	ConnIdleTimeout time.Duration `yaml:"connIdleTimeout" default:"30s"`

	// MaxReferrals bounds alias/referral hops per resolve (spec.md §4.3, default 30).
	MaxReferrals int `yaml:"maxReferrals" default:"30"`
	// FanOutDegree bounds parallel authoritative-server fan-out (spec.md §4.3, default 2).
	FanOutDegree int `yaml:"fanOutDegree" default:"2"`

	// CacheSweepInterval is how often the background sweep runs (spec.md §3).
	CacheSweepInterval time.Duration `yaml:"cacheSweepInterval" default:"1m"`
	// CacheMaxEntries bounds the cache's LRU (0 = unbounded, see SPEC_FULL.md Open Question Decision 1).
	CacheMaxEntries int `yaml:"cacheMaxEntries" default:"0"`
	// CacheTTLCap bounds expires_at_utc = insertion_time + min(ttl, CacheTTLCap) (spec.md §3).
	CacheTTLCap time.Duration `yaml:"cacheTTLCap" default:"24h"`
	// BogusCacheTTL is the short negative-cache TTL for Bogus verdicts
	// (spec.md §4.4, §9 Open Questions: "60s is a safe default").
	BogusCacheTTL time.Duration `yaml:"bogusCacheTTL" default:"60s"`

	// UseIPv6 enables AAAA glue/queries alongside A (teacher's useIPv6 flag).
	UseIPv6 bool `yaml:"useIPv6" default:"false"`
	// RequireDNSSEC, when true, turns Indeterminate/Bogus into hard failures
	// for every resolve rather than a per-call opt-in flag.
	RequireDNSSEC bool `yaml:"requireDNSSEC" default:"false"`

	// TrustAnchors are DS or DNSKEY records in zone-file format, externally
	// configured (spec.md §3 TrustAnchor, §6 configure(trust_anchors, ...)).
	TrustAnchors []string `yaml:"trustAnchors"`
	// RootHints are zone-file-format NS/A/AAAA records for the root servers.
	// When empty, the built-in hints package is used.
	RootHints []string `yaml:"rootHints"`
}

// DefaultConfig returns a Config populated entirely from field defaults.
func DefaultConfig() (*Config, error) {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		return nil, newResolverError(KindConfigError, "", err)
	}
	return c, nil
}

// LoadConfigFile reads and parses a YAML config file, applying defaults
// first so omitted fields keep their zero-value-safe defaults.
func LoadConfigFile(path string) (*Config, error) {
	c, err := DefaultConfig()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newResolverError(KindConfigError, "", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, newResolverError(KindConfigError, "", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks invariants that defaults/YAML can't enforce on their own.
func (c *Config) Validate() error {
	if c.MaxReferrals <= 0 {
		return newResolverError(KindConfigError, "", ErrConfig)
	}
	if c.FanOutDegree <= 0 {
		return newResolverError(KindConfigError, "", ErrConfig)
	}
	if c.HopTimeout <= 0 || c.ResolveTimeout <= 0 {
		return newResolverError(KindConfigError, "", ErrConfig)
	}
	return nil
}
