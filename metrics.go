package resolvd

import "github.com/prometheus/client_golang/prometheus"

// cacheMetrics instruments C1, grounded on 0xERR0R/blocky/resolver/metrics.go
// (a small set of prometheus counters registered lazily so package use
// outside of a full resolver, e.g. in unit tests, never panics on double
// registration).
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	inserts   prometheus.Counter
	evictions prometheus.Counter
}

func newCacheMetrics() *cacheMetrics {
	m := &cacheMetrics{
		hits:      prometheus.NewCounter(prometheus.CounterOpts{Name: "resolvd_cache_hits_total", Help: "Cache lookups that returned an unexpired entry."}),
		misses:    prometheus.NewCounter(prometheus.CounterOpts{Name: "resolvd_cache_misses_total", Help: "Cache lookups that found nothing or an expired entry."}),
		inserts:   prometheus.NewCounter(prometheus.CounterOpts{Name: "resolvd_cache_inserts_total", Help: "Entries written to the cache (superseding inserts included)."}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{Name: "resolvd_cache_evictions_total", Help: "Entries evicted by the LRU cap or a sweep pass."}),
	}
	// Best-effort registration: a second Cache in the same process (e.g. in
	// tests) must not panic the caller.
	_ = prometheus.Register(m.hits)
	_ = prometheus.Register(m.misses)
	_ = prometheus.Register(m.inserts)
	_ = prometheus.Register(m.evictions)
	return m
}

func (m *cacheMetrics) observeHit()      { m.hits.Inc() }
func (m *cacheMetrics) observeMiss()     { m.misses.Inc() }
func (m *cacheMetrics) observeInsert()   { m.inserts.Inc() }
func (m *cacheMetrics) observeEviction() { m.evictions.Inc() }

// verdictMetrics instruments C4/C5: a verdict counter vector so operators
// can alert on a rising Bogus rate.
type verdictMetrics struct {
	verdicts *prometheus.CounterVec
}

func newVerdictMetrics() *verdictMetrics {
	vm := &verdictMetrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolvd_resolve_verdicts_total",
			Help: "Resolve outcomes by DNSSEC validation verdict.",
		}, []string{"verdict"}),
	}
	_ = prometheus.Register(vm.verdicts)
	return vm
}

func (vm *verdictMetrics) observe(v Verdict) {
	vm.verdicts.WithLabelValues(v.String()).Inc()
}
