package embedding

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/lattice/internal/apperr"
)

// Options tunes a Service. Zero values disable the corresponding feature.
type Options struct {
	CacheSize         int
	RequestsPerMinute int
	BatchSize         int
	Timeout           time.Duration
	// Registerer receives the service metrics. Nil skips registration.
	Registerer prometheus.Registerer
}

// Stats is a point-in-time view of the service counters.
type Stats struct {
	Model       string `json:"model"`
	Dimensions  int    `json:"dimensions"`
	CacheSize   int    `json:"cacheSize"`
	CacheHits   int64  `json:"cacheHits"`
	CacheMisses int64  `json:"cacheMisses"`
	RateLimited int64  `json:"rateLimited"`
	Failures    int64  `json:"failures"`
	Breaker     string `json:"breaker"`
}

// Service wraps a Provider with a FIFO cache, a sliding-window request
// budget and a circuit breaker. Cache hits never consume budget.
type Service struct {
	provider  Provider
	cache     *Cache
	limiter   *Limiter
	breaker   *gobreaker.CircuitBreaker
	batchSize int
	timeout   time.Duration

	hits, misses, limited, failures atomic.Int64

	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewService builds a Service around p.
func NewService(p Provider, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	factory := promauto.With(opts.Registerer)

	s := &Service{
		provider:  p,
		cache:     NewCache(opts.CacheSize),
		limiter:   NewLimiter(opts.RequestsPerMinute),
		batchSize: opts.BatchSize,
		timeout:   opts.Timeout,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_embedding_requests_total",
			Help: "Embedding requests by outcome.",
		}, []string{"outcome"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lattice_embedding_provider_duration_seconds",
			Help:    "Latency of embedding provider calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("embedding: circuit breaker state change")
		},
	})
	return s
}

// Model identifies the embedding model. Stored vectors carry it so a model
// change can be detected.
func (s *Service) Model() string { return s.provider.Model() }

// Dimensions returns the provider's vector length.
func (s *Service) Dimensions() int { return s.provider.Dimensions() }

// Embed returns the vector for text, from cache when possible. Budget
// exhaustion yields a rate-limit error; provider failures are not retried.
func (s *Service) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("embed", "text is required")
	}
	key := CacheKey(s.provider.Model(), text)
	if vec, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		s.requests.WithLabelValues("cache_hit").Inc()
		return vec, nil
	}
	s.misses.Add(1)

	if ok, retry := s.limiter.Allow(); !ok {
		s.limited.Add(1)
		s.requests.WithLabelValues("rate_limited").Inc()
		return nil, apperr.RateLimit("embed", retry)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.provider.Embed(ctx, text)
	})
	s.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.failures.Add(1)
		s.requests.WithLabelValues("error").Inc()
		return nil, apperr.Upstream("embed", "embedding failed", err)
	}
	vec := out.([]float64)
	if len(vec) == 0 {
		s.failures.Add(1)
		s.requests.WithLabelValues("error").Inc()
		return nil, apperr.Upstream("embed", "provider returned an empty vector", nil)
	}

	s.requests.WithLabelValues("computed").Inc()
	s.cache.Put(key, vec)
	return clone(vec), nil
}

// EmbedBatch embeds texts in chunks of the configured batch size. Chunks run
// one after another; texts inside a chunk run concurrently. Results keep the
// input order and the first failure aborts the batch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				vec, err := s.Embed(gctx, texts[i])
				if err != nil {
					return err
				}
				out[i] = vec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Stats returns the current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Model:       s.provider.Model(),
		Dimensions:  s.provider.Dimensions(),
		CacheSize:   s.cache.Len(),
		CacheHits:   s.hits.Load(),
		CacheMisses: s.misses.Load(),
		RateLimited: s.limited.Load(),
		Failures:    s.failures.Load(),
		Breaker:     s.breaker.State().String(),
	}
}
