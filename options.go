package viralquill

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WithBearerToken sets the API credential. When absent (and no custom
// transport is supplied) the client runs in mock mode.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearerToken = token
	}
}

// WithBaseURL overrides the API root used by the default HTTP transport.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTransport sets a custom transport collaborator, replacing both the
// default HTTP transport and mock mode.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithQuotaConfig sets the consumption policy for the tracker the client
// creates. Ignored when WithQuotaTracker injects an existing instance.
func WithQuotaConfig(cfg QuotaConfig) Option {
	return func(c *Client) {
		c.quotaConfig = &cfg
	}
}

// WithQuotaTracker injects a shared tracker instance. Use this when several
// clients (or the owning service's background jobs) draw on one budget.
func WithQuotaTracker(t *QuotaTracker) Option {
	return func(c *Client) {
		c.quota = t
	}
}

// WithRetryConfig sets the retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithMaxRetries adjusts only the attempt budget of the retry policy.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.retryConfig.MaxRetries = n
	}
}

// WithLookupCache enables the TTL cache for batch lookups. Cached ids are
// served locally, recorded as cache hits, and cost no quota.
func WithLookupCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
		c.lookupCache = gocache.New(ttl, 2*ttl)
	}
}

// WithPacer smooths outgoing calls under a client-side token bucket so bursts
// do not slam into the platform's per-window limits. This sits below the
// quota gate; it spreads calls, it does not authorize them.
func WithPacer(rps float64, burst int) Option {
	return func(c *Client) {
		c.pacer = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics enables Prometheus metrics collection on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithZapLogger adapts a zap logger for debug output.
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = NewZapLogger(l)
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithClock injects a time source for the tracker and mock transport.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error aggregating every problem found, or nil.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateQuotaConfig()...)
	problems = append(problems, c.validateCacheConfig()...)
	problems = append(problems, c.validatePacerConfig()...)
	problems = append(problems, c.validateDebugConfig()...)

	if len(problems) > 0 {
		return fmt.Errorf("viralquill: configuration validation failed: %v", problems)
	}
	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.retryConfig.MaxRetries < 0 {
		problems = append(problems, "MaxRetries must be non-negative")
	}
	if c.retryConfig.BaseDelay <= 0 {
		problems = append(problems, "BaseDelay must be positive")
	}
	if c.retryConfig.MaxDelay < c.retryConfig.BaseDelay {
		problems = append(problems, "MaxDelay must be greater than or equal to BaseDelay")
	}
	if c.retryConfig.Multiplier <= 0 {
		problems = append(problems, "Multiplier must be positive")
	}
	if c.retryConfig.MaxRetries > 100 {
		problems = append(problems, "MaxRetries > 100 may cause excessive resource usage")
	}
	if c.retryConfig.MaxDelay > time.Hour {
		problems = append(problems, "MaxDelay > 1h may cause extremely long delays")
	}

	return problems
}

func (c *Client) validateQuotaConfig() []string {
	var problems []string

	cfg := c.quota.Config()
	if cfg.MonthlyReadCap <= 0 {
		problems = append(problems, "MonthlyReadCap must be positive")
	}
	if cfg.MonthlyWriteCap <= 0 {
		problems = append(problems, "MonthlyWriteCap must be positive")
	}
	if cfg.ReservePercent < 0 || cfg.ReservePercent >= 1 {
		problems = append(problems, "ReservePercent must be in [0, 1)")
	}
	if cfg.WarningThreshold <= 0 || cfg.WarningThreshold >= cfg.CriticalThreshold {
		problems = append(problems, "WarningThreshold must be positive and below CriticalThreshold")
	}
	if cfg.CriticalThreshold > 1 {
		problems = append(problems, "CriticalThreshold must not exceed 1")
	}
	if cfg.PowerUserBuffer <= 0 {
		problems = append(problems, "PowerUserBuffer must be positive")
	}

	return problems
}

func (c *Client) validateCacheConfig() []string {
	var problems []string

	if c.lookupCache != nil && c.cacheTTL <= 0 {
		problems = append(problems, "cache TTL must be positive when the lookup cache is enabled")
	}

	return problems
}

func (c *Client) validatePacerConfig() []string {
	var problems []string

	if c.pacer != nil {
		if c.pacer.Limit() <= 0 {
			problems = append(problems, "pacer rate must be positive")
		}
		if c.pacer.Burst() <= 0 {
			problems = append(problems, "pacer burst must be positive")
		}
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
