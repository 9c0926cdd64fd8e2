package dataloader

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WithTransport sets a custom transport, replacing the default net/http one
func WithTransport(transport Transport) Option {
	return func(s *Service) {
		s.transport = transport
	}
}

// WithHTTPClient routes transfers of the default transport through client
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithMaxConcurrentTransfers sets the ceiling on simultaneous transfers
func WithMaxConcurrentTransfers(n int) Option {
	return func(s *Service) {
		s.maxConcurrent = n
	}
}

// WithRateLimiter sets a custom rate limiter; nil disables rate limiting
func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Service) {
		s.rateLimiter = limiter
	}
}

// WithHostRate registers a per-host rate on the default limiter
func WithHostRate(host string, requestsPerSecond float64, burst int) Option {
	return func(s *Service) {
		if limiter, ok := s.rateLimiter.(*HostRateLimiter); ok {
			limiter.SetHostRate(host, requestsPerSecond, burst)
		}
	}
}

// WithResolver sets a custom host resolver
func WithResolver(resolver Resolver) Option {
	return func(s *Service) {
		s.resolver = resolver
	}
}

// WithHostOverrides routes the given hosts to fixed replacement addresses
func WithHostOverrides(overrides map[string]string) Option {
	return func(s *Service) {
		s.resolver = NewStaticResolver(overrides)
	}
}

// WithDNSResolver resolves hosts against the given DNS upstream, e.g.
// "1.1.1.1:53"
func WithDNSResolver(upstream string) Option {
	return func(s *Service) {
		s.resolver = NewDNSResolver(upstream)
	}
}

// WithUserAgent sets the User-Agent injected into requests that carry none
func WithUserAgent(userAgent string) Option {
	return func(s *Service) {
		s.userAgent = userAgent
	}
}

// WithAcceptLanguage sets the Accept-Language injected into requests that
// carry none
func WithAcceptLanguage(language string) Option {
	return func(s *Service) {
		s.acceptLanguage = language
	}
}

// WithDefaultTimeout sets the timeout applied to requests that set none
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.defaultTimeout = d
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(s *Service) {
		s.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(s *Service) {
		s.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(s *Service) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(s *Service) {
		s.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(s *Service) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.Enabled = true
		s.logger = NewSimpleLogger()
	}
}

// WithZapLogger enables debug logging through a zap logger
func WithZapLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.Enabled = true
		s.logger = NewZapLogger(logger)
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the service configuration and returns an
// error if invalid
func (s *Service) ValidateConfiguration() error {
	var errors []string

	// Validate each configuration section
	errors = append(errors, s.validateTransportConfig()...)
	errors = append(errors, s.validateRateLimiterConfig()...)
	errors = append(errors, s.validateHeaderConfig()...)
	errors = append(errors, s.validateDebugConfig()...)
	errors = append(errors, s.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

// validateTransportConfig validates transport-related configuration
func (s *Service) validateTransportConfig() []string {
	var errors []string

	if s.maxConcurrent <= 0 {
		errors = append(errors, "maxConcurrentTransfers must be positive")
	}

	if s.defaultTimeout < 0 {
		errors = append(errors, "defaultTimeout must not be negative")
	}

	return errors
}

// validateRateLimiterConfig validates rate limiter configuration
func (s *Service) validateRateLimiterConfig() []string {
	var errors []string

	if limiter, ok := s.rateLimiter.(*HostRateLimiter); ok {
		if limiter.fallback.perSecond <= 0 {
			errors = append(errors, "rateLimiter requestsPerSecond must be positive")
		}
		if limiter.fallback.burst <= 0 {
			errors = append(errors, "rateLimiter burst must be positive")
		}
	}

	return errors
}

// validateHeaderConfig validates default header configuration
func (s *Service) validateHeaderConfig() []string {
	var errors []string

	if s.userAgent == "" {
		errors = append(errors, "userAgent must not be empty")
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (s *Service) validateDebugConfig() []string {
	var errors []string

	if s.debug != nil && s.debug.Enabled {
		if s.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if s.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (s *Service) validateExtremeValues() []string {
	var errors []string

	if s.maxConcurrent > 10000 {
		errors = append(errors, "maxConcurrentTransfers > 10000 may exhaust sockets")
	}

	if s.defaultTimeout > 10*time.Minute {
		errors = append(errors, "defaultTimeout > 10m may cause requests to hang for too long")
	}

	return errors
}
