package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrSinkUnavailable is returned while the breaker is open.
var ErrSinkUnavailable = errors.New("audit sink unavailable")

// BreakerSink guards a remote sink with a circuit breaker so that an outage
// costs one fast failure per event instead of one timeout per event.
type BreakerSink struct {
	next     Sink
	cb       *gobreaker.CircuitBreaker
	name     string
	rejected metric.Int64Counter
}

type BreakerConfig struct {
	Name             string
	Timeout          time.Duration
	FailureThreshold uint32
}

func NewBreakerSink(next Sink, cfg BreakerConfig, logger zerolog.Logger) *BreakerSink {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("audit sink breaker state changed")
		},
	}

	// The global meter provider is a no-op unless one is installed.
	rejected, _ := otel.Meter("audit-breaker").Int64Counter("audit_breaker_rejections_total",
		metric.WithDescription("Audit events rejected by an open breaker"))

	return &BreakerSink{
		next:     next,
		cb:       gobreaker.NewCircuitBreaker(settings),
		name:     cfg.Name,
		rejected: rejected,
	}
}

func (s *BreakerSink) Write(ctx context.Context, e Event) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Write(ctx, e)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if s.rejected != nil {
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("name", s.name)))
		}
		return fmt.Errorf("%s: %w", s.name, ErrSinkUnavailable)
	}
	return err
}

// State reports the breaker state for health endpoints.
func (s *BreakerSink) State() string {
	return s.cb.State().String()
}
