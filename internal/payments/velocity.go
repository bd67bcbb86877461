package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// VelocityChecker rate-limits booking-fee attempts per phone number to slow
// down card-testing and prompt-spamming abuse.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity limits.
type VelocityConfig struct {
	MaxAttemptsPerPhone int
	AttemptWindow       time.Duration
	Enabled             bool
}

// DefaultVelocityConfig returns the deployment defaults.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxAttemptsPerPhone: 5,
		AttemptWindow:       24 * time.Hour,
		Enabled:             true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a velocity checker backed by redis.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckPaymentAttempt counts an initiation attempt for the phone and reports
// whether it is still within the window limit. Fails open when redis is
// degraded; limiting is a guard rail, not a dependency.
func (v *VelocityChecker) CheckPaymentAttempt(ctx context.Context, phone string) (*VelocityResult, error) {
	ctx, span := serviceTracer.Start(ctx, "velocity.check_attempt")
	defer span.End()
	span.SetAttributes(attribute.String("velocity.check_type", "payment_attempt"))

	if !v.config.Enabled || v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	key := fmt.Sprintf("velocity:payment:%s", phone)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.AttemptWindow)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxAttemptsPerPhone,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxAttemptsPerPhone,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d payment attempts in %s", v.config.MaxAttemptsPerPhone, v.config.AttemptWindow)
		v.logger.Warn("payment attempt velocity exceeded",
			"phone", phone,
			"count", count,
			"max", v.config.MaxAttemptsPerPhone,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// ResetPaymentVelocity clears the counter for a phone (admin use).
func (v *VelocityChecker) ResetPaymentVelocity(ctx context.Context, phone string) error {
	if v.redis == nil {
		return nil
	}
	key := fmt.Sprintf("velocity:payment:%s", phone)
	return v.redis.Del(ctx, key).Err()
}

// incrementAndGet increments a counter and returns the new value with expiry.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment.
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
