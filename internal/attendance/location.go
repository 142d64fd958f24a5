package attendance

import (
	"context"
	"time"

	"attendx/internal/model"
)

// FixOptions mirrors the knobs a positioning backend exposes.
type FixOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge allows a cached fix no older than this. Zero demands a
	// fresh fix.
	MaximumAge time.Duration
}

// LocationProvider acquires the submitting client's position. Implementations
// wrap whatever the deployment has: a browser bridge, a kiosk GPS, a test stub.
type LocationProvider interface {
	CurrentPosition(ctx context.Context, opts FixOptions) (model.Location, error)
}

// Two-tier acquisition defaults: a short high-accuracy attempt, then one
// relaxed retry tolerating a cached position.
const (
	highAccuracyTimeout = 10 * time.Second
	relaxedTimeout      = 15 * time.Second
	cachedFixWindow     = 30 * time.Second
)

// AcquirePosition runs the two-tier strategy against the provider. Context
// cancellation aborts the in-flight fetch and is reported as-is, not as a
// validation failure.
func AcquirePosition(ctx context.Context, provider LocationProvider) (model.Location, error) {
	tiers := []FixOptions{
		{HighAccuracy: true, Timeout: highAccuracyTimeout},
		{HighAccuracy: false, Timeout: relaxedTimeout, MaximumAge: cachedFixWindow},
	}
	for _, opts := range tiers {
		fixCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		loc, err := provider.CurrentPosition(fixCtx, opts)
		cancel()
		if err == nil {
			return loc, nil
		}
		if ctx.Err() != nil {
			return model.Location{}, ctx.Err()
		}
	}
	return model.Location{}, failf(KindLocationUnavailable,
		"Location access denied. Attendance cannot be verified.")
}
