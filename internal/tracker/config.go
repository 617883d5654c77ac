package tracker

import (
	"errors"
	"fmt"
	"time"
)

// ErrResourceLoad is returned when the element-set text cannot be obtained,
// or when it held complete records but none of them could be tracked.
var ErrResourceLoad = errors.New("resource load failed")

// Defaults for Config.
const (
	DefaultTickInterval      = time.Second
	DefaultTrailCapacity     = 50
	DefaultMaxTrackedObjects = 200
)

// Config controls the tracking loop.
type Config struct {
	// TickInterval is the period between ticks.
	TickInterval time.Duration
	// TrailCapacity bounds the ground-track history kept per object.
	TrailCapacity int
	// MaxTrackedObjects keeps the first N trackable records in parse
	// order. Zero means no limit.
	MaxTrackedObjects int
}

// DefaultConfig returns the default tracking configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:      DefaultTickInterval,
		TrailCapacity:     DefaultTrailCapacity,
		MaxTrackedObjects: DefaultMaxTrackedObjects,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.TrailCapacity <= 0 {
		return fmt.Errorf("trail capacity must be positive, got %d", c.TrailCapacity)
	}
	if c.MaxTrackedObjects < 0 {
		return fmt.Errorf("max tracked objects must not be negative, got %d", c.MaxTrackedObjects)
	}
	return nil
}
