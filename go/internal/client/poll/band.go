// Package poll schedules snapshot refreshes at a cadence that tightens as a
// lot approaches its close.
package poll

import (
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
)

type Band int

const (
	BandIdle Band = iota
	BandSlow
	BandMedium
	BandFast
	BandBurst
	BandExtension
)

func (b Band) String() string {
	switch b {
	case BandIdle:
		return "idle"
	case BandSlow:
		return "slow"
	case BandMedium:
		return "medium"
	case BandFast:
		return "fast"
	case BandBurst:
		return "burst"
	case BandExtension:
		return "extension"
	default:
		return "unknown"
	}
}

// Bands holds refresh intervals and the remaining-time thresholds between them.
type Bands struct {
	Slow      time.Duration `yaml:"slow"`
	Medium    time.Duration `yaml:"medium"`
	Fast      time.Duration `yaml:"fast"`
	Burst     time.Duration `yaml:"burst"`
	Extension time.Duration `yaml:"extension"`

	SlowAbove   time.Duration `yaml:"slow_above"`
	MediumAbove time.Duration `yaml:"medium_above"`
	FastAbove   time.Duration `yaml:"fast_above"`
	// ExtensionMargin is added to an observed extension's bonus to decide how
	// long the extension band lasts.
	ExtensionMargin time.Duration `yaml:"extension_margin"`
}

func DefaultBands() Bands {
	return Bands{
		Slow:            10 * time.Second,
		Medium:          3 * time.Second,
		Fast:            2 * time.Second,
		Burst:           time.Second,
		Extension:       500 * time.Millisecond,
		SlowAbove:       time.Minute,
		MediumAbove:     30 * time.Second,
		FastAbove:       10 * time.Second,
		ExtensionMargin: 2 * time.Second,
	}
}

// Interval returns the refresh period for b. Idle has none.
func (c Bands) Interval(b Band) time.Duration {
	switch b {
	case BandSlow:
		return c.Slow
	case BandMedium:
		return c.Medium
	case BandFast:
		return c.Fast
	case BandBurst:
		return c.Burst
	case BandExtension:
		return c.Extension
	default:
		return 0
	}
}

// Inputs is everything SelectBand looks at.
type Inputs struct {
	Status    models.LotStatus
	Remaining time.Duration
	// InExtension is true while an observed extension's window is open.
	InExtension bool
}

// SelectBand maps the lot's situation to a refresh band.
func SelectBand(in Inputs, c Bands) Band {
	switch in.Status {
	case models.LotStatusEnded, models.LotStatusCancelled:
		return BandIdle
	case models.LotStatusScheduled:
		return BandSlow
	}
	if in.InExtension {
		return BandExtension
	}
	switch {
	case in.Remaining > c.SlowAbove:
		return BandSlow
	case in.Remaining > c.MediumAbove:
		return BandMedium
	case in.Remaining > c.FastAbove:
		return BandFast
	default:
		// Includes a passed deadline that has not been confirmed closed yet.
		return BandBurst
	}
}
