package router

import (
	"fmt"
	"log"

	"github.com/notargets/gridrouter/grid"
	"github.com/notargets/gridrouter/metrics"
)

const (
	// DefaultMargin is added to the sum of two bounding-sphere radii when
	// deciding whether two ranks may share halo cells. It must be at least
	// the reach of the stencil or true neighbors are missed.
	DefaultMargin = 2.0

	// DefaultEpsilon grows a candidate's sphere when selecting the cells to
	// request from it, absorbing rounding in the center computation
	DefaultEpsilon = 1e-5

	// TagSizes and TagRequests are the message tags of the two exchange rounds
	TagSizes    = 78539
	TagRequests = 78540

	// NoDestination pads destination lists in the consistency check
	NoDestination = -1
)

// Severity selects what happens when the consistency check finds a rank
// that is sent to but does not send back
type Severity int

const (
	SeverityFatal Severity = iota // BuildRoutingTable fails with ErrAsymmetric
	SeverityWarn                  // Mismatches are only reported
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityWarn:
		return "warn"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity accepts "fatal" or "warn"
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "fatal", "":
		return SeverityFatal, nil
	case "warn", "warning":
		return SeverityWarn, nil
	default:
		return 0, fmt.Errorf("unknown consistency severity %q", s)
	}
}

// Config controls routing table construction
type Config struct {
	Stencil     grid.Stencil // Defaults to grid.Face6
	Margin      float64      // Discovery margin, >= 0. Zero is honored.
	Epsilon     float64      // Request selection tolerance. Zero selects DefaultEpsilon.
	Consistency Severity

	Sink    DiagnosticSink  // Receives consistency mismatches. Defaults to a LogSink on Logger.
	Logger  *log.Logger     // Defaults to log.Default()
	Verbose bool            // Log a per-rank trace of the build
	Metrics *metrics.Router // Optional
}

// DefaultConfig returns the face stencil with the reference margin and a
// fatal consistency check
func DefaultConfig() Config {
	return Config{
		Stencil:     grid.Face6,
		Margin:      DefaultMargin,
		Epsilon:     DefaultEpsilon,
		Consistency: SeverityFatal,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.Margin < 0 {
		return c, fmt.Errorf("negative discovery margin %v", c.Margin)
	}
	if c.Epsilon < 0 {
		return c, fmt.Errorf("negative request epsilon %v", c.Epsilon)
	}
	if c.Epsilon == 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.Stencil == nil {
		c.Stencil = grid.Face6
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Sink == nil {
		c.Sink = LogSink{Logger: c.Logger}
	}
	return c, nil
}
