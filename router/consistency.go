package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/notargets/gridrouter/comm"
)

// ErrAsymmetric is wrapped by the error returned when a fatal consistency
// check finds a one-way route
var ErrAsymmetric = errors.New("asymmetric communication graph")

// Mismatch is a destination that does not list the sender among its own
// destinations
type Mismatch struct {
	Rank        int
	Destination int
}

func (m Mismatch) String() string {
	return fmt.Sprintf("rank %d sends to rank %d but not vice-versa", m.Rank, m.Destination)
}

// DiagnosticSink receives consistency check findings
type DiagnosticSink interface {
	Asymmetric(m Mismatch)
}

// LogSink writes findings to a logger
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Asymmetric(m Mismatch) {
	s.Logger.Printf("routing consistency check FAILED: %s", m)
}

// AsymmetryError lists the one-way routes found on this rank
type AsymmetryError struct {
	Mismatches []Mismatch
}

func (e *AsymmetryError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("%v: %s", ErrAsymmetric, strings.Join(parts, "; "))
}

func (e *AsymmetryError) Unwrap() error { return ErrAsymmetric }

// checkConsistency gathers every rank's destination list and verifies that
// each of this rank's destinations sends back. Lists are padded with
// NoDestination to the largest out-degree so records have a fixed size.
func checkConsistency(ctx context.Context, g comm.Group, destinations []int) ([]Mismatch, error) {
	degrees, err := g.AllGather(ctx, []int64{int64(len(destinations))})
	if err != nil {
		return nil, fmt.Errorf("gather out-degrees: %w", err)
	}
	maxSend := 0
	for _, d := range degrees {
		if int(d) > maxSend {
			maxSend = int(d)
		}
	}

	record := make([]int64, maxSend)
	for i := range record {
		if i < len(destinations) {
			record[i] = int64(destinations[i])
		} else {
			record[i] = NoDestination
		}
	}
	allSends, err := g.AllGather(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("gather destination lists: %w", err)
	}

	me := int64(g.Rank())
	var mismatches []Mismatch
	for _, target := range destinations {
		found := false
		for _, back := range allSends[target*maxSend : (target+1)*maxSend] {
			if back == me {
				found = true
				break
			}
		}
		if !found {
			mismatches = append(mismatches, Mismatch{Rank: g.Rank(), Destination: target})
		}
	}
	return mismatches, nil
}
