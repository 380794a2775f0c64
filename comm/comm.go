// Package comm defines the process group the router communicates over: a
// fixed set of ranks exchanging tagged int64 buffers point to point, plus an
// all-gather collective. World is an in-process implementation where every
// rank is a goroutine and every (source, destination, tag) triple is a wire.
package comm

import (
	"context"
	"errors"
	"fmt"
)

// Request is an in-flight non-blocking operation
type Request interface {
	// Wait blocks until the operation completes and reports its outcome
	Wait() error
}

// Group is one rank's view of the process group. A Group is used by a single
// goroutine; the router never issues operations on it concurrently.
type Group interface {
	Rank() int
	Size() int

	// AllGather contributes record and returns the records of every rank
	// concatenated in rank order. Every rank must pass a record of the same length.
	AllGather(ctx context.Context, record []int64) ([]int64, error)

	// Isend posts a send of buf to dest. buf may be reused once Isend returns.
	Isend(ctx context.Context, dest, tag int, buf []int64) Request

	// Irecv posts a receive from src into buf. The message must be exactly
	// len(buf) words long. buf must not be touched until the request completes.
	Irecv(ctx context.Context, src, tag int, buf []int64) Request
}

var (
	// ErrLengthMismatch is reported when a message does not fit its receive buffer
	ErrLengthMismatch = errors.New("message length mismatch")

	// ErrInvalidRank is reported for peers outside [0, Size)
	ErrInvalidRank = errors.New("invalid rank")
)

// TransportError describes a failed send, receive or collective. Transport
// failures are fatal to the operation that observed them.
type TransportError struct {
	Op   string
	Rank int
	Peer int
	Tag  int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Peer < 0 {
		return fmt.Sprintf("rank %d: %s (tag %d): %v", e.Rank, e.Op, e.Tag, e.Err)
	}
	return fmt.Sprintf("rank %d: %s peer %d (tag %d): %v", e.Rank, e.Op, e.Peer, e.Tag, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err carries a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// WaitAll waits for every request, even after a failure, and returns the
// first error observed
func WaitAll(reqs []Request) error {
	var first error
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// request is a Request completed by closing done
type request struct {
	done chan struct{}
	err  error
}

func newRequest() *request {
	return &request{done: make(chan struct{})}
}

func (r *request) complete(err error) {
	r.err = err
	close(r.done)
}

func (r *request) Wait() error {
	<-r.done
	return r.err
}

// Completed returns a request that has already finished with err
func Completed(err error) Request {
	r := newRequest()
	r.complete(err)
	return r
}
