package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultWireDepth is the number of messages a wire buffers before Isend blocks
const DefaultWireDepth = 64

// tagAllGather is reserved for the all-gather collective; user tags are >= 0
const tagAllGather = -1

type wireKey struct {
	src, dst, tag int
}

// World connects Size in-process ranks. Messages on one wire are delivered in
// the order they were sent.
type World struct {
	size  int
	depth int

	mu    sync.Mutex
	wires map[wireKey]chan []int64
}

// NewWorld creates a world of size ranks
func NewWorld(size int) (*World, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid world size %d", size)
	}
	return &World{
		size:  size,
		depth: DefaultWireDepth,
		wires: make(map[wireKey]chan []int64),
	}, nil
}

// Size returns the number of ranks
func (w *World) Size() int { return w.size }

// Group returns the endpoint of one rank
func (w *World) Group(rank int) Group {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("rank %d outside world of size %d", rank, w.size))
	}
	return &endpoint{world: w, rank: rank}
}

func (w *World) wire(src, dst, tag int) chan []int64 {
	key := wireKey{src: src, dst: dst, tag: tag}
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.wires[key]
	if !ok {
		ch = make(chan []int64, w.depth)
		w.wires[key] = ch
	}
	return ch
}

// Run starts one goroutine per rank of a new World and waits for all of them.
// The first rank to fail cancels the context handed to the others, so peers
// blocked on that rank return instead of hanging.
func Run(ctx context.Context, size int, fn func(ctx context.Context, g Group) error) error {
	w, err := NewWorld(size)
	if err != nil {
		return err
	}
	eg, ectx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		g := w.Group(rank)
		eg.Go(func() error {
			if err := fn(ectx, g); err != nil {
				return fmt.Errorf("rank %d: %w", g.Rank(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// endpoint is one rank's Group in a World
type endpoint struct {
	world *World
	rank  int
}

func (e *endpoint) Rank() int { return e.rank }

func (e *endpoint) Size() int { return e.world.size }

func (e *endpoint) checkPeer(op string, peer, tag int) error {
	if peer < 0 || peer >= e.world.size {
		return &TransportError{Op: op, Rank: e.rank, Peer: peer, Tag: tag, Err: ErrInvalidRank}
	}
	return nil
}

func (e *endpoint) Isend(ctx context.Context, dest, tag int, buf []int64) Request {
	if err := e.checkPeer("send", dest, tag); err != nil {
		return Completed(err)
	}
	msg := make([]int64, len(buf))
	copy(msg, buf)

	select {
	case e.world.wire(e.rank, dest, tag) <- msg:
		return Completed(nil)
	case <-ctx.Done():
		return Completed(&TransportError{Op: "send", Rank: e.rank, Peer: dest, Tag: tag, Err: ctx.Err()})
	}
}

func (e *endpoint) Irecv(ctx context.Context, src, tag int, buf []int64) Request {
	if err := e.checkPeer("recv", src, tag); err != nil {
		return Completed(err)
	}
	req := newRequest()
	ch := e.world.wire(src, e.rank, tag)
	go func() {
		select {
		case msg := <-ch:
			if len(msg) != len(buf) {
				req.complete(&TransportError{Op: "recv", Rank: e.rank, Peer: src, Tag: tag,
					Err: fmt.Errorf("%w: got %d words, expected %d", ErrLengthMismatch, len(msg), len(buf))})
				return
			}
			copy(buf, msg)
			req.complete(nil)
		case <-ctx.Done():
			req.complete(&TransportError{Op: "recv", Rank: e.rank, Peer: src, Tag: tag, Err: ctx.Err()})
		}
	}()
	return req
}

func (e *endpoint) AllGather(ctx context.Context, record []int64) ([]int64, error) {
	n := len(record)
	size := e.world.size
	out := make([]int64, n*size)
	copy(out[e.rank*n:], record)

	reqs := make([]Request, 0, 2*(size-1))
	for peer := 0; peer < size; peer++ {
		if peer == e.rank {
			continue
		}
		reqs = append(reqs, e.Irecv(ctx, peer, tagAllGather, out[peer*n:(peer+1)*n]))
	}
	for peer := 0; peer < size; peer++ {
		if peer == e.rank {
			continue
		}
		reqs = append(reqs, e.Isend(ctx, peer, tagAllGather, record))
	}
	if err := WaitAll(reqs); err != nil {
		return nil, fmt.Errorf("allgather: %w", err)
	}
	return out, nil
}
