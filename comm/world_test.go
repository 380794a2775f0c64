package comm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorld_SendRecv(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx := context.Background()
	g0, g1 := w.Group(0), w.Group(1)

	buf := make([]int64, 3)
	recv := g1.Irecv(ctx, 0, 7, buf)
	send := g0.Isend(ctx, 1, 7, []int64{4, 5, 6})

	require.NoError(t, WaitAll([]Request{send, recv}))
	assert.Equal(t, []int64{4, 5, 6}, buf)
}

func TestWorld_SendBufferReusable(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx := context.Background()

	src := []int64{1, 2}
	require.NoError(t, w.Group(0).Isend(ctx, 1, 0, src).Wait())
	src[0] = 99

	buf := make([]int64, 2)
	require.NoError(t, w.Group(1).Irecv(ctx, 0, 0, buf).Wait())
	assert.Equal(t, []int64{1, 2}, buf)
}

func TestWorld_ZeroLengthMessage(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx := context.Background()

	backing := make([]int64, 1)
	recv := w.Group(1).Irecv(ctx, 0, 3, backing[1:])
	send := w.Group(0).Isend(ctx, 1, 3, nil)
	assert.NoError(t, WaitAll([]Request{send, recv}))
}

func TestWorld_OrderPreservedPerWire(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := int64(0); i < 10; i++ {
		require.NoError(t, w.Group(0).Isend(ctx, 1, 1, []int64{i}).Wait())
	}
	for i := int64(0); i < 10; i++ {
		buf := make([]int64, 1)
		require.NoError(t, w.Group(1).Irecv(ctx, 0, 1, buf).Wait())
		assert.Equal(t, i, buf[0])
	}
}

func TestWorld_TagsDisambiguate(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.Group(0).Isend(ctx, 1, 2, []int64{22}).Wait())
	require.NoError(t, w.Group(0).Isend(ctx, 1, 1, []int64{11}).Wait())

	a, b := make([]int64, 1), make([]int64, 1)
	require.NoError(t, w.Group(1).Irecv(ctx, 0, 1, a).Wait())
	require.NoError(t, w.Group(1).Irecv(ctx, 0, 2, b).Wait())
	assert.Equal(t, int64(11), a[0])
	assert.Equal(t, int64(22), b[0])
}

func TestWorld_LengthMismatch(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.Group(0).Isend(ctx, 1, 0, []int64{1, 2, 3}).Wait())
	err = w.Group(1).Irecv(ctx, 0, 0, make([]int64, 2)).Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
	assert.True(t, IsTransportError(err))
}

func TestWorld_InvalidPeer(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	err = w.Group(0).Isend(context.Background(), 5, 0, nil).Wait()
	assert.True(t, errors.Is(err, ErrInvalidRank))

	_, err = NewWorld(0)
	assert.Error(t, err)
}

func TestWorld_RecvCancelled(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = w.Group(1).Irecv(ctx, 0, 0, make([]int64, 1)).Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRun_AllGather(t *testing.T) {
	const size = 5
	results := make([][]int64, size)
	err := Run(context.Background(), size, func(ctx context.Context, g Group) error {
		rank := int64(g.Rank())
		all, err := g.AllGather(ctx, []int64{rank, rank * rank})
		if err != nil {
			return err
		}
		results[g.Rank()] = all
		return nil
	})
	require.NoError(t, err)

	expected := []int64{0, 0, 1, 1, 2, 4, 3, 9, 4, 16}
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, expected, results[rank], "rank %d", rank)
	}
}

func TestRun_RepeatedCollectivesStayOrdered(t *testing.T) {
	err := Run(context.Background(), 3, func(ctx context.Context, g Group) error {
		for round := int64(0); round < 4; round++ {
			all, err := g.AllGather(ctx, []int64{round})
			if err != nil {
				return err
			}
			for _, v := range all {
				if v != round {
					return errors.New("collective rounds interleaved")
				}
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestRun_FailureReleasesPeers(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), 3, func(ctx context.Context, g Group) error {
		if g.Rank() == 0 {
			return boom
		}
		// never satisfied: rank 0 does not participate
		_, err := g.AllGather(ctx, []int64{1})
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom) || IsTransportError(err))
}
