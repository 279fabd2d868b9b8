package queue

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"go-blur-halo/pkg/comm"
)

func newTestClients(t *testing.T, size int, compress bool) []*RedisClient {
	t.Helper()
	mr := miniredis.RunT(t)

	clients := make([]*RedisClient, size)
	for rank := range clients {
		rc, err := newClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}),
			Options{Addr: mr.Addr(), RunID: "test", Compress: compress}, rank)
		require.NoError(t, err)
		t.Cleanup(func() { rc.Close() })
		clients[rank] = rc
	}
	return clients
}

func TestSendRecvInOrder(t *testing.T) {
	for _, compress := range []bool{false, true} {
		clients := newTestClients(t, 2, compress)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		for i := 0; i < 3; i++ {
			require.NoError(t, clients[0].Send(ctx, 1, 7, []byte{byte(i), 0xAA}))
		}
		require.NoError(t, clients[0].Send(ctx, 1, 8, nil))

		empty, err := clients[1].Recv(ctx, 0, 8)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for i := 0; i < 3; i++ {
			got, err := clients[1].Recv(ctx, 0, 7)
			require.NoError(t, err)
			assert.Equal(t, []byte{byte(i), 0xAA}, got, "compress=%v", compress)
		}
		cancel()
	}
}

func TestRecvWaitsForSend(t *testing.T) {
	clients := newTestClients(t, 2, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan []byte, 1)
	go func() {
		got, err := clients[1].Recv(ctx, 0, 1)
		assert.NoError(t, err)
		done <- got
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, clients[0].Send(ctx, 1, 1, []byte("row")))

	select {
	case got := <-done:
		assert.Equal(t, "row", string(got))
	case <-ctx.Done():
		t.Fatal("receive never completed")
	}
}

func TestCollectivesOverRedis(t *testing.T) {
	const size = 3
	clients := newTestClients(t, size, true)
	original := bytes.Repeat([]byte{1, 2, 3, 4, 5, 6, 7}, 5)
	counts := []int{14, 14, 7}
	displs := []int{0, 14, 28}
	result := make([]byte, len(original))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		c, err := comm.New(rank, size, clients[rank])
		require.NoError(t, err)
		g.Go(func() error {
			if err := comm.Barrier(ctx, c); err != nil {
				return err
			}
			var global, out []byte
			if c.Rank() == 0 {
				global, out = original, result
			}
			local, err := comm.Scatterv(ctx, c, 0, global, counts, displs)
			if err != nil {
				return err
			}
			return comm.Gatherv(ctx, c, 0, local, out, counts, displs)
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, original, result)
}

func TestRunInfo(t *testing.T) {
	clients := newTestClients(t, 1, false)
	ctx := context.Background()
	rc := clients[0]

	_, err := rc.GetRunInfo(ctx)
	assert.ErrorIs(t, err, redis.Nil)

	info := &RunInfo{RunID: "test", Filter: "blur", Workers: 4, Width: 8, Height: 6, Channels: 3, Digest: 42,
		StartTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	require.NoError(t, rc.StoreRunInfo(ctx, info))

	got, err := rc.GetRunInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	done, err := rc.IsRunCompleted(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, rc.MarkRunCompleted(ctx))
	done, err = rc.IsRunCompleted(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestJoinRunRefusesReusedRunID(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	join := func(run string, rank int) error {
		rc, err := newClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}),
			Options{Addr: mr.Addr(), RunID: run}, rank)
		require.NoError(t, err)
		defer rc.Close()
		if err := rc.JoinRun(ctx); err != nil {
			return err
		}
		return rc.Send(ctx, 1-rank, 0, []byte(run))
	}

	require.NoError(t, join("first", 0))
	require.NoError(t, join("first", 1))

	assert.ErrorIs(t, join("first", 0), ErrRunExists)
	assert.ErrorIs(t, join("first", 1), ErrRunExists)
	assert.NoError(t, join("second", 0))
}

func TestRecvStopsOnCancel(t *testing.T) {
	clients := newTestClients(t, 2, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := clients[1].Recv(ctx, 0, 3)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * pollBlock):
		t.Fatal("receive did not return after cancel")
	}
}
