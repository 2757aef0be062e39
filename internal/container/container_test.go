package container_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/connpool/internal/container"
	"golang.org/x/sync/errgroup"
)

func TestContainer_Add(t *testing.T) {
	t.Parallel()

	t.Run("registers item as member and free", func(t *testing.T) {
		c := container.New[string](2, nil)

		require.NoError(t, c.Add(1, "a"))

		assert.True(t, c.Contains(1))
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, 1, c.FreeLen())
	})

	t.Run("duplicate add is a no-op", func(t *testing.T) {
		c := container.New[string](2, nil)
		require.NoError(t, c.Add(1, "a"))

		require.NoError(t, c.Add(1, "a"))

		assert.Equal(t, 1, c.Len())
		assert.Equal(t, 1, c.FreeLen(), "duplicate must not be enqueued twice")
	})

	t.Run("fails with ErrFull at max size", func(t *testing.T) {
		c := container.New[string](1, nil)
		require.NoError(t, c.Add(1, "a"))

		err := c.Add(2, "b")

		require.ErrorIs(t, err, container.ErrFull)
		assert.False(t, c.Contains(2))
		assert.Equal(t, 1, c.FreeLen())
	})

	t.Run("fails with ErrClosed after drain", func(t *testing.T) {
		c := container.New[string](1, nil)
		c.Drain()

		require.ErrorIs(t, c.Add(1, "a"), container.ErrClosed)
	})
}

func TestContainer_Get(t *testing.T) {
	t.Parallel()

	t.Run("non-blocking get on empty fails with ErrEmpty", func(t *testing.T) {
		c := container.New[string](1, nil)

		_, _, err := c.Get(context.Background(), false, 0)

		require.ErrorIs(t, err, container.ErrEmpty)
	})

	t.Run("blocking get times out with ErrEmpty", func(t *testing.T) {
		c := container.New[string](1, nil)

		start := time.Now()
		_, _, err := c.Get(context.Background(), true, 30*time.Millisecond)

		require.ErrorIs(t, err, container.ErrEmpty)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("blocking get returns context error when ctx ends first", func(t *testing.T) {
		c := container.New[string](1, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := c.Get(ctx, true, time.Second)

		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("blocking get wakes on return", func(t *testing.T) {
		// Given
		c := container.New[string](1, nil)
		require.NoError(t, c.Add(7, "a"))
		id, _, err := c.Get(context.Background(), false, 0)
		require.NoError(t, err)

		got := make(chan int, 1)
		go func() {
			id, _, err := c.Get(context.Background(), true, 0)
			if err == nil {
				got <- id
			}
		}()
		require.Never(t, func() bool { return len(got) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

		// When
		require.True(t, c.Return(id))

		// Then
		select {
		case id := <-got:
			assert.Equal(t, 7, id)
		case <-time.After(time.Second):
			t.Fatal("blocked get was not woken by return")
		}
	})

	t.Run("drain releases blocked get with ErrClosed", func(t *testing.T) {
		c := container.New[string](1, nil)
		errs := make(chan error, 1)
		go func() {
			_, _, err := c.Get(context.Background(), true, 0)
			errs <- err
		}()
		time.Sleep(20 * time.Millisecond)

		c.Drain()

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, container.ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("blocked get was not released by drain")
		}
	})
}

func TestContainer_Return(t *testing.T) {
	t.Parallel()

	t.Run("rejects unknown id without touching the free-list", func(t *testing.T) {
		c := container.New[string](2, nil)
		require.NoError(t, c.Add(1, "a"))

		assert.False(t, c.Return(99))
		assert.Equal(t, 1, c.FreeLen())
	})

	t.Run("rejects double return", func(t *testing.T) {
		c := container.New[string](2, nil)
		require.NoError(t, c.Add(1, "a"))
		id, _, err := c.Get(context.Background(), false, 0)
		require.NoError(t, err)

		assert.True(t, c.Return(id))
		assert.False(t, c.Return(id), "second return must be rejected")
		assert.Equal(t, 1, c.FreeLen())
	})

	t.Run("returned items are handed out in FIFO order", func(t *testing.T) {
		// Given
		c := container.New[string](3, nil)
		for id := 1; id <= 3; id++ {
			require.NoError(t, c.Add(id, ""))
		}
		ctx := context.Background()
		for range 3 {
			_, _, err := c.Get(ctx, false, 0)
			require.NoError(t, err)
		}

		// When
		require.True(t, c.Return(3))
		require.True(t, c.Return(1))
		require.True(t, c.Return(2))

		// Then
		for _, want := range []int{3, 1, 2} {
			id, _, err := c.Get(ctx, false, 0)
			require.NoError(t, err)
			assert.Equal(t, want, id)
		}
	})
}

func TestContainer_Resize(t *testing.T) {
	t.Parallel()

	c := container.New[string](2, nil)

	c.Resize(1)
	assert.Equal(t, 2, c.MaxSize(), "shrinking must be a no-op")

	c.Resize(5)
	assert.Equal(t, 5, c.MaxSize())
}

func TestContainer_Drain(t *testing.T) {
	t.Parallel()

	c := container.New[string](3, nil)
	require.NoError(t, c.Add(1, "a"))
	require.NoError(t, c.Add(2, "b"))
	_, _, err := c.Get(context.Background(), false, 0)
	require.NoError(t, err)

	items := c.Drain()

	assert.ElementsMatch(t, []string{"a", "b"}, items, "drain returns borrowed and free members")
	assert.Zero(t, c.Len())
	assert.Nil(t, c.Drain(), "second drain is a no-op")
	_, _, err = c.Get(context.Background(), false, 0)
	assert.ErrorIs(t, err, container.ErrClosed)
}

func TestContainer_ConcurrentGetNeverSharesItems(t *testing.T) {
	t.Parallel()

	const size = 4
	const workers = 16
	const rounds = 200

	c := container.New[int](size, nil)
	for id := range size {
		require.NoError(t, c.Add(id, id))
	}

	var mu sync.Mutex
	held := make(map[int]bool)

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for range rounds {
				id, _, err := c.Get(context.Background(), true, 0)
				if err != nil {
					return err
				}
				mu.Lock()
				if held[id] {
					mu.Unlock()
					t.Errorf("slot %d handed out twice", id)
					return nil
				}
				held[id] = true
				mu.Unlock()

				mu.Lock()
				held[id] = false
				mu.Unlock()
				if !c.Return(id) {
					t.Errorf("return of slot %d rejected", id)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, size, c.FreeLen())
}
