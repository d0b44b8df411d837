package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchLatestValue(t *testing.T) {
	tx, rx := NewWatch(0)
	require.Equal(t, 0, rx.Borrow())
	require.False(t, rx.HasChanged())

	tx.Send(1)
	tx.Send(2)
	require.True(t, rx.HasChanged())
	require.Equal(t, 2, rx.BorrowAndMark())
	require.False(t, rx.HasChanged())

	late := tx.Subscribe()
	require.Equal(t, 2, late.Borrow())
	require.False(t, late.HasChanged())
}

func TestWatchChangedWakesAndCloses(t *testing.T) {
	tx, rx := NewWatch("a")
	done := make(chan error, 1)
	go func() { done <- rx.Changed(context.Background()) }()

	tx.Send("b")
	require.NoError(t, <-done)
	require.Equal(t, "b", rx.Borrow())

	tx.Close()
	require.ErrorIs(t, rx.Changed(context.Background()), ErrClosed)
	require.False(t, tx.Send("c"))
	require.Equal(t, "b", rx.Borrow())
}

func TestBroadcastLateSubscriberMissesEarlierMessages(t *testing.T) {
	b := NewBroadcast[int](10)
	early := b.Subscribe()
	b.Send(1)
	late := b.Subscribe()
	b.Send(2)

	ctx := context.Background()
	v, err := early.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
	v, err = early.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	v, err = late.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestBroadcastNoSubscribersDrops(t *testing.T) {
	b := NewBroadcast[int](2)
	require.Equal(t, 0, b.Send(1))
	sub := b.Subscribe()
	require.Equal(t, 1, b.Send(2))
	v, err := sub.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestBroadcastLag(t *testing.T) {
	b := NewBroadcast[int](2)
	sub := b.Subscribe()
	for i := 1; i <= 5; i++ {
		b.Send(i)
	}
	ctx := context.Background()
	_, err := sub.Recv(ctx)
	var lagged *LaggedError
	require.True(t, errors.As(err, &lagged))
	require.Equal(t, uint64(3), lagged.Skipped)
	require.True(t, IsLagged(err))

	v, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, v)
	v, err = sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestBroadcastCloseDrainsThenClosed(t *testing.T) {
	b := NewBroadcast[string](4)
	sub := b.Subscribe()
	b.Send("x")
	b.Close()
	require.Equal(t, 0, b.Send("y"))

	ctx := context.Background()
	v, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "x", v)
	_, err = sub.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBroadcastRecvBlocksUntilSend(t *testing.T) {
	b := NewBroadcast[int](4)
	sub := b.Subscribe()
	got := make(chan int, 1)
	go func() {
		v, err := sub.Recv(context.Background())
		if err == nil {
			got <- v
		}
	}()
	time.Sleep(10 * time.Millisecond)
	b.Send(7)
	select {
	case v := <-got:
		require.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("recv did not wake")
	}

	_, ok, err := sub.TryRecv()
	require.NoError(t, err)
	require.False(t, ok)

	sub.Unsubscribe()
	require.Equal(t, 0, b.Subscribers())
	_, err = sub.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueBackpressure(t *testing.T) {
	q := NewQueue[int](10)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Send(ctx, i))
	}
	require.ErrorIs(t, q.TrySend(10), ErrFull)

	sent := make(chan struct{})
	go func() {
		_ = q.Send(ctx, 10)
		close(sent)
	}()
	select {
	case <-sent:
		t.Fatal("send must suspend while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := q.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, v)
	require.Eventually(t, func() bool {
		select {
		case <-sent:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 10, q.Len())
}

func TestQueueReceiverGone(t *testing.T) {
	q := NewQueue[int](1)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 1))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Send(ctx, 2) }()
	time.Sleep(10 * time.Millisecond)
	q.CloseReceiver()
	require.ErrorIs(t, <-errCh, ErrReceiverGone)
	require.ErrorIs(t, q.Send(ctx, 3), ErrReceiverGone)
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[int](3)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 1))
	require.NoError(t, q.Send(ctx, 2))
	q.Close()
	require.ErrorIs(t, q.Send(ctx, 3), ErrClosed)

	for _, want := range []int{1, 2} {
		v, err := q.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
	_, err := q.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMailboxOrderAndClose(t *testing.T) {
	m := NewMailbox[int]()
	var wg sync.WaitGroup
	wg.Add(1)
	var got []int
	go func() {
		defer wg.Done()
		for {
			v, err := m.Recv(context.Background())
			if err != nil {
				return
			}
			got = append(got, v)
		}
	}()
	for i := 0; i < 100; i++ {
		require.True(t, m.Send(i))
	}
	m.Close()
	require.False(t, m.Send(100))
	wg.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestMailboxRecvContext(t *testing.T) {
	m := NewMailbox[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	m.Send(1)
	v, ok := m.TryRecv()
	require.True(t, ok)
	require.Equal(t, 1, v)
	_, ok = m.TryRecv()
	require.False(t, ok)
}
