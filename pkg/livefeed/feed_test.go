package livefeed

import (
	"context"
	"errors"
	"testing"
	"time"
)

func counter(n int, fail error) Producer[int] {
	return func(ctx context.Context, emit func(int) bool) error {
		for i := 1; i <= n; i++ {
			if !emit(i) {
				return nil
			}
		}
		if fail != nil {
			return fail
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestFeedDeliversSnapshotsInOrder(t *testing.T) {
	f := Start(context.Background(), counter(3, nil))

	for want := 1; want <= 3; want++ {
		select {
		case got := <-f.Updates():
			if got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}

	f.Close()
	if err := f.Err(); err != nil {
		t.Errorf("Err after Close = %v", err)
	}
}

func TestFeedRecordsProducerError(t *testing.T) {
	boom := errors.New("stream broke")
	f := Start(context.Background(), counter(1, boom))

	<-f.Updates()
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("feed did not finish")
	}
	if !errors.Is(f.Err(), boom) {
		t.Errorf("Err = %v", f.Err())
	}
}

func TestFeedStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := Start(ctx, counter(0, nil))
	cancel()

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("feed ignored cancellation")
	}
	if f.Err() != nil {
		t.Errorf("Err = %v", f.Err())
	}
}

func TestCloseWithUnreadSnapshots(t *testing.T) {
	f := Start(context.Background(), counter(100, nil))
	done := make(chan struct{})
	go func() {
		f.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an unread feed")
	}
}

func TestPipe(t *testing.T) {
	src := Start(context.Background(), counter(2, nil))
	doubled := Pipe(context.Background(), src, func(v int) any { return v * 2 })

	for _, want := range []int{2, 4} {
		select {
		case got := <-doubled.Updates():
			if got.(int) != want {
				t.Fatalf("got %v, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}

	doubled.Close()
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("closing the pipe did not close its source")
	}
}

func TestRelayStopsOnError(t *testing.T) {
	src := Start(context.Background(), counter(5, nil))
	errTooBig := errors.New("too big")
	relayed := Relay(context.Background(), src, func(v int) (int, error) {
		if v > 2 {
			return 0, errTooBig
		}
		return v, nil
	})

	var got []int
	for v := range relayed.Updates() {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got %v", got)
	}
	if !errors.Is(relayed.Err(), errTooBig) {
		t.Errorf("err = %v", relayed.Err())
	}
	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not close its source")
	}
}
