package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
)

func snapWith(ids ...string) catalog.Snapshot {
	var s catalog.Snapshot
	for _, id := range ids {
		s.Matches = append(s.Matches, catalog.Match{ID: id})
	}
	return s
}

func TestPublish_DropsStaleGeneration(t *testing.T) {
	f := New()
	older := f.Begin()
	newer := f.Begin()

	if !f.Publish(newer, snapWith("new")) {
		t.Fatal("newer publish rejected")
	}
	if f.Publish(older, snapWith("old")) {
		t.Fatal("stale publish accepted")
	}
	cur := f.Current()
	if cur.Generation != newer || cur.Snapshot.Matches[0].ID != "new" {
		t.Fatalf("current = %+v", cur)
	}
	if f.Publish(newer, snapWith("again")) {
		t.Fatal("same generation must not replace")
	}
}

func TestSubscribe_ReceivesCurrentThenUpdates(t *testing.T) {
	f := New()
	f.Publish(f.Begin(), snapWith("a"))

	got := make(chan Update, 8)
	cancel := f.Subscribe(func(u Update) { got <- u })
	defer cancel()

	first := recv(t, got)
	if first.Snapshot.Matches[0].ID != "a" {
		t.Fatalf("first = %+v", first)
	}

	f.Publish(f.Begin(), snapWith("b"))
	second := recv(t, got)
	if second.Snapshot.Matches[0].ID != "b" || second.Generation <= first.Generation {
		t.Fatalf("second = %+v", second)
	}
}

func TestSubscribe_EmptyFeedDeliversEmptySnapshot(t *testing.T) {
	f := New()
	got := make(chan Update, 1)
	cancel := f.Subscribe(func(u Update) { got <- u })
	defer cancel()
	u := recv(t, got)
	if u.Generation != 0 || len(u.Snapshot.Matches) != 0 {
		t.Fatalf("update = %+v", u)
	}
}

func TestSubscribe_SlowSubscriberSeesIncreasingGenerations(t *testing.T) {
	f := New()
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []uint64
	)
	done := make(chan struct{})
	var last uint64 = 20
	cancel := f.Subscribe(func(u Update) {
		<-release
		mu.Lock()
		seen = append(seen, u.Generation)
		mu.Unlock()
		if u.Generation == last {
			close(done)
		}
	})
	defer cancel()

	for i := 0; i < int(last); i++ {
		f.Publish(f.Begin(), snapWith("x"))
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("never saw the newest generation")
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("generations out of order: %v", seen)
		}
	}
	if len(seen) > int(last)+1 {
		t.Fatalf("too many deliveries: %v", seen)
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	f := New()
	got := make(chan Update, 8)
	cancel := f.Subscribe(func(u Update) { got <- u })
	recv(t, got)
	cancel()
	cancel()
	if f.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", f.Subscribers())
	}
	f.Publish(f.Begin(), snapWith("late"))
	select {
	case u := <-got:
		t.Fatalf("unexpected delivery after cancel: %+v", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_ConcurrentWritersKeepNewest(t *testing.T) {
	f := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Publish(f.Begin(), snapWith("x"))
		}()
	}
	wg.Wait()
	if got := f.Current().Generation; got != 50 {
		t.Fatalf("generation = %d", got)
	}
}

func recv(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}
