package state

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetBumpsVersionPerWrite(t *testing.T) {
	s := NewStore()

	v1, err := s.Set("owner-a", ID(KindADC, "channel_0"), 1.0)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v2, err := s.Set("owner-a", ID(KindADC, "channel_0"), 2.0)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if v2 != v1+1 {
		t.Errorf("expected consecutive versions, got %d then %d", v1, v2)
	}
	if s.Version() != v2 {
		t.Errorf("store version %d, expected %d", s.Version(), v2)
	}
}

func TestSingleWriterPerChannel(t *testing.T) {
	s := NewStore()
	id := ID(KindLIN, "temp1")

	if _, err := s.Set("driver/lin", id, 21.5); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := s.Set("driver/adc", id, 3.3); err == nil {
		t.Fatal("expected write from second owner to be rejected")
	}
	if _, err := s.Set("driver/lin", id, 22.0); err != nil {
		t.Fatalf("owner write rejected: %v", err)
	}

	ch, ok := s.Get(id)
	if !ok {
		t.Fatal("channel missing")
	}
	if ch.Value != 22.0 {
		t.Errorf("value = %v, expected 22.0", ch.Value)
	}
}

func TestSetHealthIgnoresUnknownChannel(t *testing.T) {
	s := NewStore()

	v, err := s.SetHealth("driver/lin", ID(KindLIN, "ghost"), Stale)
	if err != nil {
		t.Fatalf("SetHealth returned error: %v", err)
	}
	if v != 0 {
		t.Errorf("expected no version bump for unknown channel, got %d", v)
	}
	if s.Version() != 0 {
		t.Errorf("version moved to %d", s.Version())
	}
}

func TestSetHealthKeepsValue(t *testing.T) {
	s := NewStore()
	id := ID(KindLIN, "temp1")

	if _, err := s.Set("driver/lin", id, 21.5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	before := s.Version()

	if _, err := s.SetHealth("driver/lin", id, Stale); err != nil {
		t.Fatalf("SetHealth failed: %v", err)
	}

	ch, _ := s.Get(id)
	if ch.Value != 21.5 {
		t.Errorf("value changed to %v on health transition", ch.Value)
	}
	if ch.Health != Stale {
		t.Errorf("health = %s, expected stale", ch.Health)
	}
	if s.Version() != before+1 {
		t.Errorf("health transition did not bump version")
	}

	// Repeating the same health is a no-op.
	if _, err := s.SetHealth("driver/lin", id, Stale); err != nil {
		t.Fatalf("SetHealth failed: %v", err)
	}
	if s.Version() != before+1 {
		t.Errorf("no-op health transition bumped version")
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	s := NewStore()
	snaps, cancel := s.Subscribe()
	defer cancel()

	// Burst of writes with no reader draining: only the newest snapshot
	// may remain pending.
	for i := 0; i < 10; i++ {
		if _, err := s.Set("owner", ID(KindADC, "channel_0"), float64(i)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	select {
	case snap := <-snaps:
		if snap.Version != 10 {
			t.Errorf("expected latest snapshot (version 10), got %d", snap.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	select {
	case snap := <-snaps:
		t.Errorf("unexpected second pending snapshot, version %d", snap.Version)
	default:
	}
}

func TestSubscriberVersionsNeverRegress(t *testing.T) {
	s := NewStore()
	snaps, cancel := s.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last uint64
		for snap := range snaps {
			if snap.Version < last {
				t.Errorf("observed version %d after %d", snap.Version, last)
				return
			}
			last = snap.Version
		}
	}()

	// Many owners hammering distinct channels: no interleaving may let a
	// subscriber see an older snapshot after a newer one.
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner-%d", w)
			id := ID(KindADC, fmt.Sprintf("channel_%d", w))
			for i := 0; i < 200; i++ {
				if _, err := s.Set(owner, id, float64(i)); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	cancel()
	<-done
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	s := NewStore()
	snaps, cancel := s.Subscribe()
	cancel()

	if _, err := s.Set("owner", ID(KindADC, "channel_0"), 1.0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok := <-snaps; ok {
		t.Error("expected closed channel after cancel")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	id := ID(KindCAN, "status1")
	if _, err := s.Set("driver/can", id, 1.0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	snap := s.GetSnapshot()
	snap.Channels[id] = Channel{ID: id, Value: 99.0}

	ch, _ := s.Get(id)
	if ch.Value != 1.0 {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestChannelIDParts(t *testing.T) {
	id := ID(KindPWM, "pin12")
	if id != "pwm:pin12" {
		t.Errorf("id = %s", id)
	}
	if id.Kind() != KindPWM {
		t.Errorf("kind = %s", id.Kind())
	}
	if id.Name() != "pin12" {
		t.Errorf("name = %s", id.Name())
	}
}
