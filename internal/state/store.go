package state

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies the transport a channel belongs to.
type Kind string

const (
	KindADC Kind = "adc"
	KindLIN Kind = "lin"
	KindCAN Kind = "can"
	KindPWM Kind = "pwm"
)

// ChannelID is a transport-qualified channel identifier, e.g. "lin:temp1".
type ChannelID string

// ID builds a ChannelID from a kind and a logical name.
func ID(kind Kind, name string) ChannelID {
	return ChannelID(string(kind) + ":" + name)
}

// Kind returns the transport part of the identifier.
func (id ChannelID) Kind() Kind {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return Kind(id[:i])
		}
	}
	return Kind(id)
}

// Name returns the logical part of the identifier.
func (id ChannelID) Name() string {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return string(id[i+1:])
		}
	}
	return string(id)
}

// Health describes how trustworthy a channel's latest value is.
type Health string

const (
	// Fresh means the last transaction succeeded.
	Fresh Health = "fresh"
	// Stale means the driver exhausted its retry budget; the value is the
	// last known good one.
	Stale Health = "stale"
	// Unconfirmed means a command may not have been applied; the last
	// known state can differ from what was requested.
	Unconfirmed Health = "unconfirmed"
)

// Channel is the latest known state of one channel.
type Channel struct {
	ID        ChannelID `json:"id"`
	Kind      Kind      `json:"kind"`
	Value     any       `json:"value"`
	Health    Health    `json:"health"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot is an immutable point-in-time view of all channels.
type Snapshot struct {
	Version  uint64                `json:"version"`
	Channels map[ChannelID]Channel `json:"channels"`
}

// Store is the versioned state store. All methods are safe for concurrent
// use.
type Store struct {
	mu       sync.RWMutex
	version  uint64
	channels map[ChannelID]Channel
	owners   map[ChannelID]string
	subs     map[int]chan Snapshot
	nextSub  int
}

// NewStore creates an empty store at version zero.
func NewStore() *Store {
	return &Store{
		channels: make(map[ChannelID]Channel),
		owners:   make(map[ChannelID]string),
		subs:     make(map[int]chan Snapshot),
	}
}

// Set records a new value for id and marks the channel Fresh. The first
// caller for a given id becomes its owner; writes from any other owner are
// rejected. Returns the snapshot version assigned to this write.
func (s *Store) Set(owner string, id ChannelID, value any) (uint64, error) {
	s.mu.Lock()
	if err := s.claim(owner, id); err != nil {
		s.mu.Unlock()
		return 0, err
	}

	s.version++
	s.channels[id] = Channel{
		ID:        id,
		Kind:      id.Kind(),
		Value:     value,
		Health:    Fresh,
		UpdatedAt: time.Now().UTC(),
	}
	version := s.version
	s.notifyLocked(s.snapshotLocked())
	s.mu.Unlock()
	return version, nil
}

// SetHealth transitions an existing channel's health without touching its
// value. Unknown channels are ignored: health only means something once a
// first value exists.
func (s *Store) SetHealth(owner string, id ChannelID, h Health) (uint64, error) {
	s.mu.Lock()
	ch, exists := s.channels[id]
	if !exists {
		s.mu.Unlock()
		return 0, nil
	}
	if err := s.claim(owner, id); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if ch.Health == h {
		s.mu.Unlock()
		return 0, nil
	}

	s.version++
	ch.Health = h
	s.channels[id] = ch
	version := s.version
	s.notifyLocked(s.snapshotLocked())
	s.mu.Unlock()
	return version, nil
}

// Get returns the current state of one channel.
func (s *Store) Get(id ChannelID) (Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

// GetSnapshot returns an immutable copy of the full channel map.
func (s *Store) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots and a cancel function. Delivery
// is coalescing: if the subscriber lags, intermediate snapshots are
// replaced by newer ones rather than queued, so producers never block.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Version returns the current snapshot version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// claim enforces single-writer-per-channel. Caller holds s.mu.
func (s *Store) claim(owner string, id ChannelID) error {
	existing, claimed := s.owners[id]
	if !claimed {
		s.owners[id] = owner
		return nil
	}
	if existing != owner {
		return fmt.Errorf("channel %s is owned by %q, write from %q rejected", id, existing, owner)
	}
	return nil
}

// snapshotLocked copies the channel map. Caller holds s.mu (read or write).
func (s *Store) snapshotLocked() Snapshot {
	channels := make(map[ChannelID]Channel, len(s.channels))
	for id, ch := range s.channels {
		channels[id] = ch
	}
	return Snapshot{Version: s.version, Channels: channels}
}

// notifyLocked delivers snap to every subscriber, dropping the stale
// pending snapshot of any subscriber that has not caught up. Caller holds
// s.mu for writing: delivery under the write lock is what keeps snapshot
// versions in order per subscriber, since the sends never block and no
// concurrent writer can interleave an older snapshot.
func (s *Store) notifyLocked(snap Snapshot) {
	for _, sub := range s.subs {
		for {
			select {
			case sub <- snap:
			default:
				// Full: discard the older pending snapshot and retry.
				select {
				case <-sub:
				default:
				}
				continue
			}
			break
		}
	}
}
