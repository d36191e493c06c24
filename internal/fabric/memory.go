package fabric

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// MemoryFabric implements Fabric in process, for tests and single-process deployments.
type MemoryFabric struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	keys   map[string]memoryKey
	closed bool
	now    func() time.Time

	// Dropped counts deliveries lost to full subscriber buffers.
	dropped int
}

type memoryKey struct {
	value     string
	expiresAt time.Time // zero = never
}

var _ Fabric = (*MemoryFabric)(nil)

var errFabricClosed = errors.New("fabric closed")

// NewMemoryFabric creates an empty in-memory fabric.
func NewMemoryFabric() *MemoryFabric {
	return &MemoryFabric{
		subs: make(map[string]map[*memorySubscription]struct{}),
		keys: make(map[string]memoryKey),
		now:  time.Now,
	}
}

// Publish delivers payload to current subscribers without blocking.
func (f *MemoryFabric) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errFabricClosed
	}
	for sub := range f.subs[channel] {
		select {
		case sub.out <- append([]byte(nil), payload...):
		default:
			f.dropped++
		}
	}
	return nil
}

// Subscribe registers a subscriber on channel.
func (f *MemoryFabric) Subscribe(_ context.Context, channel string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errFabricClosed
	}
	sub := &memorySubscription{fabric: f, channel: channel, out: make(chan []byte, 256)}
	if f.subs[channel] == nil {
		f.subs[channel] = make(map[*memorySubscription]struct{})
	}
	f.subs[channel][sub] = struct{}{}
	return sub, nil
}

// SetKey stores value with an optional ttl.
func (f *MemoryFabric) SetKey(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := memoryKey{value: value}
	if ttl > 0 {
		k.expiresAt = f.now().Add(ttl)
	}
	f.keys[key] = k
	return nil
}

// CountKeys counts keys that exist and have not expired.
func (f *MemoryFabric) CountKeys(_ context.Context, keys ...string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, key := range keys {
		if _, ok := f.get(key); ok {
			n++
		}
	}
	return n, nil
}

// Incr increments a decimal counter, starting from zero.
func (f *MemoryFabric) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var v int64
	if k, ok := f.get(key); ok {
		parsed, err := strconv.ParseInt(k.value, 10, 64)
		if err != nil {
			return 0, errors.New("value is not an integer")
		}
		v = parsed
	}
	v++
	f.keys[key] = memoryKey{value: strconv.FormatInt(v, 10)}
	return v, nil
}

// Close closes every subscription.
func (f *MemoryFabric) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for channel, subs := range f.subs {
		for sub := range subs {
			close(sub.out)
		}
		delete(f.subs, channel)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on channel.
func (f *MemoryFabric) Subscribers(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[channel])
}

// Dropped returns the number of deliveries lost to full buffers.
func (f *MemoryFabric) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// get must be called with mu held.
func (f *MemoryFabric) get(key string) (memoryKey, bool) {
	k, ok := f.keys[key]
	if !ok {
		return memoryKey{}, false
	}
	if !k.expiresAt.IsZero() && !f.now().Before(k.expiresAt) {
		delete(f.keys, key)
		return memoryKey{}, false
	}
	return k, true
}

type memorySubscription struct {
	fabric  *MemoryFabric
	channel string
	out     chan []byte
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.out
}

func (s *memorySubscription) Close() error {
	f := s.fabric
	f.mu.Lock()
	defer f.mu.Unlock()
	if subs, ok := f.subs[s.channel]; ok {
		if _, live := subs[s]; live {
			delete(subs, s)
			close(s.out)
		}
	}
	return nil
}
