package appliance

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// State is a point-in-time copy of the three caches, in canonical string form.
type State struct {
	Operational   map[string]string `json:"operational"`
	Environmental map[string]string `json:"environmental"`
	Faults        map[string]string `json:"faults"`
}

// Store holds the last-known operational state, environmental readings and
// raw fault registry.
//
// The Normalizer is the only writer. Readers get canonical strings so they
// never see the mix of numeric and string encodings used on the wire.
// Nothing is cleared on disconnect: stale data is preferred over no data.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Each read is consistent for
//     one field; Snapshot is consistent across all three caches.
type Store struct {
	mu            sync.RWMutex
	operational   map[string]any
	environmental map[string]any
	faults        map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		operational:   make(map[string]any),
		environmental: make(map[string]any),
		faults:        make(map[string]any),
	}
}

// Operational returns an operational field or def when it is unknown.
func (s *Store) Operational(key, def string) string {
	return s.get(func() map[string]any { return s.operational }, key, def)
}

// Environmental returns an environmental reading or def when it is unknown.
func (s *Store) Environmental(key, def string) string {
	return s.get(func() map[string]any { return s.environmental }, key, def)
}

// Fault returns a raw fault registry entry or def when it is unknown.
func (s *Store) Fault(key, def string) string {
	return s.get(func() map[string]any { return s.faults }, key, def)
}

func (s *Store) get(cache func() map[string]any, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := cache()[key]
	if !ok || v == nil {
		return def
	}
	return canonical(v)
}

// Snapshot returns a copy of all three caches.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Operational:   stringify(s.operational),
		Environmental: stringify(s.environmental),
		Faults:        stringify(s.faults),
	}
}

// EnvironmentalReadings returns a copy of the environmental readings.
func (s *Store) EnvironmentalReadings() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stringify(s.environmental)
}

// RawFaults returns a copy of the unfiltered fault registry.
func (s *Store) RawFaults() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stringify(s.faults)
}

func (s *Store) mergeOperational(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.operational[k] = v
	}
}

// mergeEnvironmental stores the readings and reports whether any of the
// watched keys changed value.
func (s *Store) mergeEnvironmental(readings map[string]any, watched []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := make([]string, len(watched))
	for i, key := range watched {
		before[i] = valueOrEmpty(s.environmental, key)
	}

	for k, v := range readings {
		s.environmental[k] = v
	}

	for i, key := range watched {
		if valueOrEmpty(s.environmental, key) != before[i] {
			return true
		}
	}
	return false
}

func (s *Store) mergeFaults(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.faults[k] = v
	}
}

func valueOrEmpty(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return canonical(v)
}

func stringify(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = canonical(v)
	}
	return out
}

// canonical renders a decoded JSON value as a string.
//
// Numbers keep their wire spelling ("0005" stays a string, 5 becomes "5").
// Composite values are re-encoded as compact JSON.
func canonical(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// ============================================================================
// Subscriber sets
// ============================================================================

// SubscriptionID identifies a registered callback. Removing an ID twice, or
// an ID that was never issued, is a no-op.
type SubscriptionID uint64

// subscribers is an ordered set of callbacks keyed by the ID handed out on
// registration. Go functions are not comparable, so the ID is the identity.
type subscribers[T any] struct {
	mu      sync.RWMutex
	next    SubscriptionID
	entries map[SubscriptionID]T
}

func newSubscribers[T any]() *subscribers[T] {
	return &subscribers[T]{entries: make(map[SubscriptionID]T)}
}

func (s *subscribers[T]) add(cb T) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.entries[s.next] = cb
	return s.next
}

func (s *subscribers[T]) remove(id SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *subscribers[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// snapshot returns the callbacks in registration order so they can be
// invoked without holding the lock.
func (s *subscribers[T]) snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]SubscriptionID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id]
	}
	return out
}
