// Package events carries record changes from writers to live subscribers:
// calendar views, WebSocket clients and other processes through Redis.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"villaops/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Op string

const (
	OpAdded    Op = "added"
	OpModified Op = "modified"
	OpRemoved  Op = "removed"
)

const (
	CollectionBookings      = "bookings"
	CollectionJobs          = "jobs"
	CollectionNotifications = "notifications"
	CollectionConflicts     = "conflicts"
	CollectionStaff         = "staff"
)

// Change is one record mutation. Data holds the JSON of the record after the
// change (or before it for removals).
type Change struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Op         Op              `json:"op"`
	EntityID   int64           `json:"entity_id"`
	PropertyID int64           `json:"property_id,omitempty"`
	StaffID    int64           `json:"staff_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Origin     string          `json:"origin,omitempty"`
	At         time.Time       `json:"at"`
}

// NewChange serializes record into a Change.
func NewChange(collection string, op Op, entityID int64, record interface{}) (Change, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("marshal %s %d: %w", collection, entityID, err)
	}
	return Change{Collection: collection, Op: op, EntityID: entityID, Data: raw}, nil
}

// Decode unmarshals the change data into v.
func (c Change) Decode(v interface{}) error {
	if len(c.Data) == 0 {
		return fmt.Errorf("change %s has no data", c.ID)
	}
	return json.Unmarshal(c.Data, v)
}

// Filter selects changes. Zero fields match everything.
type Filter struct {
	Collections []string
	Ops         []Op
	PropertyID  int64
	StaffID     int64
}

func (f Filter) Match(c Change) bool {
	if len(f.Collections) > 0 && !contains(f.Collections, c.Collection) {
		return false
	}
	if len(f.Ops) > 0 && !contains(f.Ops, c.Op) {
		return false
	}
	if f.PropertyID != 0 && c.PropertyID != f.PropertyID {
		return false
	}
	if f.StaffID != 0 && c.StaffID != f.StaffID {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Handler receives matching changes in publish order.
type Handler func(Change)

type subscriber struct {
	id      int64
	filter  Filter
	ch      chan Change
	done    chan struct{}
	dropped atomic.Int64
}

// Feed is an in-process change fan-out. Every subscriber owns a goroutine
// and a bounded buffer; Publish never blocks on a slow subscriber.
type Feed struct {
	mu      sync.RWMutex
	subs    map[int64]*subscriber
	nextID  int64
	buffer  int
	origin  string
	dropped atomic.Int64
	logger  *zerolog.Logger
}

func NewFeed(buffer int, logger *zerolog.Logger) *Feed {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Feed{
		subs:   make(map[int64]*subscriber),
		buffer: buffer,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Origin identifies this process on shared channels.
func (f *Feed) Origin() string {
	return f.origin
}

// Publish delivers c to every matching subscriber. ID, At and Origin are
// filled in when empty. A subscriber whose buffer is full misses the change.
func (f *Feed) Publish(c Change) Change {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	if c.Origin == "" {
		c.Origin = f.origin
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		if !s.filter.Match(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			s.dropped.Add(1)
			f.dropped.Add(1)
			metrics.ChangeDropped()
			f.logger.Warn().
				Int64("subscriber", s.id).
				Str("collection", c.Collection).
				Int64("entity_id", c.EntityID).
				Int64("dropped", s.dropped.Load()).
				Msg("subscriber buffer full, change dropped")
		}
	}
	return c
}

// Subscribe registers fn for changes matching filter. The returned function
// unsubscribes; it is safe to call more than once and from inside fn.
func (f *Feed) Subscribe(filter Filter, fn Handler) func() {
	f.mu.Lock()
	f.nextID++
	s := &subscriber{
		id:     f.nextID,
		filter: filter,
		ch:     make(chan Change, f.buffer),
		done:   make(chan struct{}),
	}
	f.subs[s.id] = s
	f.mu.Unlock()
	metrics.SubscriberAdded()

	go f.run(s, fn)

	return func() { f.remove(s.id) }
}

func (f *Feed) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return
	}
	delete(f.subs, id)
	close(s.done)
	metrics.SubscriberRemoved()
}

func (f *Feed) run(s *subscriber, fn Handler) {
	for {
		select {
		case <-s.done:
			return
		case c := <-s.ch:
			f.deliver(s, fn, c)
		}
	}
}

func (f *Feed) deliver(s *subscriber, fn Handler, c Change) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().
				Interface("panic", r).
				Int64("subscriber", s.id).
				Str("change_id", c.ID).
				Msg("subscriber callback panicked")
		}
	}()
	fn(c)
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Close removes every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subs {
		delete(f.subs, id)
		close(s.done)
		metrics.SubscriberRemoved()
	}
}
