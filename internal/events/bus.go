package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

// Op is the kind of change an event describes.
type Op string

const (
	Created   Op = "created"
	Updated   Op = "updated"
	Removed   Op = "removed"
	Processed Op = "processed"
)

// Event describes a change to an entity. Previous is nil for Created.
type Event[T any] struct {
	Op       Op
	Entity   T
	Previous T
	// Changed lists the column names the change touched.
	Changed []string
}

// Has reports whether field is among the changed columns.
func (e Event[T]) Has(field string) bool {
	for _, c := range e.Changed {
		if c == field {
			return true
		}
	}
	return false
}

// Handler reacts to an event.
type Handler[T any] func(ctx context.Context, ev Event[T])

// Hub fans events of one entity type out to its subscribers. Handlers run
// on their own goroutines; the owning Bus tracks them.
type Hub[T any] struct {
	name string
	mu   sync.RWMutex
	subs map[int]Handler[T]
	next int
	wg   *sync.WaitGroup
	log  *logger.Logger
}

func newHub[T any](name string, wg *sync.WaitGroup, log *logger.Logger) *Hub[T] {
	return &Hub[T]{name: name, subs: make(map[int]Handler[T]), wg: wg, log: log}
}

// Subscribe registers h and returns a function that removes it.
func (h *Hub[T]) Subscribe(handler Handler[T]) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = handler
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber asynchronously. The handlers get
// a context that keeps ctx's values but not its cancellation.
func (h *Hub[T]) Publish(ctx context.Context, ev Event[T]) {
	h.mu.RLock()
	handlers := make([]Handler[T], 0, len(h.subs))
	for _, s := range h.subs {
		handlers = append(handlers, s)
	}
	h.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		h.wg.Add(1)
		go func(handler Handler[T]) {
			defer h.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					h.log.Error("Event handler panicked", map[string]interface{}{
						"topic": h.name,
						"op":    ev.Op,
						"panic": fmt.Sprint(r),
					})
				}
			}()
			handler(detached, ev)
		}(handler)
	}
}

// Bus carries one hub per entity type. It is passed to producers and
// consumers explicitly.
type Bus struct {
	Authors  *Hub[*models.Author]
	Books    *Hub[*models.Book]
	Releases *Hub[*models.Release]

	wg sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("events")

	b := &Bus{}
	b.Authors = newHub[*models.Author]("author", &b.wg, log)
	b.Books = newHub[*models.Book]("book", &b.wg, log)
	b.Releases = newHub[*models.Release]("release", &b.wg, log)
	return b
}

// Wait blocks until every handler started so far, and every handler those
// handlers triggered, has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
