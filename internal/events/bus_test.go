package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/models"
)

func TestEvent_Has(t *testing.T) {
	ev := Event[*models.Book]{Changed: []string{"title", "status"}}
	assert.True(t, ev.Has("status"))
	assert.False(t, ev.Has("isbn"))
}

func TestHub_PublishAndWait(t *testing.T) {
	bus := NewBus(logger.Nop())

	var mu sync.Mutex
	var got []string
	bus.Books.Subscribe(func(_ context.Context, ev Event[*models.Book]) {
		mu.Lock()
		got = append(got, ev.Entity.Title)
		mu.Unlock()
	})

	bus.Books.Publish(context.Background(), Event[*models.Book]{Op: Updated, Entity: &models.Book{Title: "Dune"}})
	bus.Books.Publish(context.Background(), Event[*models.Book]{Op: Updated, Entity: &models.Book{Title: "Emma"}})
	bus.Wait()

	assert.ElementsMatch(t, []string{"Dune", "Emma"}, got)
}

func TestHub_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)
	var calls int32
	unsubscribe := bus.Releases.Subscribe(func(context.Context, Event[*models.Release]) {
		atomic.AddInt32(&calls, 1)
	})
	unsubscribe()

	bus.Releases.Publish(context.Background(), Event[*models.Release]{Op: Created, Entity: &models.Release{}})
	bus.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestHub_WaitCoversChainedEvents(t *testing.T) {
	bus := NewBus(nil)
	var releaseSeen int32

	bus.Books.Subscribe(func(ctx context.Context, ev Event[*models.Book]) {
		bus.Releases.Publish(ctx, Event[*models.Release]{Op: Updated, Entity: &models.Release{BookID: ev.Entity.ID}})
	})
	bus.Releases.Subscribe(func(context.Context, Event[*models.Release]) {
		atomic.AddInt32(&releaseSeen, 1)
	})

	bus.Books.Publish(context.Background(), Event[*models.Book]{Op: Updated, Entity: &models.Book{ID: "b1"}})
	bus.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&releaseSeen))
}

func TestHub_HandlerGetsDetachedContext(t *testing.T) {
	bus := NewBus(nil)
	errs := make(chan error, 1)
	bus.Authors.Subscribe(func(ctx context.Context, _ Event[*models.Author]) {
		errs <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Authors.Publish(ctx, Event[*models.Author]{Op: Created, Entity: &models.Author{}})
	bus.Wait()

	require.Len(t, errs, 1)
	assert.NoError(t, <-errs)
}

func TestHub_RecoversFromPanics(t *testing.T) {
	bus := NewBus(nil)
	bus.Books.Subscribe(func(context.Context, Event[*models.Book]) { panic("boom") })

	assert.NotPanics(t, func() {
		bus.Books.Publish(context.Background(), Event[*models.Book]{Op: Updated, Entity: &models.Book{}})
		bus.Wait()
	})
}
