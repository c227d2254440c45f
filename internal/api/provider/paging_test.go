package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagesOf(total, size int, calls *int) PageFunc[int] {
	return func(_ context.Context, page int) ([]int, bool, error) {
		*calls++
		start := page * size
		var items []int
		for i := start; i < start+size && i < total; i++ {
			items = append(items, i)
		}
		return items, start+size < total, nil
	}
}

func TestPaginate_StopsAtLimit(t *testing.T) {
	var calls int
	items, err := Paginate(context.Background(), 3, pagesOf(100, 10, &calls))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, items, 30)
	assert.Equal(t, 29, items[29])
}

func TestPaginate_UnboundedUntilExhausted(t *testing.T) {
	for _, limit := range []int{0, -1} {
		var calls int
		items, err := Paginate(context.Background(), limit, pagesOf(25, 10, &calls))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Len(t, items, 25)
	}
}

func TestPaginate_FilteredPageContinues(t *testing.T) {
	var calls int
	items, err := Paginate(context.Background(), 0, func(_ context.Context, page int) ([]string, bool, error) {
		calls++
		switch page {
		case 0:
			return nil, true, nil
		case 1:
			return []string{"b"}, true, nil
		default:
			return nil, false, nil
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"b"}, items)
}

func TestPaginate_ErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	_, err := Paginate(context.Background(), 5, func(_ context.Context, page int) ([]int, bool, error) {
		if page == 1 {
			return nil, false, boom
		}
		return []int{page}, true, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestPaginate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int
	_, err := Paginate(ctx, 0, pagesOf(10, 1, &calls))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
