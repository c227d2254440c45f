package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.Default(), logger.Nop())
	require.NoError(t, err)
	return s
}

func TestGet_ReadsNestedKeys(t *testing.T) {
	s := newStore(t)

	assert.Equal(t, 60, s.Get("scheduler.search_interval"))
	assert.Equal(t, "{First}/{Author}/{Title} ({Year})", s.Get("postprocessor.template"))
	assert.Nil(t, s.Get("no.such.key"))
	assert.Contains(t, s.Keys(), "filters.languages")
}

func TestSet_UpdatesSnapshotAndEmits(t *testing.T) {
	s := newStore(t)

	var got []Event
	unsubscribe := s.Subscribe(func(ev Event) { got = append(got, ev) })

	require.NoError(t, s.Set("scheduler.search_interval", 15, nil))
	require.NoError(t, s.Set("searchers.googlebooks.queue.delay", "3s", nil))

	snap := s.Snapshot()
	assert.Equal(t, 15, snap.Scheduler.SearchInterval)
	assert.Equal(t, 3*time.Second, snap.Searchers.GoogleBooks.Queue.Delay)

	require.Len(t, got, 2)
	assert.Equal(t, EventSet, got[0].Name)
	assert.Equal(t, "scheduler.search_interval", got[0].Key)
	assert.Equal(t, 60, got[0].Previous)
	assert.Equal(t, 15, got[0].Value)
	assert.Equal(t, 15, got[0].Config.Scheduler.SearchInterval)

	unsubscribe()
	require.NoError(t, s.Set("scheduler.search_interval", 20, nil))
	assert.Len(t, got, 2)
}

func TestSet_ValidatorRejects(t *testing.T) {
	s := newStore(t)
	called := false
	s.Subscribe(func(Event) { called = true })

	errTooLow := errors.New("too low")
	err := s.Set("scheduler.search_interval", 1, func(v interface{}) error {
		if n, ok := v.(int); ok && n < 5 {
			return errTooLow
		}
		return nil
	})

	assert.ErrorIs(t, err, errTooLow)
	assert.False(t, called)
	assert.Equal(t, 60, s.Snapshot().Scheduler.SearchInterval)
}

func TestSet_InvalidConfigurationRejected(t *testing.T) {
	s := newStore(t)

	err := s.Set("postprocessor.directory_permissions", "rwx", nil)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "0755", s.Get("postprocessor.directory_permissions"))
}

func TestSet_UnknownKey(t *testing.T) {
	s := newStore(t)
	assert.ErrorIs(t, s.Set("scheduler.nope", 1, nil), ErrUnknownKey)
}

func TestApplyFile_SetsChangedKeysOnly(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(t.TempDir(), "bookworm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  search_interval: 60
  postprocess_interval: 1
filters:
  languages: [de]
postprocessor:
  directory_permissions: "bogus"
`), 0o600))

	var keys []string
	s.Subscribe(func(ev Event) { keys = append(keys, ev.Key) })

	changed, err := s.ApplyFile(path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"scheduler.postprocess_interval", "filters.languages"}, changed)
	assert.ElementsMatch(t, changed, keys)
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Scheduler.PostProcessInterval)
	assert.Equal(t, []string{"de"}, snap.Filters.Languages)
	assert.Equal(t, "0755", snap.PostProcessor.DirectoryPermissions)
}

func TestApplyFile_MissingFile(t *testing.T) {
	s := newStore(t)
	_, err := s.ApplyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
