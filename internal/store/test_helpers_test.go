package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "arena.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type testClock struct{ now time.Time }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func mustUpsert(t *testing.T, s *Store, r Result) PlayerRecord {
	t.Helper()
	rec, err := s.Upsert(context.Background(), r)
	require.NoError(t, err, "upsert %q", r.Name)
	return rec
}

// tableColumns lists the column names of the players table.
func tableColumns(t *testing.T, s *Store) []string {
	t.Helper()
	return queryStrings(t, s, "SELECT name FROM pragma_table_info('players')")
}

func tableIndexes(t *testing.T, s *Store) []string {
	t.Helper()
	return queryStrings(t, s, "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'players'")
}

func queryStrings(t *testing.T, s *Store, query string) []string {
	t.Helper()
	rows, err := s.db.Query(query)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}

func ptr[T any](v T) *T { return &v }
