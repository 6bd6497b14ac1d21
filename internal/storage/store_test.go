package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, driver string, retain int) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "bulksend.db"), Retain: retain}, nilLogger)
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func record(i int, at time.Time) JobRecord {
	return JobRecord{
		ID:         fmt.Sprintf("job-%03d", i),
		CreatedAt:  at,
		FinishedAt: at.Add(time.Minute),
		Subject:    "s",
		Workers:    2,
		Total:      2,
		Sent:       2,
		Failed:     1,
		Results: []ResultRecord{
			{OK: true, Detail: "a@x.com -> ok"},
			{OK: false, Detail: "b@x.com -> refused"},
		},
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, nilLogger)
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "etcd"}, nilLogger)
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, nilLogger)
	assert.Error(t, err)
}

func TestStoreRecentJobsNewestFirst(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, driver, 0)
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				require.NoError(t, st.AppendJob(ctx, record(i, base.Add(time.Duration(i)*time.Second))))
			}

			got, err := st.RecentJobs(ctx, 3)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "job-004", got[0].ID)
			assert.Equal(t, "job-002", got[2].ID)
			assert.Equal(t, 1, got[0].Failed)
			assert.True(t, got[0].CreatedAt.Equal(base.Add(4*time.Second)))
			require.Len(t, got[0].Results, 2)
			assert.Equal(t, "b@x.com -> refused", got[0].Results[1].Detail)

			none, err := st.RecentJobs(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestFileStoreCompactsToRetain(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "journal.json"), Retain: 10}, nilLogger)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	base := time.Now()
	for i := 0; i < compactEvery; i++ {
		require.NoError(t, st.AppendJob(ctx, record(i, base.Add(time.Duration(i)*time.Millisecond))))
	}
	recs, err := readJobs(filepath.Join(dir, "journal.jobs.jsonl"))
	require.NoError(t, err)
	assert.Len(t, recs, 10)

	// Appends after compaction land in the rewritten file.
	require.NoError(t, st.AppendJob(ctx, record(500, base.Add(time.Hour))))
	got, err := st.RecentJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job-500", got[0].ID)
}

func TestFileStoreSkipsTornLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "j.jobs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"ok-1","subject":"s"}`+"\n"+`{"id":"tor`), 0o600))

	recs, err := readJobs(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok-1", recs[0].ID)
}

func TestSQLiteUpsertAndPrune(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "sqlite", 3)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	r := record(1, base)
	r.Interrupted = true
	r.Sent = 1
	require.NoError(t, st.AppendJob(ctx, r))
	r.Interrupted = false
	r.Sent = 2
	require.NoError(t, st.AppendJob(ctx, r))

	got, err := st.RecentJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Interrupted)
	assert.Equal(t, 2, got[0].Sent)

	ss := st.(*sqliteStore)
	for i := 2; i < 10; i++ {
		require.NoError(t, st.AppendJob(ctx, record(i, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, ss.pruneOld(ctx))
	got, err = st.RecentJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "job-009", got[0].ID)
}

func TestSQLiteRejectsCorruptTimestamps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, col := range []string{"created_at", "finished_at"} {
		t.Run(col, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, "sqlite", 10)
			require.NoError(t, st.AppendJob(ctx, record(1, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))))

			ss := st.(*sqliteStore)
			_, err := ss.db.ExecContext(ctx, `UPDATE jobs SET `+col+` = 'yesterday' WHERE id = ?`, "job-001")
			require.NoError(t, err)

			got, err := st.RecentJobs(ctx, 10)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Contains(t, err.Error(), "job-001: decode "+col)
		})
	}
}
