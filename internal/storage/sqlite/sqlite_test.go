package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drlrcc/torcs-driver/internal/database"
	"github.com/drlrcc/torcs-driver/internal/model"
	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, err)
	b := NewWithDB(db, cfg, nil)
	require.NoError(t, b.Init())
	return b
}

func TestEndEpisode_Dumps(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "out", "episodes.db")
	b := newFileBackend(t, Config{DumpPath: dump})
	t.Cleanup(func() { _ = b.Close() })

	ep := &core.Episode{ID: "ep-1", Track: "g-track-1", StartTime: time.Now()}
	require.NoError(t, b.StartEpisode(ep))
	require.NoError(t, b.RecordSamples([]core.Sample{{EpisodeID: "ep-1", Step: 13, Steer: 0.2}}))
	ep.Steps = 20
	require.NoError(t, b.EndEpisode(ep))

	copyDB, err := database.OpenSQLite(dump)
	require.NoError(t, err)
	var count int64
	require.NoError(t, copyDB.Model(&model.Sample{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpLoop(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "periodic.db")
	b := newFileBackend(t, Config{DumpPath: dump, DumpInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = b.Close() })

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	b := newFileBackend(t, Config{})
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestNew_InMemory(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "mem.db")
	b, err := New(Config{DumpPath: dump}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())

	_, err = os.Stat(dump)
	assert.NoError(t, err, "close writes a final dump")
}
