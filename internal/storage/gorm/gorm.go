// Package gormstorage implements storage.Backend on any GORM database with
// queue-based batch writes drained by a background writer.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drlrcc/torcs-driver/internal/database"
	"github.com/drlrcc/torcs-driver/internal/model"
	"github.com/drlrcc/torcs-driver/internal/model/convert"
	"github.com/drlrcc/torcs-driver/internal/queue"
	"github.com/drlrcc/torcs-driver/pkg/core"

	"gorm.io/gorm"
)

const (
	defaultWriteInterval = 2 * time.Second
	writeBatchSize       = 2000
	// telemetry rows beyond this are dropped oldest first while the DB lags
	maxQueuedSteps = 200000
)

// ErrUnknownEpisode is returned when samples arrive for an episode that was
// never started on this backend.
var ErrUnknownEpisode = errors.New("unknown episode")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// WriteInterval is how often the writer drains the queues. Zero uses 2s.
	WriteInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps    Dependencies
	samples *queue.Queue[model.Sample]
	steps   *queue.Queue[model.StepRecord]

	mu       sync.Mutex
	episodes map[string]uint // episode UUID -> row ID
	writeMu  sync.Mutex

	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = defaultWriteInterval
	}
	return &Backend{
		deps:     deps,
		episodes: make(map[string]uint),
	}
}

// DB returns the underlying database handle.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates the queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}

	b.samples = queue.New[model.Sample]()
	b.steps = queue.NewBounded[model.StepRecord](maxQueuedSteps)
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.writeLoop()
	return nil
}

// Close stops the writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	var err error
	b.once.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
		err = b.Flush()
		if n := b.steps.Dropped(); n > 0 {
			b.deps.Logger.Warn("Step records dropped while the database lagged", "count", n)
		}
	})
	return err
}

// StartEpisode inserts the episode row so samples can reference it.
func (b *Backend) StartEpisode(e *core.Episode) error {
	row := convert.EpisodeToGorm(*e)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("creating episode: %w", err)
	}

	b.mu.Lock()
	b.episodes[e.ID] = row.ID
	b.mu.Unlock()

	b.deps.Logger.Debug("Episode row created", "episodeId", e.ID, "rowId", row.ID)
	return nil
}

// EndEpisode writes the queued samples and the final episode counters.
func (b *Backend) EndEpisode(e *core.Episode) error {
	id, err := b.rowID(e.ID)
	if err != nil {
		return err
	}
	if err := b.Flush(); err != nil {
		return err
	}

	updates := map[string]any{
		"end_time": e.EndTime,
		"steps":    e.Steps,
		"reason":   e.Reason,
		"race_pos": e.RacePos,
	}
	if err := b.deps.DB.Model(&model.Episode{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating episode: %w", err)
	}
	return nil
}

// RecordSamples queues samples for the background writer.
func (b *Backend) RecordSamples(samples []core.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]model.Sample, 0, len(samples))
	for _, s := range samples {
		id, err := b.rowID(s.EpisodeID)
		if err != nil {
			return err
		}
		rows = append(rows, convert.SampleToGorm(s, id))
	}
	b.samples.Push(rows...)
	return nil
}

// RecordStep queues one telemetry row.
func (b *Backend) RecordStep(r core.StepRecord) error {
	id, err := b.rowID(r.EpisodeID)
	if err != nil {
		return err
	}
	b.steps.Push(convert.StepRecordToGorm(r, id))
	return nil
}

// Flush writes every queued row now.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return errors.Join(
		writeQueue(b.deps.DB, b.samples, "samples", b.deps.Logger),
		writeQueue(b.deps.DB, b.steps, "step records", b.deps.Logger),
	)
}

// Pending returns the number of rows waiting for the writer.
func (b *Backend) Pending() int {
	return b.samples.Len() + b.steps.Len()
}

func (b *Backend) rowID(episodeUUID string) (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.episodes[episodeUUID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEpisode, episodeUUID)
	}
	return id, nil
}

// writeLoop periodically drains the queues into the DB.
func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}

// writeQueue inserts everything in q in batches inside a transaction. A failed
// batch is put back at the head of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	for !q.Empty() {
		items := q.TakeBatch(writeBatchSize)

		tx := db.Begin()
		if err := tx.Create(&items).Error; err != nil {
			log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
			tx.Rollback()
			q.PushFront(items...)
			return fmt.Errorf("writing %s: %w", name, err)
		}
		if err := tx.Commit().Error; err != nil {
			q.PushFront(items...)
			return fmt.Errorf("committing %s: %w", name, err)
		}
	}
	return nil
}
