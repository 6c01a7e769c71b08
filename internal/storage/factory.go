package storage

import (
	"fmt"
	"log/slog"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/internal/database"
	gormstorage "github.com/drlrcc/torcs-driver/internal/storage/gorm"
	"github.com/drlrcc/torcs-driver/internal/storage/memory"
	sqlitestorage "github.com/drlrcc/torcs-driver/internal/storage/sqlite"
	"github.com/drlrcc/torcs-driver/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// Backend types accepted by NewBackend.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
)

// Dependencies holds what the backends log through.
type Dependencies struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
	// Tag is attached to upload metadata of exported datasets.
	Tag string
}

// NewBackend creates a storage backend based on configuration. Init is
// left to the caller.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	switch cfg.Type {
	case TypeMemory:
		return memory.New(cfg.Memory, deps.Tag), nil
	case TypeSQLite:
		return sqlitestorage.New(sqlitestorage.Config{
			DumpPath:     cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, deps.Logger)
	case TypePostgres:
		m := database.NewManager(deps.DBLogger)
		if err := m.Connect(cfg); err != nil {
			return nil, err
		}
		if m.ShouldSaveLocal {
			return sqlitestorage.NewWithDB(m.DB, sqlitestorage.Config{
				DumpPath:     cfg.SQLite.Path,
				DumpInterval: cfg.SQLite.DumpInterval,
			}, deps.Logger), nil
		}
		return gormstorage.New(gormstorage.Dependencies{DB: m.DB, Logger: deps.Logger}), nil
	case TypeWebSocket:
		return websocket.New(websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
