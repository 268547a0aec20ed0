package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tivoli-arcade/gokart/internal/config"
	"github.com/tivoli-arcade/gokart/internal/database"
	"github.com/tivoli-arcade/gokart/internal/storage"
	gormstorage "github.com/tivoli-arcade/gokart/internal/storage/gorm"
	"github.com/tivoli-arcade/gokart/internal/storage/memory"
	pgstorage "github.com/tivoli-arcade/gokart/internal/storage/postgres"
	sqlitestorage "github.com/tivoli-arcade/gokart/internal/storage/sqlite"
	wsstorage "github.com/tivoli-arcade/gokart/internal/storage/websocket"
)

// initStorage builds and initialises the configured backend. A backend that
// fails to initialise is replaced by the in-memory one so a race can still
// be driven.
func initStorage(storageCfg config.StorageConfig, zl zerolog.Logger) (storage.Backend, error) {
	backend, err := createStorageBackend(storageCfg, zl)
	if err != nil {
		Logger.Error("Failed to create storage backend", "type", storageCfg.Type, "error", err)
		backend = memory.New(storageCfg.Memory)
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend, using memory", "type", storageCfg.Type, "error", err)
		fallback := memory.New(storageCfg.Memory)
		if ferr := fallback.Init(); ferr != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", ferr)
		}
		return fallback, nil
	}
	Logger.Info("Storage backend ready", "type", storageCfg.Type)
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig, zl zerolog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend selected")
		return pgstorage.New(pgstorage.Dependencies{LogManager: SlogManager}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     sqliteDumpPath(storageCfg),
		}, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend selected", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "database":
		// Postgres when reachable, otherwise an in-memory SQLite database
		// dumped to disk on close.
		mgr := database.NewManager(zl)
		mgr.SqliteFilePath = sqliteDumpPath(storageCfg)
		if err := mgr.Connect(); err != nil {
			return nil, err
		}
		if mgr.ShouldSaveLocal {
			return &dumpOnClose{Backend: gormstorage.New(gormstorage.Dependencies{DB: mgr.DB, LogManager: SlogManager}), mgr: mgr}, nil
		}
		return gormstorage.New(gormstorage.Dependencies{DB: mgr.DB, LogManager: SlogManager}), nil

	case "websocket":
		wsURL := httpToWS(storageCfg.WebSocket.URL) + "/api/overlay"
		Logger.Info("WebSocket overlay stream selected", "url", wsURL)
		return storage.NewTee(
			memory.New(storageCfg.Memory),
			wsstorage.New(wsstorage.Config{URL: wsURL, Secret: storageCfg.WebSocket.Secret}),
		), nil

	default:
		Logger.Info("Memory storage backend selected")
		return memory.New(storageCfg.Memory), nil
	}
}

// dumpOnClose vacuums the fallback in-memory database to disk on shutdown.
type dumpOnClose struct {
	*gormstorage.Backend
	mgr *database.Manager
}

func (d *dumpOnClose) Close() error {
	if err := d.Backend.Close(); err != nil {
		return err
	}
	return d.mgr.DumpMemoryToDisk()
}

func sqliteDumpPath(storageCfg config.StorageConfig) string {
	dir := storageCfg.Memory.OutputDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.db", AppName, SessionStartTime.Format("20060102_150405")))
}

// streamDropCounter finds the overlay stream inside the backend, if any.
func streamDropCounter(b storage.Backend) (*wsstorage.Backend, bool) {
	switch v := b.(type) {
	case *wsstorage.Backend:
		return v, true
	case *storage.Tee:
		for _, m := range v.Mirrors() {
			if ws, ok := m.(*wsstorage.Backend); ok {
				return ws, true
			}
		}
	}
	return nil, false
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
