package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/client/migrations"
	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/history"
	"github.com/dmitrijs2005/gophdrive/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophdrive/internal/filex"

	_ "modernc.org/sqlite"
)

// State is the local database and the repositories over it.
type State struct {
	DB       *sql.DB
	Metadata *metadata.SQLiteRepository
	History  *history.KVRepository
}

func (s *State) Close() error {
	return s.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// InitDatabase opens the SQLite database at dsn and applies migrations.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenState opens the database at dsn, creating its directory when
// needed, and wires the repositories.
func OpenState(ctx context.Context, dsn string, historyCapacity int) (*State, error) {
	path, err := filex.EnsureParentDir(dsn)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	db, err := InitDatabase(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open local state %s: %w", dsn, err)
	}
	kv := metadata.NewSQLiteRepository(db)
	return &State{
		DB:       db,
		Metadata: kv,
		History:  history.NewKVRepository(kv, historyCapacity),
	}, nil
}
