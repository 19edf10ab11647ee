package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fiscalops/internal/config"
	"fiscalops/internal/db"
	"fiscalops/internal/engine"
	"fiscalops/internal/logging"
	"fiscalops/internal/migrate"
)

// Workspace bundles everything a command needs to work against one
// workspace directory.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Logger *zap.Logger
	Engine engine.Engine
}

// Open loads the optional config, builds the logger, opens and migrates the
// database and wires an engine. The caller must Close the workspace.
func Open(ctx context.Context, dir string) (*Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{
		Dir:    dir,
		DB:     conn,
		Config: cfg,
		Logger: logger,
		Engine: engine.New(conn, cfg, logger),
	}, nil
}

func (w *Workspace) Close() error {
	logging.Sync(w.Logger)
	return w.DB.Close()
}
