// Package app assembles the note store, the notes service and the export
// pipeline from a loaded Config. Both the HTTP server and the admin CLI
// start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuitang/linknotes/internal/config"
	"github.com/kuitang/linknotes/internal/crypto"
	"github.com/kuitang/linknotes/internal/db"
	"github.com/kuitang/linknotes/internal/export"
	"github.com/kuitang/linknotes/internal/notes"
	"github.com/kuitang/linknotes/internal/obs"
	"github.com/kuitang/linknotes/internal/s3client"
)

const mockBucketName = "linknotes-exports"

// App holds the long-lived components of one process.
// Objects and Exporter are nil when the App was opened with OpenStore.
type App struct {
	Config   *config.Config
	DB       *db.DB
	Notes    *notes.Service
	Objects  *s3client.Client
	Exporter *export.Exporter

	stopMockS3 func()
}

// Open opens the database and the export storage described by cfg.
// The caller must Close the returned App.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.openExports(ctx); err != nil {
		a.Close()
		return nil, err
	}
	obs.Pkg("app").Info("exports_ready",
		"prefix", cfg.ExportPrefix,
		"sealed", cfg.Encrypted(),
		"mock_s3", cfg.NoS3,
	)
	return a, nil
}

// OpenStore opens only the database and notes service, for callers that
// never touch export storage.
func OpenStore(cfg *config.Config) (*App, error) {
	dbKey, err := crypto.DatabaseKeyHex(cfg.DatabaseKey)
	if err != nil {
		return nil, fmt.Errorf("derive database key: %w", err)
	}
	store, err := db.Open(cfg.DatabasePath, dbKey)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	obs.Pkg("app").Info("database_opened", "path", cfg.DatabasePath, "encrypted", cfg.Encrypted())
	return &App{Config: cfg, DB: store, Notes: notes.NewService(store)}, nil
}

func (a *App) openExports(ctx context.Context) error {
	cfg := a.Config
	if cfg.NoS3 {
		client, stop, err := s3client.NewInMemory(ctx, mockBucketName)
		if err != nil {
			return fmt.Errorf("start mock S3: %w", err)
		}
		a.Objects, a.stopMockS3 = client, stop
	} else {
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.AWSBucketName,
		})
		if err != nil {
			return fmt.Errorf("create S3 client: %w", err)
		}
		a.Objects = client
	}

	var sealKey []byte
	if cfg.Encrypted() {
		key, err := crypto.ParseMasterKey(cfg.DatabaseKey)
		if err != nil {
			return err
		}
		sealKey = key
	}
	a.Exporter = export.New(a.Notes, a.Objects, cfg.ExportPrefix, sealKey)
	return nil
}

// Close releases the database and stops the mock S3 server if one runs.
func (a *App) Close() error {
	var errList []error
	if a.stopMockS3 != nil {
		a.stopMockS3()
		a.stopMockS3 = nil
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errList...)
}
