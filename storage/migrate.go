package storage

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

const migrateBatchSize = 1000

// MigrateJSONToSQLite copies every valid reading of the JSON file at jsonPath
// into the SQLite database at sqlitePath. Running it twice is harmless.
func MigrateJSONToSQLite(ctx context.Context, jsonPath, sqlitePath string, logger *slog.Logger) error {
	logger.Info("starting migration", "from", jsonPath, "to", sqlitePath)

	src := NewJSONStorage(jsonPath, logger)
	if err := src.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize JSON storage")
	}

	dst := NewSQLiteStorage(sqlitePath, logger)
	if err := dst.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize SQLite storage")
	}
	defer dst.Close()

	readings, err := src.All(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load JSON readings")
	}
	if len(readings) == 0 {
		logger.Warn("no readings to migrate", "file", jsonPath)
		return nil
	}

	for i := 0; i < len(readings); i += migrateBatchSize {
		end := i + migrateBatchSize
		if end > len(readings) {
			end = len(readings)
		}
		if err := dst.SaveReadings(ctx, readings[i:end]); err != nil {
			return errors.Wrapf(err, "failed to save batch %d-%d", i, end)
		}
		logger.Info("migrated batch", "done", end, "total", len(readings))
	}

	logger.Info("migration complete", "readings", len(readings))
	return nil
}

// VerifyMigration compares JSON and SQLite reading counts
func VerifyMigration(ctx context.Context, jsonPath, sqlitePath string, logger *slog.Logger) error {
	src := NewJSONStorage(jsonPath, logger)
	dst := NewSQLiteStorage(sqlitePath, logger)
	if err := dst.Initialize(); err != nil {
		return errors.Wrap(err, "failed to initialize SQLite storage")
	}
	defer dst.Close()

	jsonCount, err := src.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get JSON reading count")
	}
	sqliteCount, err := dst.Count(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get SQLite reading count")
	}
	if jsonCount != sqliteCount {
		return errors.Errorf("reading count mismatch: JSON=%d, SQLite=%d", jsonCount, sqliteCount)
	}

	logger.Info("verification successful", "readings", sqliteCount)
	return nil
}

// RunMigration migrates and, if asked, verifies the result
func RunMigration(ctx context.Context, jsonPath, sqlitePath string, verify bool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := MigrateJSONToSQLite(ctx, jsonPath, sqlitePath, logger); err != nil {
		return err
	}
	if verify {
		if err := VerifyMigration(ctx, jsonPath, sqlitePath, logger); err != nil {
			return errors.Wrap(err, "migration verification failed")
		}
	}
	return nil
}
