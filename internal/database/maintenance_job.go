package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MaintenanceJob checkpoints the WAL and runs an integrity check.
type MaintenanceJob struct {
	db  *DB
	log zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job for db.
func NewMaintenanceJob(db *DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "db_maintenance").Str("database", db.Name()).Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Integrity check failed")
		return err
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		return err
	}

	if stats, err := j.db.GetStats(); err == nil {
		j.log.Debug().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Msg("Database maintenance completed")
	}
	return nil
}
