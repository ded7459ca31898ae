package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/database"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/scheduler/base"
	"github.com/rs/zerolog"
)

// Thresholds for the disk-space check, in GB free.
const (
	diskCriticalGB = 0.5
	diskErrorGB    = 5.0
	diskWarningGB  = 10.0
)

// MaintenanceJob runs periodic upkeep on the grid-state database: integrity
// check, WAL checkpoint, disk-space verification. cmd/gridbot registers it
// on a cron schedule with internal/scheduler.
type MaintenanceJob struct {
	base.JobBase
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// Name identifies this job to the scheduler.
func (j *MaintenanceJob) Name() string { return "gridstate_maintenance" }

// NewMaintenanceJob builds a MaintenanceJob for the given database.
func NewMaintenanceJob(db *database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes one maintenance pass. A critical disk-space shortage halts
// the pass with an error; callers should treat that as cause for a critical
// alert, not a retry.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	start := time.Now()
	j.log.Debug().Msg("starting maintenance pass")

	if err := j.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}

	if err := j.db.WALCheckpoint(""); err != nil {
		j.log.Warn().Err(err).Msg("wal checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("duration_ms", time.Since(start)).Msg("maintenance pass completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < diskCriticalGB {
		return fmt.Errorf("critical: only %.2f GB free, halting maintenance", availableGB)
	}
	if availableGB < diskErrorGB {
		j.log.Error().Float64("available_gb", availableGB).Msg("low disk space")
	} else if availableGB < diskWarningGB {
		j.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}

	return nil
}
