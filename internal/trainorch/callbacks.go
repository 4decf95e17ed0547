package trainorch

import (
	"fmt"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/perf"
	"github.com/hashicorp/go-hclog"
)

// Callback hooks into the trainer loop.
type Callback interface {
	OnFitStart(module *TrainingModule)
	OnEpochEnd(stats *model.EpochStats, duration time.Duration)
	OnFitEnd(module *TrainingModule)
}

// DeviceSyncCallback reconciles the module's resident state with the
// accelerator after every epoch.
type DeviceSyncCallback struct {
	module *TrainingModule
	logger hclog.Logger
}

func NewDeviceSyncCallback(module *TrainingModule, logger hclog.Logger) *DeviceSyncCallback {
	return &DeviceSyncCallback{
		module: module,
		logger: logger,
	}
}

func (callback *DeviceSyncCallback) OnFitStart(module *TrainingModule) {
	if err := module.SyncDevice(); err != nil {
		callback.logger.Error(fmt.Sprintf("Error while syncing device state: %s", err.Error()))
	}
}

func (callback *DeviceSyncCallback) OnEpochEnd(stats *model.EpochStats, duration time.Duration) {
	if err := callback.module.SyncDevice(); err != nil {
		callback.logger.Error(fmt.Sprintf("Error while syncing device state: %s", err.Error()))
	}
}

func (callback *DeviceSyncCallback) OnFitEnd(module *TrainingModule) {}

// PerfStatsCallback tracks throughput and logs a summary every logFreq
// epochs.
type PerfStatsCallback struct {
	tracker *perf.Tracker
	logFreq int32
	logger  hclog.Logger
}

func NewPerfStatsCallback(batchSize int32, numIters int32, logFreq int32, logger hclog.Logger) *PerfStatsCallback {
	return &PerfStatsCallback{
		tracker: perf.NewTracker(batchSize, numIters),
		logFreq: logFreq,
		logger:  logger,
	}
}

func (callback *PerfStatsCallback) OnFitStart(module *TrainingModule) {}

func (callback *PerfStatsCallback) OnEpochEnd(stats *model.EpochStats, duration time.Duration) {
	callback.tracker.RecordEpoch(duration)

	if callback.logFreq > 0 && stats.Epoch%callback.logFreq == 0 {
		callback.logger.Info(fmt.Sprintf("Perf stats :: %s", callback.tracker.Summary()))
	}
}

func (callback *PerfStatsCallback) OnFitEnd(module *TrainingModule) {
	callback.logger.Info(fmt.Sprintf("Final perf stats :: %s", callback.tracker.Summary()))
}

func (callback *PerfStatsCallback) Tracker() *perf.Tracker {
	return callback.tracker
}
