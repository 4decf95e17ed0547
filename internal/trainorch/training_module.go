package trainorch

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
	"github.com/hashicorp/go-hclog"
)

// TrainingModule is the handle to the device-resident simulation + policy
// networks owned by the backend. GracefulClose releases the device memory and
// is safe to call more than once.
type TrainingModule struct {
	backend    trainback.ITrainingBackend
	envWrapper *EnvWrapper
	handle     *model.ModuleHandle
	logger     hclog.Logger

	mu     sync.Mutex
	closed bool
}

func NewTrainingModule(backend trainback.ITrainingBackend, envWrapper *EnvWrapper, config *runconfig.RunConfig,
	policyToAgentIds map[string][]int32, logger hclog.Logger) (*TrainingModule, error) {
	configFiles, err := BuildModuleConfigFiles(config)
	if err != nil {
		return nil, fmt.Errorf("building module config files: %w", err)
	}

	spec := &model.ModuleSpec{
		Env:               envWrapper.Env,
		NumEnvs:           envWrapper.NumEnvs,
		UseCuda:           envWrapper.UseCuda,
		PolicyToAgentIds:  policyToAgentIds,
		TrainingBatchSize: config.Trainer.TrainBatchSize,
		NumIters:          config.NumEpochs(),
	}

	handle, err := backend.AllocateModule(spec, configFiles)
	if err != nil {
		return nil, fmt.Errorf("allocating training module: %w", err)
	}

	logger.Info(fmt.Sprintf("Training module %s allocated on device %d", handle.Id, handle.Device))

	return &TrainingModule{
		backend:    backend,
		envWrapper: envWrapper,
		handle:     handle,
		logger:     logger,
	}, nil
}

func (module *TrainingModule) Env() *model.TagEnv {
	return module.envWrapper.Env
}

func (module *TrainingModule) Handle() *model.ModuleHandle {
	return module.handle
}

func (module *TrainingModule) TrainingBatchSize() int32 {
	return module.handle.TrainingBatchSize
}

func (module *TrainingModule) NumIters() int32 {
	return module.handle.NumIters
}

// RunEpoch delegates one optimization epoch to the backend and returns its
// summary statistics.
func (module *TrainingModule) RunEpoch(epoch int32) (*model.EpochStats, error) {
	return module.backend.RunEpoch(module.handle, epoch)
}

// SyncDevice reconciles the module's host-visible state with the accelerator.
func (module *TrainingModule) SyncDevice() error {
	return module.backend.SyncDevice(module.handle)
}

// FetchEpisodeStates runs a full episode with the current policies and
// returns the requested state channels as a typed snapshot.
func (module *TrainingModule) FetchEpisodeStates(channels ...string) (*model.EpisodeStates, error) {
	raw, err := module.backend.FetchEpisodeStates(module.handle, channels)
	if err != nil {
		return nil, fmt.Errorf("fetching episode states: %w", err)
	}

	return common.EpisodeStatesFromChannels(raw)
}

func (module *TrainingModule) TrainerLogs() (bytes.Buffer, error) {
	return module.backend.GetTrainerLogs(module.handle)
}

// GracefulClose releases the device-resident module. Idempotent.
func (module *TrainingModule) GracefulClose() error {
	module.mu.Lock()
	defer module.mu.Unlock()

	if module.closed {
		return nil
	}

	if err := module.backend.ReleaseModule(module.handle); err != nil {
		return fmt.Errorf("releasing training module: %w", err)
	}
	module.closed = true

	module.logger.Info(fmt.Sprintf("Training module %s released", module.handle.Id))

	return nil
}
