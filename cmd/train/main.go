package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/render"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback/cudaback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback/dummyback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
	"github.com/hashicorp/go-hclog"
)

// The linear training driver: build the run configuration, allocate the
// training module, render a rollout before training, fit, render a rollout
// after training. The module is released on every exit path.
func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "rl-orch",
		Level: hclog.LevelFromString("INFO"),
	})

	eventBus := events.NewEventBus()

	backendType := common.BACKEND_SIM
	serviceUrl := ""
	if len(os.Args) == 3 {
		backendType = os.Args[1]
		serviceUrl = os.Args[2]
	}

	var backend trainback.ITrainingBackend
	useCuda := false
	if backendType == common.BACKEND_CUDA {
		backend = cudaback.NewCudaBack(serviceUrl, eventBus)
		useCuda = true
	} else {
		backend = dummyback.NewDummyBack(eventBus, 1)
	}

	// This driver needs at least one GPU-class device in cuda mode.
	deviceCount, err := backend.DeviceCount()
	if err != nil {
		logger.Error("Error querying device count", "error", err)
		os.Exit(1)
	}
	if useCuda && deviceCount < 1 {
		logger.Error("Training needs a GPU to run, none available")
		os.Exit(1)
	}

	config := runconfig.Default()

	orchestrator, err := trainorch.NewRlOrchestrator(backend, eventBus, logger, config, useCuda)
	if err != nil {
		logger.Error("Error creating orchestrator", "error", err)
		os.Exit(1)
	}

	if err := orchestrator.Allocate(); err != nil {
		logger.Error("Error allocating training module", "error", err)
		os.Exit(1)
	}
	defer orchestrator.GracefulClose()

	if err := saveRolloutAnimation(orchestrator, config, "rollout_before.gif", logger); err != nil {
		logger.Error("Error rendering pre-training rollout", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := orchestrator.Fit(ctx); err != nil {
		logger.Error("Training failed", "error", err)
		return
	}

	if err := saveRolloutAnimation(orchestrator, config, "rollout_after.gif", logger); err != nil {
		logger.Error("Error rendering post-training rollout", "error", err)
	}
}

// saveRolloutAnimation fetches one episode rolled out with the current
// policies and writes it as a GIF under the configured base directory.
func saveRolloutAnimation(orchestrator *trainorch.RlOrchestrator, config *runconfig.RunConfig,
	fileName string, logger hclog.Logger) error {
	states, err := orchestrator.FetchEpisodeStates()
	if err != nil {
		return err
	}

	opts := render.DefaultOptions()
	frames, err := render.BuildFrames(states, orchestrator.Env(), opts)
	if err != nil {
		return err
	}

	outPath := filepath.Join(config.Saving.Basedir, fileName)
	file, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := render.NewAnimation(frames, opts).EncodeGIF(file); err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("Saved rollout animation with %d frames to %s", len(frames), outPath))

	return nil
}
