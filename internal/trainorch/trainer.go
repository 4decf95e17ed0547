package trainorch

import (
	"context"
	"fmt"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/hashicorp/go-hclog"
)

// Trainer drives the optimization loop against a training module. The actual
// gradient computation happens on the backend; Fit sequences epochs, invokes
// callbacks and publishes progress events.
type Trainer struct {
	Accelerator string
	Devices     int32
	Callbacks   []Callback
	MaxEpochs   int32

	eventBus *events.EventBus
	logger   hclog.Logger
}

func NewTrainer(accelerator string, devices int32, callbacks []Callback, maxEpochs int32,
	eventBus *events.EventBus, logger hclog.Logger) *Trainer {
	return &Trainer{
		Accelerator: accelerator,
		Devices:     devices,
		Callbacks:   callbacks,
		MaxEpochs:   maxEpochs,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// Fit runs the full training loop. It blocks until MaxEpochs epochs have
// completed, the context is cancelled, or the backend fails. A
// TrainingFinished event is published on every exit path.
func (trainer *Trainer) Fit(ctx context.Context, module *TrainingModule) error {
	if trainer.MaxEpochs < 1 {
		return fmt.Errorf("maxEpochs must be >= 1, got %d", trainer.MaxEpochs)
	}

	trainer.logger.Info(fmt.Sprintf("Starting training on %s with %d device(s) for %d epochs",
		trainer.Accelerator, trainer.Devices, trainer.MaxEpochs))

	for _, callback := range trainer.Callbacks {
		callback.OnFitStart(module)
	}

	for epoch := int32(1); epoch <= trainer.MaxEpochs; epoch++ {
		select {
		case <-ctx.Done():
			trainer.publishTrainingFinished(module, 1, fmt.Sprintf("training cancelled at epoch %d", epoch))
			return ctx.Err()
		default:
		}

		start := time.Now()
		stats, err := module.RunEpoch(epoch)
		if err != nil {
			trainer.publishTrainingFinished(module, 1, fmt.Sprintf("epoch %d failed: %s", epoch, err.Error()))
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}
		duration := time.Since(start)

		for _, callback := range trainer.Callbacks {
			callback.OnEpochEnd(stats, duration)
		}

		trainer.eventBus.Publish(events.Event{
			Type:      common.EPOCH_COMPLETED_EVENT_TYPE,
			Timestamp: time.Now(),
			Data: events.EpochCompletedEvent{
				ModuleId:       module.Handle().Id,
				Epoch:          stats.Epoch,
				MeanReward:     stats.MeanReward,
				Loss:           stats.Loss,
				StepsPerSecond: stats.StepsPerSecond,
			},
		})
	}

	for _, callback := range trainer.Callbacks {
		callback.OnFitEnd(module)
	}

	trainer.publishTrainingFinished(module, 0, fmt.Sprintf("completed %d epochs", trainer.MaxEpochs))

	return nil
}

func (trainer *Trainer) publishTrainingFinished(module *TrainingModule, exitCode int32, exitMessage string) {
	trainer.eventBus.Publish(events.Event{
		Type:      common.TRAINING_FINISHED_EVENT_TYPE,
		Timestamp: time.Now(),
		Data: events.TrainingFinishedEvent{
			ModuleId:    module.Handle().Id,
			ExitCode:    exitCode,
			ExitMessage: exitMessage,
		},
	})
}
