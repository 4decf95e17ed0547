package trainorch

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/perf"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// RlOrchestrator wires a run configuration into the training backend: it
// checks the accelerator precondition, allocates the module, attaches
// callbacks, runs the trainer loop and monitors the external trainer's logs.
// Stop releases the device-resident module and is safe on every exit path.
type RlOrchestrator struct {
	backend          trainback.ITrainingBackend
	eventBus         *events.EventBus
	logger           hclog.Logger
	config           *runconfig.RunConfig
	useCuda          bool
	envWrapper       *EnvWrapper
	module           *TrainingModule
	trainer          *Trainer
	monitorScheduler *cron.Cron
	progress         *TrainingProgress
	resultsFileName  string
	stopOnce         sync.Once
}

type TrainingProgress struct {
	mu                      sync.Mutex
	epoch                   int32
	rewards                 []float64
	losses                  []float64
	rewardHasPlateaued      bool
	predictedEpochForTarget int32
}

// Minimum parsed epochs before fitting the reward curve.
const predictionMinSamples = 5

func NewRlOrchestrator(backend trainback.ITrainingBackend, eventBus *events.EventBus, logger hclog.Logger,
	config *runconfig.RunConfig, useCuda bool) (*RlOrchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}

	env := &model.TagEnv{
		NumTaggers:    config.Env.NumTaggers,
		NumRunners:    config.Env.NumRunners,
		GridLength:    config.Env.GridLength,
		EpisodeLength: config.Env.EpisodeLength,
	}

	envWrapper, err := NewEnvWrapper(env, config.Trainer.NumEnvs, useCuda)
	if err != nil {
		return nil, err
	}

	return &RlOrchestrator{
		backend:          backend,
		eventBus:         eventBus,
		logger:           logger,
		config:           config,
		useCuda:          useCuda,
		envWrapper:       envWrapper,
		monitorScheduler: cron.New(cron.WithSeconds()),
	}, nil
}

// Allocate checks the accelerator precondition, allocates the training module
// and prepares the trainer with its callbacks. Must be called before Fit.
func (orch *RlOrchestrator) Allocate() error {
	deviceCount, err := orch.backend.DeviceCount()
	if err != nil {
		orch.logger.Error(err.Error())
		return err
	}
	if orch.useCuda && deviceCount < 1 {
		return fmt.Errorf("training requires at least one GPU, backend reports %d", deviceCount)
	}

	policyToAgentIds := orch.envWrapper.PolicyToAgentIdMap()

	module, err := NewTrainingModule(orch.backend, orch.envWrapper, orch.config, policyToAgentIds, orch.logger)
	if err != nil {
		orch.logger.Error(err.Error())
		return err
	}
	orch.module = module

	accelerator := common.ACCELERATOR_CPU
	if orch.useCuda {
		accelerator = common.ACCELERATOR_GPU
	}

	callbacks := []Callback{
		NewDeviceSyncCallback(module, orch.logger),
		NewPerfStatsCallback(module.TrainingBatchSize(), module.NumIters(), orch.config.Saving.MetricsLogFreq, orch.logger),
	}

	orch.trainer = NewTrainer(accelerator, 1, callbacks, orch.config.NumEpochs(), orch.eventBus, orch.logger)

	orch.progress = &TrainingProgress{
		epoch:   1,
		rewards: []float64{},
		losses:  []float64{},
	}

	orch.resultsFileName = getResultsFileName(orch.config.Saving)

	trainingFinishedChan := make(chan events.Event, 8)
	orch.eventBus.Subscribe(common.TRAINING_FINISHED_EVENT_TYPE, trainingFinishedChan)
	go orch.trainingFinishedHandler(trainingFinishedChan)

	orch.monitorScheduler.AddFunc("@every 5s", orch.monitorTrainingProgress)
	orch.monitorScheduler.Start()

	orch.printConfiguration()

	return nil
}

// Start allocates the module and runs the trainer loop in the background.
// Used by the HTTP control surface; the linear driver calls Fit directly.
func (orch *RlOrchestrator) Start() error {
	if err := orch.Allocate(); err != nil {
		return err
	}

	go func() {
		if err := orch.trainer.Fit(context.Background(), orch.module); err != nil {
			orch.logger.Error(fmt.Sprintf("Training failed: %s", err.Error()))
		}
	}()

	return nil
}

// Fit blocks until the trainer loop finishes.
func (orch *RlOrchestrator) Fit(ctx context.Context) error {
	if orch.module == nil {
		return fmt.Errorf("module not allocated, call Allocate first")
	}
	return orch.trainer.Fit(ctx, orch.module)
}

func (orch *RlOrchestrator) Module() *TrainingModule {
	return orch.module
}

func (orch *RlOrchestrator) Env() *model.TagEnv {
	return orch.envWrapper.Env
}

// FetchEpisodeStates pulls the position and liveness channels for one full
// episode rolled out with the current policies.
func (orch *RlOrchestrator) FetchEpisodeStates() (*model.EpisodeStates, error) {
	if orch.module == nil {
		return nil, fmt.Errorf("module not allocated, call Allocate first")
	}
	return orch.module.FetchEpisodeStates(common.STATE_LOC_X, common.STATE_LOC_Y, common.STATE_STILL_IN_GAME)
}

// Stop releases the device-resident module and stops all notifiers.
// Idempotent: every exit path of the driver may call it.
func (orch *RlOrchestrator) Stop() {
	orch.stopOnce.Do(func() {
		orch.monitorScheduler.Stop()
		orch.backend.StopAllNotifiers()

		if orch.module != nil {
			if err := orch.module.GracefulClose(); err != nil {
				orch.logger.Error(fmt.Sprintf("Error while releasing training module: %s", err.Error()))
			}
		}
	})
}

// GracefulClose releases the device memory held by the training module.
func (orch *RlOrchestrator) GracefulClose() {
	orch.Stop()
}

func (orch *RlOrchestrator) trainingFinishedHandler(eventChan chan events.Event) {
	for event := range eventChan {
		trainingFinishedEvent, ok := event.Data.(events.TrainingFinishedEvent)
		if !ok {
			orch.logger.Info("Invalid event data")
			continue
		}
		if trainingFinishedEvent.ModuleId != orch.module.Handle().Id {
			continue
		}

		orch.logger.Info(fmt.Sprintf("Training finished! Exit message: %s", trainingFinishedEvent.ExitMessage))
		orch.eventBus.Unsubscribe(common.TRAINING_FINISHED_EVENT_TYPE, eventChan)

		// On a clean finish the module stays resident so rollouts can still
		// be fetched with the trained policies; release stays with the
		// caller. A failed or cancelled run releases immediately.
		if trainingFinishedEvent.ExitCode != 0 {
			orch.Stop()
		}

		return
	}
}

func (orch *RlOrchestrator) monitorTrainingProgress() {
	logsBuffer, err := orch.module.TrainerLogs()
	if err != nil {
		orch.logger.Error(fmt.Sprintf("Error while obtaining trainer logs: %s", err.Error()))
		return
	}

	orch.progress.mu.Lock()
	defer orch.progress.mu.Unlock()

	logs := logsBuffer.String()
	for strings.Contains(logs, fmt.Sprintf("epoch %d:", orch.progress.epoch)) {
		finishedEpoch := orch.progress.epoch

		reward, rewardFound := getRewardForEpochFromLogs(logs, finishedEpoch)
		loss, lossFound := getLossForEpochFromLogs(logs, finishedEpoch)
		if !rewardFound || !lossFound {
			return
		}

		orch.progress.rewards = append(orch.progress.rewards, reward)
		orch.progress.losses = append(orch.progress.losses, loss)

		if orch.config.Saving.MetricsLogFreq > 0 && finishedEpoch%orch.config.Saving.MetricsLogFreq == 0 {
			orch.logger.Info(fmt.Sprintf("Finished epoch %d | mean reward: %.2f | loss: %.2f", finishedEpoch, reward, loss))
		}

		orch.progress.rewardHasPlateaued = hasPlateaued(orch.progress.rewards, 0.1, 5, 3)
		if orch.progress.rewardHasPlateaued {
			orch.logger.Info("Mean reward has plateaued!")
		}

		if len(orch.progress.rewards) >= predictionMinSamples && finishedEpoch%orch.config.Saving.MetricsLogFreq == 0 {
			orch.updateRewardPrediction()
		}

		writeResultsToFile(orch.resultsFileName, finishedEpoch, reward, loss)

		orch.progress.epoch++
	}
}

// updateRewardPrediction fits the reward curve over the epochs parsed so far
// and records the epoch at which the target mean reward is expected. Called
// with the progress mutex held.
func (orch *RlOrchestrator) updateRewardPrediction() {
	prediction, err := perf.NewRewardPrediction(orch.progress.rewards, orch.progress.losses,
		perf.LogarithmicRegression_PredictionType, 0)
	if err != nil {
		orch.logger.Error(fmt.Sprintf("Error while fitting the reward curve: %s", err.Error()))
		return
	}

	epochPredicted := prediction.PredictEpochForReward(orch.config.Trainer.TargetMeanReward)
	orch.progress.predictedEpochForTarget = epochPredicted

	orch.logger.Info(fmt.Sprintf("Reward curve %s | predicted epoch for target reward %.1f: %d",
		prediction.PrintPrediction(), orch.config.Trainer.TargetMeanReward, epochPredicted))
}

// PredictedEpochForTarget returns the epoch at which the target mean reward
// is expected, or 0 if the curve has not been fitted yet.
func (orch *RlOrchestrator) PredictedEpochForTarget() int32 {
	orch.progress.mu.Lock()
	defer orch.progress.mu.Unlock()

	return orch.progress.predictedEpochForTarget
}

// Progress returns the rewards and losses parsed so far from trainer logs.
func (orch *RlOrchestrator) Progress() ([]float64, []float64) {
	orch.progress.mu.Lock()
	defer orch.progress.mu.Unlock()

	rewards := make([]float64, len(orch.progress.rewards))
	copy(rewards, orch.progress.rewards)
	losses := make([]float64, len(orch.progress.losses))
	copy(losses, orch.progress.losses)

	return rewards, losses
}

func (orch *RlOrchestrator) printConfiguration() {
	configToPrint := ""

	configToPrint += fmt.Sprintln("Run configuration ::")
	configToPrint += fmt.Sprintf("\tName:%s\t| Taggers:%d\t| Runners:%d\t| Grid:%.1f\t| Episode length:%d\n",
		orch.config.Name, orch.config.Env.NumTaggers, orch.config.Env.NumRunners,
		orch.config.Env.GridLength, orch.config.Env.EpisodeLength)
	configToPrint += fmt.Sprintf("\tReplicas:%d\t| Batch size:%d\t| Episode budget:%d\t| Epochs:%d\n",
		orch.config.Trainer.NumEnvs, orch.config.Trainer.TrainBatchSize,
		orch.config.Trainer.NumEpisodes, orch.config.NumEpochs())
	configToPrint += fmt.Sprintln("Policies ::")
	for name, policy := range orch.config.Policy {
		configToPrint += fmt.Sprintf("\t%s\t| Algorithm:%s\t| Gamma:%g\t| LR:%g\t| Trainable:%t\n",
			name, policy.Algorithm, policy.Gamma, policy.LR, policy.ToTrain)
	}

	orch.logger.Info(configToPrint)
}

// HELPERS

func getRewardForEpochFromLogs(logs string, epoch int32) (float64, bool) {
	pattern := fmt.Sprintf(`epoch %d: \{'mean_reward': (-?[0-9]*\.[0-9]+)`, epoch)
	r := regexp.MustCompile(pattern)

	match := r.FindStringSubmatch(logs)
	if match == nil {
		return 0, false
	}

	reward, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return reward, true
}

func getLossForEpochFromLogs(logs string, epoch int32) (float64, bool) {
	pattern := fmt.Sprintf(`epoch %d: \{'mean_reward': -?[0-9]*\.[0-9]+, 'loss': (-?[0-9]*\.[0-9]+)`, epoch)
	r := regexp.MustCompile(pattern)

	match := r.FindStringSubmatch(logs)
	if match == nil {
		return 0, false
	}

	loss, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return loss, true
}

func movingAverage(values []float64, windowSize int) []float64 {
	if len(values) < windowSize {
		return nil // Not enough data for the window size
	}
	averages := make([]float64, len(values)-windowSize+1)
	for i := 0; i <= len(values)-windowSize; i++ {
		averages[i] = common.CalculateAverageFloat64(values[i : i+windowSize])
	}
	return averages
}

func hasPlateaued(rewards []float64, threshold float64, patience int, windowSize int) bool {
	averages := movingAverage(rewards, windowSize)
	if len(averages) < patience+1 {
		return false // Not enough data to determine a plateau
	}

	for i := len(averages) - patience; i < len(averages); i++ {
		improvement := averages[i] - averages[i-1]
		if math.Abs(improvement) > threshold {
			return false
		}
	}
	return true
}

func getResultsFileName(saving runconfig.SavingConfig) string {
	resultsDir := filepath.Join(saving.Basedir, "results")
	os.MkdirAll(resultsDir, 0777)
	return filepath.Join(resultsDir, fmt.Sprintf("%s_%s_%s.csv", saving.Name, saving.Tag,
		time.Now().Format("2006-01-02_15-04")))
}

func writeResultsToFile(fileName string, epoch int32, reward float64, loss float64) {
	file, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Failed to open file: %v\n", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	record := []string{fmt.Sprintf("%d", epoch), fmt.Sprintf("%.4f", reward), fmt.Sprintf("%.4f", loss)}
	if err := writer.Write(record); err != nil {
		fmt.Printf("Failed to write record: %v\n", err)
		return
	}
}
