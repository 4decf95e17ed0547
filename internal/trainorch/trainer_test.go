package trainorch

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback/dummyback"
	"github.com/hashicorp/go-hclog"
)

type recordingCallback struct {
	fitStarts int
	epochEnds int
	fitEnds   int
}

func (callback *recordingCallback) OnFitStart(module *TrainingModule) { callback.fitStarts++ }
func (callback *recordingCallback) OnEpochEnd(stats *model.EpochStats, duration time.Duration) {
	callback.epochEnds++
}
func (callback *recordingCallback) OnFitEnd(module *TrainingModule) { callback.fitEnds++ }

func newTestModule(t *testing.T, eventBus *events.EventBus) (*TrainingModule, *dummyback.DummyBack) {
	t.Helper()

	back := dummyback.NewDummyBack(eventBus, 1)
	config := smallTestConfig(t)

	envWrapper, err := NewEnvWrapper(&model.TagEnv{
		NumTaggers:    config.Env.NumTaggers,
		NumRunners:    config.Env.NumRunners,
		GridLength:    config.Env.GridLength,
		EpisodeLength: config.Env.EpisodeLength,
	}, config.Trainer.NumEnvs, false)
	if err != nil {
		t.Fatalf("NewEnvWrapper failed: %v", err)
	}

	module, err := NewTrainingModule(back, envWrapper, config, envWrapper.PolicyToAgentIdMap(), hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("NewTrainingModule failed: %v", err)
	}
	return module, back
}

func TestTrainerFitInvokesCallbacks(t *testing.T) {
	eventBus := events.NewEventBus()
	module, _ := newTestModule(t, eventBus)
	defer module.GracefulClose()

	finishedChan := make(chan events.Event, 1)
	eventBus.Subscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)
	defer eventBus.Unsubscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)

	callback := &recordingCallback{}
	trainer := NewTrainer(common.ACCELERATOR_CPU, 1, []Callback{callback}, 5, eventBus, hclog.NewNullLogger())

	if err := trainer.Fit(context.Background(), module); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if callback.fitStarts != 1 {
		t.Errorf("Expected 1 fit start, got %d", callback.fitStarts)
	}
	if callback.epochEnds != 5 {
		t.Errorf("Expected 5 epoch ends, got %d", callback.epochEnds)
	}
	if callback.fitEnds != 1 {
		t.Errorf("Expected 1 fit end, got %d", callback.fitEnds)
	}

	event := <-finishedChan
	finished, ok := event.Data.(events.TrainingFinishedEvent)
	if !ok {
		t.Fatalf("Unexpected payload type %T", event.Data)
	}
	if finished.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d (%s)", finished.ExitCode, finished.ExitMessage)
	}
	if finished.ModuleId != module.Handle().Id {
		t.Errorf("Finished event carries module id %q, expected %q", finished.ModuleId, module.Handle().Id)
	}
}

func TestTrainerFitCancellation(t *testing.T) {
	eventBus := events.NewEventBus()
	module, _ := newTestModule(t, eventBus)
	defer module.GracefulClose()

	finishedChan := make(chan events.Event, 1)
	eventBus.Subscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)
	defer eventBus.Unsubscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainer := NewTrainer(common.ACCELERATOR_CPU, 1, nil, 5, eventBus, hclog.NewNullLogger())
	if err := trainer.Fit(ctx, module); err == nil {
		t.Fatal("Fit with a cancelled context should fail")
	}

	event := <-finishedChan
	finished := event.Data.(events.TrainingFinishedEvent)
	if finished.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", finished.ExitCode)
	}
}

func TestTrainerFitBackendFailure(t *testing.T) {
	eventBus := events.NewEventBus()
	module, back := newTestModule(t, eventBus)

	// releasing the module makes every RunEpoch fail
	if err := back.ReleaseModule(module.Handle()); err != nil {
		t.Fatalf("ReleaseModule failed: %v", err)
	}

	finishedChan := make(chan events.Event, 1)
	eventBus.Subscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)
	defer eventBus.Unsubscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)

	trainer := NewTrainer(common.ACCELERATOR_CPU, 1, nil, 5, eventBus, hclog.NewNullLogger())
	if err := trainer.Fit(context.Background(), module); err == nil {
		t.Fatal("Fit against a released module should fail")
	}

	event := <-finishedChan
	finished := event.Data.(events.TrainingFinishedEvent)
	if finished.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", finished.ExitCode)
	}
}

func TestEnvWrapperPolicyToAgentIdMap(t *testing.T) {
	env := &model.TagEnv{NumTaggers: 2, NumRunners: 3, GridLength: 5, EpisodeLength: 10}

	wrapper, err := NewEnvWrapper(env, 1, false)
	if err != nil {
		t.Fatalf("NewEnvWrapper failed: %v", err)
	}

	mapping := wrapper.PolicyToAgentIdMap()
	if !reflect.DeepEqual(mapping[common.POLICY_TAGGER], []int32{0, 1}) {
		t.Errorf("Unexpected tagger ids: %v", mapping[common.POLICY_TAGGER])
	}
	if !reflect.DeepEqual(mapping[common.POLICY_RUNNER], []int32{2, 3, 4}) {
		t.Errorf("Unexpected runner ids: %v", mapping[common.POLICY_RUNNER])
	}
}

func TestEnvWrapperRejectsBadArguments(t *testing.T) {
	if _, err := NewEnvWrapper(nil, 1, false); err == nil {
		t.Error("Expected an error for a nil environment")
	}

	env := &model.TagEnv{NumTaggers: 1, NumRunners: 1, GridLength: 5, EpisodeLength: 10}
	if _, err := NewEnvWrapper(env, 0, false); err == nil {
		t.Error("Expected an error for zero replicas")
	}
}

func TestTrainingModuleGracefulCloseIsIdempotent(t *testing.T) {
	eventBus := events.NewEventBus()
	module, back := newTestModule(t, eventBus)

	if err := module.GracefulClose(); err != nil {
		t.Fatalf("GracefulClose failed: %v", err)
	}
	if back.IsAllocated(module.Handle()) {
		t.Error("Module should be released")
	}
	if err := module.GracefulClose(); err != nil {
		t.Errorf("Second GracefulClose should be a no-op, got %v", err)
	}
}
