package dummyback

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DummyBack is the in-process stand-in for the external GPU training service,
// used in simulation mode and in tests. It serves scripted episode snapshots
// and synthetic trainer logs; it does not simulate the game.
type DummyBack struct {
	mu            sync.Mutex
	eventBus      *events.EventBus
	cronScheduler *cron.Cron
	deviceCount   int32
	modules       map[string]*dummyModule
}

type dummyModule struct {
	spec       *model.ModuleSpec
	logs       bytes.Buffer
	epochsRun  int32
	lastReward float64
	lastLoss   float64
}

func NewDummyBack(eventBus *events.EventBus, deviceCount int32) *DummyBack {
	return &DummyBack{
		eventBus:      eventBus,
		cronScheduler: cron.New(cron.WithSeconds()),
		deviceCount:   deviceCount,
		modules:       make(map[string]*dummyModule),
	}
}

func (back *DummyBack) DeviceCount() (int32, error) {
	return back.deviceCount, nil
}

func (back *DummyBack) AllocateModule(spec *model.ModuleSpec, configFiles map[string]string) (*model.ModuleHandle, error) {
	if spec == nil || spec.Env == nil {
		return nil, fmt.Errorf("module spec is incomplete")
	}

	back.mu.Lock()
	defer back.mu.Unlock()

	handle := &model.ModuleHandle{
		Id:                uuid.New().String(),
		Device:            0,
		TrainingBatchSize: spec.TrainingBatchSize,
		NumIters:          spec.NumIters,
	}
	back.modules[handle.Id] = &dummyModule{spec: spec}

	return handle, nil
}

func (back *DummyBack) RunEpoch(handle *model.ModuleHandle, epoch int32) (*model.EpochStats, error) {
	back.mu.Lock()
	defer back.mu.Unlock()

	module, ok := back.modules[handle.Id]
	if !ok {
		return nil, fmt.Errorf("no module with id %s", handle.Id)
	}

	// Scripted learning curve: reward climbs logarithmically, loss decays.
	module.epochsRun++
	module.lastReward = -5.0 + 8.0*math.Log(float64(epoch)+1)
	module.lastLoss = 3.0/float64(epoch) + 0.05
	fmt.Fprintf(&module.logs, "epoch %d: {'mean_reward': %.4f, 'loss': %.4f}\n", epoch, module.lastReward, module.lastLoss)

	return &model.EpochStats{
		Epoch:          epoch,
		MeanReward:     module.lastReward,
		Loss:           module.lastLoss,
		StepsPerSecond: float64(module.spec.TrainingBatchSize) * 2.5,
	}, nil
}

func (back *DummyBack) SyncDevice(handle *model.ModuleHandle) error {
	back.mu.Lock()
	defer back.mu.Unlock()

	if _, ok := back.modules[handle.Id]; !ok {
		return fmt.Errorf("no module with id %s", handle.Id)
	}
	return nil
}

func (back *DummyBack) FetchEpisodeStates(handle *model.ModuleHandle, channels []string) (map[string][][]float64, error) {
	back.mu.Lock()
	module, ok := back.modules[handle.Id]
	back.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no module with id %s", handle.Id)
	}

	locX, locY, stillInGame := scriptedRollout(module.spec.Env)
	all := map[string][][]float64{
		common.STATE_LOC_X:         locX,
		common.STATE_LOC_Y:         locY,
		common.STATE_STILL_IN_GAME: stillInGame,
	}

	states := map[string][][]float64{}
	for _, channel := range channels {
		if data, ok := all[channel]; ok {
			states[channel] = data
		}
	}

	return states, nil
}

func (back *DummyBack) GetTrainerLogs(handle *model.ModuleHandle) (bytes.Buffer, error) {
	back.mu.Lock()
	defer back.mu.Unlock()

	module, ok := back.modules[handle.Id]
	if !ok {
		return bytes.Buffer{}, fmt.Errorf("no module with id %s", handle.Id)
	}

	var logs bytes.Buffer
	logs.Write(module.logs.Bytes())
	return logs, nil
}

func (back *DummyBack) ReleaseModule(handle *model.ModuleHandle) error {
	back.mu.Lock()
	defer back.mu.Unlock()

	delete(back.modules, handle.Id)
	return nil
}

// IsAllocated reports whether a module is still resident; released handles
// return false. Used by simulation-mode checks and tests.
func (back *DummyBack) IsAllocated(handle *model.ModuleHandle) bool {
	back.mu.Lock()
	defer back.mu.Unlock()

	_, ok := back.modules[handle.Id]
	return ok
}

func (back *DummyBack) StartDeviceHeartbeat() {
	back.cronScheduler.AddFunc("@every 1s", back.notifyDeviceHeartbeat)

	back.cronScheduler.Start()
}

func (back *DummyBack) StopAllNotifiers() {
	back.cronScheduler.Stop()
}

func (back *DummyBack) notifyDeviceHeartbeat() {
	back.eventBus.Publish(events.Event{
		Type:      common.DEVICE_HEARTBEAT_EVENT_TYPE,
		Timestamp: time.Now(),
		Data: events.DeviceHeartbeatEvent{
			DeviceCount: back.deviceCount,
		},
	})
}

// scriptedRollout produces a deterministic walk for episode_length+1
// timesteps: agents drift diagonally with wraparound and runners leave the
// game on a fixed schedule. Positions freeze once an agent is out.
func scriptedRollout(env *model.TagEnv) ([][]float64, [][]float64, [][]float64) {
	numTimesteps := int(env.EpisodeLength) + 1
	numAgents := int(env.NumAgents())

	exitInterval := int(env.EpisodeLength) / (int(env.NumRunners) + 1)
	if exitInterval < 1 {
		exitInterval = 1
	}

	locX := make([][]float64, numTimesteps)
	locY := make([][]float64, numTimesteps)
	stillInGame := make([][]float64, numTimesteps)

	for t := 0; t < numTimesteps; t++ {
		locX[t] = make([]float64, numAgents)
		locY[t] = make([]float64, numAgents)
		stillInGame[t] = make([]float64, numAgents)

		for idx := 0; idx < numAgents; idx++ {
			exitStep := numTimesteps // taggers never leave
			if !env.IsTagger(int32(idx)) {
				runnerRank := idx - int(env.NumTaggers)
				exitStep = (runnerRank + 1) * exitInterval
			}

			effectiveT := t
			if t >= exitStep {
				effectiveT = exitStep
			} else {
				stillInGame[t][idx] = 1.0
			}

			start := float64(idx) * env.GridLength / float64(numAgents)
			locX[t][idx] = math.Mod(start+float64(effectiveT)*0.05*env.GridLength, env.GridLength)
			locY[t][idx] = math.Mod(start+float64(effectiveT)*0.03*env.GridLength, env.GridLength)
		}
	}

	return locX, locY, stillInGame
}
