package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/render"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

type Handler struct {
	logger     hclog.Logger
	eventBus   *events.EventBus
	backend    trainback.ITrainingBackend
	useCuda    bool
	wsUpgrader websocket.Upgrader

	mu            sync.Mutex
	orchestrators map[string]*trainorch.RlOrchestrator
}

func NewHandler(logger hclog.Logger, eventBus *events.EventBus, backend trainback.ITrainingBackend, useCuda bool) *Handler {
	return &Handler{
		logger:        logger,
		eventBus:      eventBus,
		backend:       backend,
		useCuda:       useCuda,
		wsUpgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		orchestrators: map[string]*trainorch.RlOrchestrator{},
	}
}

func (handler *Handler) StartRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := uuid.New().String()

	// an empty body is a valid request for a run with the default setup
	request := &StartRunRequest{}
	if err := fromJSON(request, r.Body); err != nil && !errors.Is(err, io.EOF) {
		handler.logger.Error("error starting run: ", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("invalid request body", rw)
		return
	}

	config := request.Config
	if config == nil {
		config = runconfig.Default()
	}

	orchestrator, err := trainorch.NewRlOrchestrator(handler.backend, handler.eventBus, handler.logger, config, handler.useCuda)
	if err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON(err.Error(), rw)
		return
	}

	handler.logger.Info(fmt.Sprintf("Starting run %s with config %s for %d epochs", runId, config.Name, config.NumEpochs()))

	if err := orchestrator.Start(); err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	handler.mu.Lock()
	handler.orchestrators[runId] = orchestrator
	handler.mu.Unlock()

	rw.WriteHeader(http.StatusOK)
	toJSON(StartRunResponse{RunId: runId, NumEpochs: config.NumEpochs()}, rw)
}

func (handler *Handler) StopRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	handler.logger.Info(fmt.Sprintf("Stopping run with ID: %s", runId))

	orchestrator := handler.getOrchestrator(runId)
	if orchestrator != nil {
		orchestrator.Stop()
		rw.WriteHeader(http.StatusOK)
	} else {
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("no run with the given ID", rw)
	}
}

// GetRollout rolls out one episode with the run's current policies and
// returns the computed animation frames.
func (handler *Handler) GetRollout(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	orchestrator := handler.getOrchestrator(runId)
	if orchestrator == nil {
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("no run with the given ID", rw)
		return
	}

	states, err := orchestrator.FetchEpisodeStates()
	if err != nil {
		handler.logger.Error("error fetching episode states", "error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	frames, err := render.BuildFrames(states, orchestrator.Env(), render.DefaultOptions())
	if err != nil {
		handler.logger.Error("error building rollout frames", "error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusOK)
	toJSON(RolloutResponse{RunId: runId, Frames: frames}, rw)
}

// GetMetrics reports the run's training progress parsed from trainer logs so
// far: per-epoch rewards and losses, their mean, and the predicted epoch at
// which the configured target reward will be reached.
func (handler *Handler) GetMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	orchestrator := handler.getOrchestrator(runId)
	if orchestrator == nil {
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("no run with the given ID", rw)
		return
	}

	rewards, losses := orchestrator.Progress()

	rw.WriteHeader(http.StatusOK)
	toJSON(MetricsResponse{
		RunId:                   runId,
		EpochsCompleted:         int32(len(rewards)),
		MeanReward:              common.CalculateAverageFloat64(rewards),
		PredictedEpochForTarget: orchestrator.PredictedEpochForTarget(),
		Rewards:                 rewards,
		Losses:                  losses,
	}, rw)
}

// StreamMetrics upgrades to a websocket and forwards the run's epoch metrics
// events. The stream ends when the run finishes or the client disconnects;
// either way the subscription and the connection are torn down.
func (handler *Handler) StreamMetrics(rw http.ResponseWriter, r *http.Request) {
	runId := getURLParameter(r, "runId")

	orchestrator := handler.getOrchestrator(runId)
	if orchestrator == nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	moduleId := orchestrator.Module().Handle().Id

	conn, err := handler.wsUpgrader.Upgrade(rw, r, nil)
	if err != nil {
		handler.logger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	epochChan := make(chan events.Event, 64)
	handler.eventBus.Subscribe(common.EPOCH_COMPLETED_EVENT_TYPE, epochChan)
	defer handler.eventBus.Unsubscribe(common.EPOCH_COMPLETED_EVENT_TYPE, epochChan)

	finishedChan := make(chan events.Event, 8)
	handler.eventBus.Subscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)
	defer handler.eventBus.Unsubscribe(common.TRAINING_FINISHED_EVENT_TYPE, finishedChan)

	// the reader's only job is noticing the client going away; its read
	// unblocks with an error once the deferred Close runs
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-epochChan:
			epochEvent, ok := event.Data.(events.EpochCompletedEvent)
			if !ok || epochEvent.ModuleId != moduleId {
				continue
			}
			if err := conn.WriteJSON(epochEvent); err != nil {
				return
			}
		case event := <-finishedChan:
			finishedEvent, ok := event.Data.(events.TrainingFinishedEvent)
			if ok && finishedEvent.ModuleId == moduleId {
				return
			}
		case <-clientGone:
			return
		}
	}
}

// StopAllRuns stops every tracked run and releases its module. Called when
// the server shuts down.
func (handler *Handler) StopAllRuns() {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	for runId, orchestrator := range handler.orchestrators {
		handler.logger.Info(fmt.Sprintf("Stopping run %s", runId))
		orchestrator.Stop()
		delete(handler.orchestrators, runId)
	}
}

func (handler *Handler) getOrchestrator(runId string) *trainorch.RlOrchestrator {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	return handler.orchestrators[runId]
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	id := vars[parameter]
	return id
}
