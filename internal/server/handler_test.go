package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback/dummyback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()

	eventBus := events.NewEventBus()
	back := dummyback.NewDummyBack(eventBus, 1)
	handler := NewHandler(hclog.NewNullLogger(), eventBus, back, false)

	router := mux.NewRouter()
	router.HandleFunc("/run/start", handler.StartRun)
	router.HandleFunc("/run/stop/{runId}", handler.StopRun)
	router.HandleFunc("/run/{runId}/rollout", handler.GetRollout)
	router.HandleFunc("/run/{runId}/metrics", handler.GetMetrics)
	router.HandleFunc("/run/{runId}/metrics/ws", handler.StreamMetrics)

	testServer := httptest.NewServer(router)
	t.Cleanup(testServer.Close)
	return testServer, handler
}

func smallTestConfig(t *testing.T) *runconfig.RunConfig {
	t.Helper()

	config := runconfig.Default()
	config.Env.NumTaggers = 1
	config.Env.NumRunners = 3
	config.Env.GridLength = 5.0
	config.Env.EpisodeLength = 10
	config.Trainer.NumEnvs = 2
	config.Trainer.TrainBatchSize = 20
	config.Trainer.NumEpisodes = 10
	config.Saving.Basedir = t.TempDir()
	return config
}

func startTestRun(t *testing.T, testServer *httptest.Server) StartRunResponse {
	t.Helper()

	body, err := json.Marshal(StartRunRequest{Config: smallTestConfig(t)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	response, err := http.Post(testServer.URL+"/run/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /run/start failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("POST /run/start returned status %d", response.StatusCode)
	}

	startResponse := StartRunResponse{}
	if err := fromJSON(&startResponse, response.Body); err != nil {
		t.Fatalf("Decoding the start response failed: %v", err)
	}
	return startResponse
}

func TestStartRun(t *testing.T) {
	testServer, _ := newTestServer(t)

	startResponse := startTestRun(t, testServer)

	if _, err := uuid.Parse(startResponse.RunId); err != nil {
		t.Errorf("Run ID %q is not a valid UUID: %v", startResponse.RunId, err)
	}
	if startResponse.NumEpochs != 5 {
		t.Errorf("Expected 5 epochs, got %d", startResponse.NumEpochs)
	}
}

func TestStartRunRejectsInvalidConfig(t *testing.T) {
	testServer, _ := newTestServer(t)

	config := smallTestConfig(t)
	config.Env.NumRunners = 0
	body, _ := json.Marshal(StartRunRequest{Config: config})

	response, err := http.Post(testServer.URL+"/run/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /run/start failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", response.StatusCode)
	}
}

func TestGetRollout(t *testing.T) {
	testServer, _ := newTestServer(t)

	startResponse := startTestRun(t, testServer)

	response, err := http.Get(fmt.Sprintf("%s/run/%s/rollout", testServer.URL, startResponse.RunId))
	if err != nil {
		t.Fatalf("GET rollout failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("GET rollout returned status %d", response.StatusCode)
	}

	rollout := RolloutResponse{}
	if err := fromJSON(&rollout, response.Body); err != nil {
		t.Fatalf("Decoding the rollout response failed: %v", err)
	}

	if rollout.RunId != startResponse.RunId {
		t.Errorf("Rollout run ID %q does not match %q", rollout.RunId, startResponse.RunId)
	}
	// episode length 10 gives timesteps 0..10
	if len(rollout.Frames) != 11 {
		t.Errorf("Expected 11 frames, got %d", len(rollout.Frames))
	}
	if len(rollout.Frames[0].Markers) != 4 {
		t.Errorf("Expected 4 markers per frame, got %d", len(rollout.Frames[0].Markers))
	}
}

func TestGetRolloutUnknownRun(t *testing.T) {
	testServer, _ := newTestServer(t)

	response, err := http.Get(testServer.URL + "/run/" + uuid.New().String() + "/rollout")
	if err != nil {
		t.Fatalf("GET rollout failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", response.StatusCode)
	}
}

func TestStopRun(t *testing.T) {
	testServer, _ := newTestServer(t)

	startResponse := startTestRun(t, testServer)

	// the run is only 5 epochs; give the background loop a moment to finish
	time.Sleep(100 * time.Millisecond)

	response, err := http.Post(fmt.Sprintf("%s/run/stop/%s", testServer.URL, startResponse.RunId), "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", response.StatusCode)
	}
}

func TestStopRunUnknownId(t *testing.T) {
	testServer, _ := newTestServer(t)

	response, err := http.Post(testServer.URL+"/run/stop/"+uuid.New().String(), "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", response.StatusCode)
	}
}

func TestStartRunWithEmptyBodyUsesDefaults(t *testing.T) {
	testServer, _ := newTestServer(t)

	response, err := http.Post(testServer.URL+"/run/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /run/start failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for an empty body, got %d", response.StatusCode)
	}

	startResponse := StartRunResponse{}
	if err := fromJSON(&startResponse, response.Body); err != nil {
		t.Fatalf("Decoding the start response failed: %v", err)
	}
	if startResponse.NumEpochs != runconfig.Default().NumEpochs() {
		t.Errorf("Expected the default epoch count %d, got %d", runconfig.Default().NumEpochs(), startResponse.NumEpochs)
	}
}

func TestGetMetrics(t *testing.T) {
	testServer, _ := newTestServer(t)

	startResponse := startTestRun(t, testServer)

	response, err := http.Get(fmt.Sprintf("%s/run/%s/metrics", testServer.URL, startResponse.RunId))
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("GET metrics returned status %d", response.StatusCode)
	}

	metrics := MetricsResponse{}
	if err := fromJSON(&metrics, response.Body); err != nil {
		t.Fatalf("Decoding the metrics response failed: %v", err)
	}
	if metrics.RunId != startResponse.RunId {
		t.Errorf("Metrics run ID %q does not match %q", metrics.RunId, startResponse.RunId)
	}
	if metrics.EpochsCompleted != int32(len(metrics.Rewards)) {
		t.Errorf("Epoch count %d does not match %d parsed rewards", metrics.EpochsCompleted, len(metrics.Rewards))
	}
}

func TestGetMetricsUnknownRun(t *testing.T) {
	testServer, _ := newTestServer(t)

	response, err := http.Get(testServer.URL + "/run/" + uuid.New().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", response.StatusCode)
	}
}

func TestStreamMetricsReleasesHandlerAfterClientCloses(t *testing.T) {
	testServer, _ := newTestServer(t)

	startResponse := startTestRun(t, testServer)

	// let the short run finish so no more epoch events are coming
	time.Sleep(200 * time.Millisecond)

	goroutinesBefore := runtime.NumGoroutine()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") +
		"/run/" + startResponse.RunId + "/metrics/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	conn.Close()

	// the handler goroutines must wind down once the client is gone
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= goroutinesBefore {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("Stream handler still running after the client closed: %d goroutines before, %d after",
		goroutinesBefore, runtime.NumGoroutine())
}

func TestStopAllRunsReleasesEveryRun(t *testing.T) {
	testServer, handler := newTestServer(t)

	startResponse := startTestRun(t, testServer)

	handler.StopAllRuns()

	response, err := http.Get(fmt.Sprintf("%s/run/%s/rollout", testServer.URL, startResponse.RunId))
	if err != nil {
		t.Fatalf("GET rollout failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 after StopAllRuns, got %d", response.StatusCode)
	}
}
