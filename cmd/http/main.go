package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/server"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback/cudaback"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainback/dummyback"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
)

const defaultPort = 8080

func main() {
	_ = os.Mkdir("log", 0777)
	logFile, err := os.OpenFile("log/run.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			panic(err)
		}
	}()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "rl-orch",
		Level:  hclog.LevelFromString("DEBUG"),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	eventBus := events.NewEventBus()

	backendType := common.BACKEND_SIM
	serviceUrl := ""
	if len(os.Args) >= 3 {
		backendType = os.Args[1]
		serviceUrl = os.Args[2]
	}

	port := defaultPort
	if len(os.Args) >= 4 {
		if parsed, err := strconv.Atoi(os.Args[3]); err == nil {
			port = parsed
		} else {
			logger.Error("Invalid port argument, using default", "port", os.Args[3])
		}
	}

	var backend trainback.ITrainingBackend
	useCuda := false
	if backendType == common.BACKEND_CUDA {
		backend = cudaback.NewCudaBack(serviceUrl, eventBus)
		useCuda = true
	} else {
		backend = dummyback.NewDummyBack(eventBus, 1)
	}
	backend.StartDeviceHeartbeat()

	handler := server.NewHandler(logger, eventBus, backend, useCuda)

	defaultRouter := mux.NewRouter()
	defaultRouter.HandleFunc("/run/start", handler.StartRun)
	defaultRouter.HandleFunc("/run/stop/{runId}", handler.StopRun)
	defaultRouter.HandleFunc("/run/{runId}/rollout", handler.GetRollout)
	defaultRouter.HandleFunc("/run/{runId}/metrics", handler.GetMetrics)
	defaultRouter.HandleFunc("/run/{runId}/metrics/ws", handler.StreamMetrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.NewHttpServer(logger, defaultRouter, port).Run(ctx); err != nil {
		logger.Error("Server error", "error", err)
	}

	handler.StopAllRuns()
	backend.StopAllNotifiers()
}
