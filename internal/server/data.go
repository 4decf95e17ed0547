package server

import (
	"encoding/json"
	"io"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/render"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(i)
}

// StartRunRequest carries an optional run configuration; a nil config starts
// a run with the default continuous Tag setup.
type StartRunRequest struct {
	Config *runconfig.RunConfig `json:"config"`
}

type StartRunResponse struct {
	RunId     string `json:"runId"`
	NumEpochs int32  `json:"numEpochs"`
}

type RolloutResponse struct {
	RunId  string         `json:"runId"`
	Frames []render.Frame `json:"frames"`
}

// MetricsResponse carries the training progress parsed from trainer logs.
// PredictedEpochForTarget is 0 until enough epochs have been observed to fit
// the reward curve.
type MetricsResponse struct {
	RunId                   string    `json:"runId"`
	EpochsCompleted         int32     `json:"epochsCompleted"`
	MeanReward              float64   `json:"meanReward"`
	PredictedEpochForTarget int32     `json:"predictedEpochForTarget"`
	Rewards                 []float64 `json:"rewards"`
	Losses                  []float64 `json:"losses"`
}
