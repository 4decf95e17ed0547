package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
)

var ErrNilSnapshot = errors.New("episode snapshot is nil")
var ErrNilRoster = errors.New("environment roster is nil")
var ErrNoRunners = errors.New("initial runner count is zero")
var ErrShapeMismatch = errors.New("episode snapshot does not match the environment roster")

// Options are the cosmetic parameters of a rollout animation.
type Options struct {
	Fps           int     `json:"fps"`
	TaggerColor   string  `json:"taggerColor"`
	RunnerColor   string  `json:"runnerColor"`
	InactiveColor string  `json:"inactiveColor"`
	FigWidth      float64 `json:"figWidth"`
	FigHeight     float64 `json:"figHeight"`
}

func DefaultOptions() Options {
	return Options{
		Fps:           25,
		TaggerColor:   "#C843C3",
		RunnerColor:   "#245EB6",
		InactiveColor: "#666666",
		FigWidth:      6,
		FigHeight:     6,
	}
}

// Marker is the render state of one agent in one frame. X and Y are
// normalized to [0, 1) over the grid extent. Glyph is false once the agent
// has left the game; its marker is then no longer drawn.
type Marker struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Size  int     `json:"size"`
	Glyph bool    `json:"glyph"`
}

// Label is the per-frame status text state.
type Label struct {
	Timestep        int     `json:"timestep"`
	RunnersLeft     int32   `json:"runnersLeft"`
	FracRunnersLeft float64 `json:"fracRunnersLeft"`
	Text            string  `json:"text"`
}

// Frame is one fully computed animation frame; it carries no reference to any
// drawing backend.
type Frame struct {
	Timestep int      `json:"timestep"`
	Markers  []Marker `json:"markers"`
	Label    Label    `json:"label"`
}

const taggerMarkerSize = 10
const runnerMarkerSize = 5

// BuildFrames computes the full frame sequence for an episode snapshot: one
// frame per recorded timestep, 0 through episode length inclusive. An agent
// flagged out of the game stays out for every later frame, rendered with the
// inactive color and no glyph, regardless of the flag flickering back.
//
// A snapshot whose roster has no runners cannot produce the runners-left
// fraction; that is an explicit error here rather than a division by zero.
func BuildFrames(states *model.EpisodeStates, env *model.TagEnv, opts Options) ([]Frame, error) {
	if states == nil {
		return nil, ErrNilSnapshot
	}
	if env == nil {
		return nil, ErrNilRoster
	}
	if env.GridLength <= 0 {
		return nil, fmt.Errorf("grid length must be > 0, got %f", env.GridLength)
	}

	numTimesteps := states.NumTimesteps()
	numAgents := states.NumAgents()
	if numTimesteps == 0 || int32(numAgents) != env.NumAgents() {
		return nil, fmt.Errorf("%w: %d timesteps x %d agents for %d roster agents",
			ErrShapeMismatch, numTimesteps, numAgents, env.NumAgents())
	}

	initNumRunners := env.NumRunners
	if initNumRunners == 0 {
		return nil, ErrNoRunners
	}

	outOfGame := make([]bool, numAgents)
	frames := make([]Frame, 0, numTimesteps)

	for t := 0; t < numTimesteps; t++ {
		markers := make([]Marker, numAgents)

		for idx := 0; idx < numAgents; idx++ {
			if !states.ActiveAt(t, int32(idx)) {
				outOfGame[idx] = true
			}

			marker := Marker{
				X: states.LocX[t][idx] / env.GridLength,
				Y: states.LocY[t][idx] / env.GridLength,
			}

			if outOfGame[idx] {
				marker.Color = opts.InactiveColor
				marker.Glyph = false
			} else if env.IsTagger(int32(idx)) {
				marker.Color = opts.TaggerColor
				marker.Size = taggerMarkerSize
				marker.Glyph = true
			} else {
				marker.Color = opts.RunnerColor
				marker.Size = runnerMarkerSize
				marker.Glyph = true
			}

			markers[idx] = marker
		}

		runnersLeft := common.CountActiveAgents(states.StillInGame[t]) - env.NumTaggers
		if runnersLeft < 0 {
			runnersLeft = 0
		}

		frames = append(frames, Frame{
			Timestep: t,
			Markers:  markers,
			Label:    buildLabel(t, runnersLeft, initNumRunners),
		})
	}

	return frames, nil
}

func buildLabel(timestep int, runnersLeft int32, initNumRunners int32) Label {
	fracRunnersLeft := float64(runnersLeft) / float64(initNumRunners)

	line1 := "Continuous Tag\n"
	line2 := fmt.Sprintf("%-14s%4d\n", "Time Step:", timestep)
	line3 := fmt.Sprintf("%-14s%4d (%.0f%%)", "Runners Left:", runnersLeft, fracRunnersLeft*100)

	return Label{
		Timestep:        timestep,
		RunnersLeft:     runnersLeft,
		FracRunnersLeft: fracRunnersLeft,
		Text:            strings.ToLower(line1 + line2 + line3),
	}
}
