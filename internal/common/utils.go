package common

import (
	"errors"
	"fmt"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
)

var ErrMissingChannel = errors.New("episode snapshot is missing a state channel")
var ErrRaggedChannels = errors.New("episode snapshot channels have mismatched lengths")

// EpisodeStatesFromChannels assembles a typed snapshot from the channel map
// returned by a backend. All three channels must be present and agree on both
// the timestep count and the agent count.
func EpisodeStatesFromChannels(channels map[string][][]float64) (*model.EpisodeStates, error) {
	locX, ok := channels[STATE_LOC_X]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingChannel, STATE_LOC_X)
	}
	locY, ok := channels[STATE_LOC_Y]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingChannel, STATE_LOC_Y)
	}
	stillInGame, ok := channels[STATE_STILL_IN_GAME]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingChannel, STATE_STILL_IN_GAME)
	}

	if len(locY) != len(locX) || len(stillInGame) != len(locX) {
		return nil, fmt.Errorf("%w: %d/%d/%d timesteps", ErrRaggedChannels, len(locX), len(locY), len(stillInGame))
	}
	for t := range locX {
		if len(locY[t]) != len(locX[t]) || len(stillInGame[t]) != len(locX[t]) {
			return nil, fmt.Errorf("%w: timestep %d", ErrRaggedChannels, t)
		}
	}

	return &model.EpisodeStates{
		LocX:        locX,
		LocY:        locY,
		StillInGame: stillInGame,
	}, nil
}

// CountActiveAgents counts the agents flagged active in one timestep row.
func CountActiveAgents(row []float64) int32 {
	count := int32(0)
	for _, flag := range row {
		if flag != 0 {
			count++
		}
	}
	return count
}

func CalculateAverageFloat64(numbers []float64) float64 {
	if len(numbers) == 0 {
		return 0
	}

	var sum float64
	for _, number := range numbers {
		sum += number
	}

	return sum / float64(len(numbers))
}
