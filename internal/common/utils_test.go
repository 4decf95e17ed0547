package common

import (
	"errors"
	"testing"
)

func validChannels() map[string][][]float64 {
	return map[string][][]float64{
		STATE_LOC_X:         {{1, 2}, {3, 4}},
		STATE_LOC_Y:         {{5, 6}, {7, 8}},
		STATE_STILL_IN_GAME: {{1, 1}, {1, 0}},
	}
}

func TestEpisodeStatesFromChannels(t *testing.T) {
	states, err := EpisodeStatesFromChannels(validChannels())
	if err != nil {
		t.Fatalf("EpisodeStatesFromChannels failed: %v", err)
	}

	if states.NumTimesteps() != 2 {
		t.Errorf("Expected 2 timesteps, got %d", states.NumTimesteps())
	}
	if states.NumAgents() != 2 {
		t.Errorf("Expected 2 agents, got %d", states.NumAgents())
	}
	if states.ActiveAt(1, 1) {
		t.Error("Agent 1 should be inactive at timestep 1")
	}
	if !states.ActiveAt(1, 0) {
		t.Error("Agent 0 should be active at timestep 1")
	}
}

func TestEpisodeStatesMissingChannel(t *testing.T) {
	channels := validChannels()
	delete(channels, STATE_STILL_IN_GAME)

	_, err := EpisodeStatesFromChannels(channels)
	if !errors.Is(err, ErrMissingChannel) {
		t.Errorf("Expected ErrMissingChannel, got %v", err)
	}
}

func TestEpisodeStatesRaggedChannels(t *testing.T) {
	channels := validChannels()
	channels[STATE_LOC_Y] = [][]float64{{5, 6}}

	_, err := EpisodeStatesFromChannels(channels)
	if !errors.Is(err, ErrRaggedChannels) {
		t.Errorf("Expected ErrRaggedChannels for short channel, got %v", err)
	}

	channels = validChannels()
	channels[STATE_LOC_X] = [][]float64{{1, 2}, {3}}

	_, err = EpisodeStatesFromChannels(channels)
	if !errors.Is(err, ErrRaggedChannels) {
		t.Errorf("Expected ErrRaggedChannels for ragged row, got %v", err)
	}
}

func TestCountActiveAgents(t *testing.T) {
	if count := CountActiveAgents([]float64{1, 0, 1, 1}); count != 3 {
		t.Errorf("Expected 3 active agents, got %d", count)
	}
	if count := CountActiveAgents([]float64{}); count != 0 {
		t.Errorf("Expected 0 active agents, got %d", count)
	}
}

func TestCalculateAverageFloat64(t *testing.T) {
	if avg := CalculateAverageFloat64([]float64{1, 2, 3}); avg != 2 {
		t.Errorf("Expected average 2, got %f", avg)
	}
	if avg := CalculateAverageFloat64(nil); avg != 0 {
		t.Errorf("Expected 0 for empty input, got %f", avg)
	}
}
