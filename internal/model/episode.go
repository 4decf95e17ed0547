package model

// EpisodeStates is the trajectory snapshot for one full episode, fetched from
// the training module. Every channel is indexed [timestep][agent] and covers
// timestep 0 through EpisodeLength inclusive. StillInGame holds 1.0 while an
// agent is active and 0.0 once it has been tagged out.
type EpisodeStates struct {
	LocX        [][]float64 `json:"loc_x"`
	LocY        [][]float64 `json:"loc_y"`
	StillInGame [][]float64 `json:"still_in_the_game"`
}

// NumTimesteps returns the number of recorded rows, i.e. episode length + 1.
func (states *EpisodeStates) NumTimesteps() int {
	return len(states.LocX)
}

func (states *EpisodeStates) NumAgents() int {
	if len(states.LocX) == 0 {
		return 0
	}
	return len(states.LocX[0])
}

// ActiveAt reports whether the agent is still in the game at the given
// timestep.
func (states *EpisodeStates) ActiveAt(timestep int, agentId int32) bool {
	return states.StillInGame[timestep][agentId] != 0
}

// ModuleSpec describes the training module to allocate on a backend.
type ModuleSpec struct {
	Env               *TagEnv            `json:"env"`
	NumEnvs           int32              `json:"numEnvs"`
	UseCuda           bool               `json:"useCuda"`
	PolicyToAgentIds  map[string][]int32 `json:"policyToAgentIds"`
	TrainingBatchSize int32              `json:"trainingBatchSize"`
	NumIters          int32              `json:"numIters"`
}

// ModuleHandle identifies a module resident on a backend device.
type ModuleHandle struct {
	Id                string `json:"id"`
	Device            int32  `json:"device"`
	TrainingBatchSize int32  `json:"trainingBatchSize"`
	NumIters          int32  `json:"numIters"`
}

// EpochStats is the per-epoch summary reported by the backend after one
// optimization epoch.
type EpochStats struct {
	Epoch          int32   `json:"epoch"`
	MeanReward     float64 `json:"meanReward"`
	Loss           float64 `json:"loss"`
	StepsPerSecond float64 `json:"stepsPerSecond"`
}
