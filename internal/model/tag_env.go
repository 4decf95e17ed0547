package model

// TagEnv describes the continuous Tag environment roster. Agent ids are
// assigned with taggers first: ids [0, NumTaggers) are taggers and
// [NumTaggers, NumAgents) are runners.
type TagEnv struct {
	NumTaggers    int32
	NumRunners    int32
	GridLength    float64
	EpisodeLength int32
}

func (env *TagEnv) NumAgents() int32 {
	return env.NumTaggers + env.NumRunners
}

func (env *TagEnv) Taggers() []int32 {
	taggers := make([]int32, 0, env.NumTaggers)
	for id := int32(0); id < env.NumTaggers; id++ {
		taggers = append(taggers, id)
	}
	return taggers
}

func (env *TagEnv) Runners() []int32 {
	runners := make([]int32, 0, env.NumRunners)
	for id := env.NumTaggers; id < env.NumAgents(); id++ {
		runners = append(runners, id)
	}
	return runners
}

func (env *TagEnv) IsTagger(agentId int32) bool {
	return agentId >= 0 && agentId < env.NumTaggers
}
