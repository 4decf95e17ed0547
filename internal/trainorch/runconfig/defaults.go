package runconfig

import "github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"

// Default returns the continuous Tag run configuration: 5 taggers chase 100
// runners on a 20x20 plane for 200 timesteps, trained with A2C over 50
// environment replicas.
func Default() *RunConfig {
	return &RunConfig{
		Name: "tag_continuous",
		Env: EnvConfig{
			NumTaggers:    5,
			NumRunners:    100,
			GridLength:    20.0,
			EpisodeLength: 200,
			// acceleration limits per timestep
			MaxAcceleration: 0.1,
			MinAcceleration: -0.1,
			// +-3*pi/4 radians
			MaxTurn: 2.35,
			MinTurn: -2.35,
			// discretized action levels
			NumAccelerationLevels: 10,
			NumTurnLevels:         10,
			// top speeds; equal means a fair chase
			SkillLevelTagger:           1.0,
			SkillLevelRunner:           1.0,
			UseFullObservation:         false,
			RunnerExitsGameAfterTagged: true,
			NumOtherAgentsObserved:     10,
			TagRewardForTagger:         10.0,
			TagPenaltyForRunner:        -10.0,
			EndOfGameRewardForRunner:   1.0,
			// margin between a tagger and a runner to count as tagged
			TaggingDistance: 0.02,
		},
		Trainer: TrainerConfig{
			NumEnvs:          50,
			TrainBatchSize:   10000,
			NumEpisodes:      50000,
			TargetMeanReward: 10.0,
		},
		Policy: map[string]PolicyConfig{
			common.POLICY_RUNNER: {
				ToTrain:   true,
				Algorithm: common.ALGORITHM_A2C,
				Gamma:     0.98,
				LR:        0.005,
				Model: ModelConfig{
					Type:              common.MODEL_TYPE_FULLY_CONNECTED,
					FcDims:            []int32{256, 256},
					ModelCkptFilepath: "",
				},
			},
			common.POLICY_TAGGER: {
				ToTrain:   true,
				Algorithm: common.ALGORITHM_A2C,
				Gamma:     0.98,
				LR:        0.002,
				Model: ModelConfig{
					Type:              common.MODEL_TYPE_FULLY_CONNECTED,
					FcDims:            []int32{256, 256},
					ModelCkptFilepath: "",
				},
			},
		},
		Saving: SavingConfig{
			MetricsLogFreq:      10,
			ModelParamsSaveFreq: 5000,
			Basedir:             "/tmp",
			Name:                "continuous_tag",
			Tag:                 "example",
		},
	}
}
