package runconfig

import (
	"fmt"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
)

// RunConfig is the full configuration of one training run. It is built once,
// validated, and read-only afterwards.
type RunConfig struct {
	Name    string                  `json:"name"`
	Env     EnvConfig               `json:"env"`
	Trainer TrainerConfig           `json:"trainer"`
	Policy  map[string]PolicyConfig `json:"policy"`
	Saving  SavingConfig            `json:"saving"`
}

// EnvConfig holds the continuous Tag environment parameters. Valid ranges are
// enforced by Validate:
//   - NumTaggers >= 1 and NumRunners >= 1
//   - GridLength > 0, EpisodeLength >= 1
//   - MinAcceleration <= MaxAcceleration, MinTurn <= MaxTurn
//   - NumAccelerationLevels >= 1, NumTurnLevels >= 1
//   - SkillLevelTagger > 0, SkillLevelRunner > 0
//   - TaggingDistance > 0
type EnvConfig struct {
	NumTaggers                 int32   `json:"num_taggers"`
	NumRunners                 int32   `json:"num_runners"`
	GridLength                 float64 `json:"grid_length"`
	EpisodeLength              int32   `json:"episode_length"`
	MaxAcceleration            float64 `json:"max_acceleration"`
	MinAcceleration            float64 `json:"min_acceleration"`
	MaxTurn                    float64 `json:"max_turn"`
	MinTurn                    float64 `json:"min_turn"`
	NumAccelerationLevels      int32   `json:"num_acceleration_levels"`
	NumTurnLevels              int32   `json:"num_turn_levels"`
	SkillLevelTagger           float64 `json:"skill_level_tagger"`
	SkillLevelRunner           float64 `json:"skill_level_runner"`
	UseFullObservation         bool    `json:"use_full_observation"`
	RunnerExitsGameAfterTagged bool    `json:"runner_exits_game_after_tagged"`
	NumOtherAgentsObserved     int32   `json:"num_other_agents_observed"`
	TagRewardForTagger         float64 `json:"tag_reward_for_tagger"`
	TagPenaltyForRunner        float64 `json:"tag_penalty_for_runner"`
	EndOfGameRewardForRunner   float64 `json:"end_of_game_reward_for_runner"`
	TaggingDistance            float64 `json:"tagging_distance"`
}

// TrainerConfig holds the parallel-execution parameters: NumEnvs environment
// replicas run on the device, TrainBatchSize steps are gathered per iteration
// across all replicas, and NumEpisodes caps the total episode budget.
// TargetMeanReward is the mean reward the run is aiming for; the monitor fits
// the observed reward curve and predicts the epoch at which it is reached.
type TrainerConfig struct {
	NumEnvs          int32   `json:"num_envs"`
	TrainBatchSize   int32   `json:"train_batch_size"`
	NumEpisodes      int32   `json:"num_episodes"`
	TargetMeanReward float64 `json:"target_mean_reward"`
}

// PolicyConfig holds the per-policy-group network settings.
type PolicyConfig struct {
	ToTrain   bool        `json:"to_train"`
	Algorithm string      `json:"algorithm"`
	Gamma     float64     `json:"gamma"`
	LR        float64     `json:"lr"`
	Model     ModelConfig `json:"model"`
}

type ModelConfig struct {
	Type              string  `json:"type"`
	FcDims            []int32 `json:"fc_dims"`
	ModelCkptFilepath string  `json:"model_ckpt_filepath"`
}

// SavingConfig holds the metrics-logging and checkpoint-saving parameters.
// Frequencies are in iterations.
type SavingConfig struct {
	MetricsLogFreq      int32  `json:"metrics_log_freq"`
	ModelParamsSaveFreq int32  `json:"model_params_save_freq"`
	Basedir             string `json:"basedir"`
	Name                string `json:"name"`
	Tag                 string `json:"tag"`
}

// NumEpochs derives the optimization epoch count from the episode budget:
// num_episodes * episode_length / train_batch_size.
func (config *RunConfig) NumEpochs() int32 {
	return config.Trainer.NumEpisodes * config.Env.EpisodeLength / config.Trainer.TrainBatchSize
}

// Validate checks the configuration against the documented ranges. An
// invalid configuration never reaches the backend.
func (config *RunConfig) Validate() error {
	env := config.Env
	if env.NumTaggers < 1 {
		return fmt.Errorf("num_taggers must be >= 1, got %d", env.NumTaggers)
	}
	if env.NumRunners < 1 {
		return fmt.Errorf("num_runners must be >= 1, got %d", env.NumRunners)
	}
	if env.GridLength <= 0 {
		return fmt.Errorf("grid_length must be > 0, got %f", env.GridLength)
	}
	if env.EpisodeLength < 1 {
		return fmt.Errorf("episode_length must be >= 1, got %d", env.EpisodeLength)
	}
	if env.MinAcceleration > env.MaxAcceleration {
		return fmt.Errorf("min_acceleration %f exceeds max_acceleration %f", env.MinAcceleration, env.MaxAcceleration)
	}
	if env.MinTurn > env.MaxTurn {
		return fmt.Errorf("min_turn %f exceeds max_turn %f", env.MinTurn, env.MaxTurn)
	}
	if env.NumAccelerationLevels < 1 {
		return fmt.Errorf("num_acceleration_levels must be >= 1, got %d", env.NumAccelerationLevels)
	}
	if env.NumTurnLevels < 1 {
		return fmt.Errorf("num_turn_levels must be >= 1, got %d", env.NumTurnLevels)
	}
	if env.SkillLevelTagger <= 0 || env.SkillLevelRunner <= 0 {
		return fmt.Errorf("skill levels must be > 0, got tagger %f runner %f", env.SkillLevelTagger, env.SkillLevelRunner)
	}
	if env.TaggingDistance <= 0 {
		return fmt.Errorf("tagging_distance must be > 0, got %f", env.TaggingDistance)
	}

	trainer := config.Trainer
	if trainer.NumEnvs < 1 {
		return fmt.Errorf("num_envs must be >= 1, got %d", trainer.NumEnvs)
	}
	if trainer.TrainBatchSize < 1 {
		return fmt.Errorf("train_batch_size must be >= 1, got %d", trainer.TrainBatchSize)
	}
	if trainer.NumEpisodes < 1 {
		return fmt.Errorf("num_episodes must be >= 1, got %d", trainer.NumEpisodes)
	}
	if config.NumEpochs() < 1 {
		return fmt.Errorf("episode budget of %d yields zero epochs with batch size %d", trainer.NumEpisodes, trainer.TrainBatchSize)
	}

	if len(config.Policy) == 0 {
		return fmt.Errorf("at least one policy group is required")
	}
	for name, policy := range config.Policy {
		if policy.Algorithm != common.ALGORITHM_A2C && policy.Algorithm != common.ALGORITHM_PPO {
			return fmt.Errorf("policy %s: unknown algorithm %q", name, policy.Algorithm)
		}
		if policy.Gamma <= 0 || policy.Gamma > 1 {
			return fmt.Errorf("policy %s: gamma must be in (0, 1], got %f", name, policy.Gamma)
		}
		if policy.LR <= 0 {
			return fmt.Errorf("policy %s: lr must be > 0, got %f", name, policy.LR)
		}
		if policy.Model.Type != common.MODEL_TYPE_FULLY_CONNECTED {
			return fmt.Errorf("policy %s: unknown model type %q", name, policy.Model.Type)
		}
		for _, dim := range policy.Model.FcDims {
			if dim < 1 {
				return fmt.Errorf("policy %s: fc_dims entries must be >= 1, got %d", name, dim)
			}
		}
	}

	saving := config.Saving
	if saving.MetricsLogFreq < 1 {
		return fmt.Errorf("metrics_log_freq must be >= 1, got %d", saving.MetricsLogFreq)
	}
	if saving.ModelParamsSaveFreq < 1 {
		return fmt.Errorf("model_params_save_freq must be >= 1, got %d", saving.ModelParamsSaveFreq)
	}
	if saving.Basedir == "" {
		return fmt.Errorf("saving basedir must not be empty")
	}

	return nil
}
