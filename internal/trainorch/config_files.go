package trainorch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/trainorch/runconfig"
)

// BuildModuleConfigFiles renders the config files handed to the external
// training service alongside the module allocation request.
func BuildModuleConfigFiles(config *runconfig.RunConfig) (map[string]string, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}

	runConfigString := fmt.Sprintf(RunConfig_Yaml,
		config.Name,
		config.Env.NumTaggers, config.Env.NumRunners,
		config.Env.GridLength, config.Env.EpisodeLength,
		config.Env.MaxAcceleration, config.Env.MinAcceleration,
		config.Env.MaxTurn, config.Env.MinTurn,
		config.Env.NumAccelerationLevels, config.Env.NumTurnLevels,
		config.Env.SkillLevelTagger, config.Env.SkillLevelRunner,
		config.Env.UseFullObservation, config.Env.RunnerExitsGameAfterTagged,
		config.Env.NumOtherAgentsObserved,
		config.Env.TagRewardForTagger, config.Env.TagPenaltyForRunner,
		config.Env.EndOfGameRewardForRunner, config.Env.TaggingDistance,
		config.Trainer.NumEnvs, config.Trainer.TrainBatchSize, config.Trainer.NumEpisodes)

	policyNames := make([]string, 0, len(config.Policy))
	for name := range config.Policy {
		policyNames = append(policyNames, name)
	}
	sort.Strings(policyNames)

	policyConfigString := "policy:\n"
	for _, name := range policyNames {
		policy := config.Policy[name]
		policyConfigString += fmt.Sprintf(PolicyConfig_Yaml,
			name, policy.ToTrain, policy.Algorithm, policy.Gamma, policy.LR,
			policy.Model.Type, formatFcDims(policy.Model.FcDims), policy.Model.ModelCkptFilepath)
	}

	savingConfigString := fmt.Sprintf(SavingConfig_Yaml,
		config.Saving.MetricsLogFreq, config.Saving.ModelParamsSaveFreq,
		config.Saving.Basedir, config.Saving.Name, config.Saving.Tag)

	filesData := map[string]string{
		"run_config.yaml":    runConfigString,
		"policy_config.yaml": policyConfigString,
		"saving_config.yaml": savingConfigString,
	}

	return filesData, nil
}

func formatFcDims(fcDims []int32) string {
	dims := make([]string, len(fcDims))
	for i, dim := range fcDims {
		dims[i] = fmt.Sprint(dim)
	}
	return "[" + strings.Join(dims, ", ") + "]"
}

const RunConfig_Yaml = `
name: "%[1]s"

env:
  num_taggers: %[2]d
  num_runners: %[3]d
  grid_length: %[4]g
  episode_length: %[5]d
  max_acceleration: %[6]g
  min_acceleration: %[7]g
  max_turn: %[8]g
  min_turn: %[9]g
  num_acceleration_levels: %[10]d
  num_turn_levels: %[11]d
  skill_level_tagger: %[12]g
  skill_level_runner: %[13]g
  use_full_observation: %[14]t
  runner_exits_game_after_tagged: %[15]t
  num_other_agents_observed: %[16]d
  tag_reward_for_tagger: %[17]g
  tag_penalty_for_runner: %[18]g
  end_of_game_reward_for_runner: %[19]g
  tagging_distance: %[20]g

trainer:
  num_envs: %[21]d
  train_batch_size: %[22]d
  num_episodes: %[23]d
`

const PolicyConfig_Yaml = `  %[1]s:
    to_train: %[2]t
    algorithm: "%[3]s"
    gamma: %[4]g
    lr: %[5]g
    model:
      type: "%[6]s"
      fc_dims: %[7]s
      model_ckpt_filepath: "%[8]s"
`

const SavingConfig_Yaml = `
saving:
  metrics_log_freq: %[1]d
  model_params_save_freq: %[2]d
  basedir: "%[3]s"
  name: "%[4]s"
  tag: "%[5]s"
`
