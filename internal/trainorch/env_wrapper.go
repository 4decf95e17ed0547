package trainorch

import (
	"fmt"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
)

// EnvWrapper binds an environment roster to a replica count and a device
// placement flag. Agents sharing a policy network are grouped through
// PolicyToAgentIdMap.
type EnvWrapper struct {
	Env     *model.TagEnv
	NumEnvs int32
	UseCuda bool
}

func NewEnvWrapper(env *model.TagEnv, numEnvs int32, useCuda bool) (*EnvWrapper, error) {
	if env == nil {
		return nil, fmt.Errorf("environment must not be nil")
	}
	if numEnvs < 1 {
		return nil, fmt.Errorf("numEnvs must be >= 1, got %d", numEnvs)
	}

	return &EnvWrapper{
		Env:     env,
		NumEnvs: numEnvs,
		UseCuda: useCuda,
	}, nil
}

// PolicyToAgentIdMap maps each policy group name to the agent ids trained by
// that policy network.
func (wrapper *EnvWrapper) PolicyToAgentIdMap() map[string][]int32 {
	return map[string][]int32{
		common.POLICY_TAGGER: wrapper.Env.Taggers(),
		common.POLICY_RUNNER: wrapper.Env.Runners(),
	}
}
