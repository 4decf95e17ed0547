package trainback

import (
	"bytes"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
)

// ITrainingBackend is the substrate that owns the GPU-resident simulation and
// policy networks. The orchestrator only ever talks to it through this
// contract; the physics update, the optimizer and checkpointing all live on
// the other side.
type ITrainingBackend interface {
	DeviceCount() (int32, error)
	AllocateModule(spec *model.ModuleSpec, configFiles map[string]string) (*model.ModuleHandle, error)
	RunEpoch(handle *model.ModuleHandle, epoch int32) (*model.EpochStats, error)
	SyncDevice(handle *model.ModuleHandle) error
	FetchEpisodeStates(handle *model.ModuleHandle, channels []string) (map[string][][]float64, error)
	GetTrainerLogs(handle *model.ModuleHandle) (bytes.Buffer, error)
	ReleaseModule(handle *model.ModuleHandle) error
	StartDeviceHeartbeat()
	StopAllNotifiers()
}
