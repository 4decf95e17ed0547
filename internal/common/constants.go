package common

// State channels exposed by the training module
const STATE_LOC_X = "loc_x"
const STATE_LOC_Y = "loc_y"
const STATE_STILL_IN_GAME = "still_in_the_game"

// Policy groups
const POLICY_TAGGER = "tagger"
const POLICY_RUNNER = "runner"

// Training algorithms
const ALGORITHM_A2C = "A2C"
const ALGORITHM_PPO = "PPO"

// Accelerators
const ACCELERATOR_GPU = "gpu"
const ACCELERATOR_CPU = "cpu"

// Model types
const MODEL_TYPE_FULLY_CONNECTED = "fully_connected"

// Events
const EPOCH_COMPLETED_EVENT_TYPE = "EpochCompleted"
const TRAINING_FINISHED_EVENT_TYPE = "TrainingFinished"
const DEVICE_HEARTBEAT_EVENT_TYPE = "DeviceHeartbeat"

// Backends
const BACKEND_CUDA = "cuda"
const BACKEND_SIM = "sim"
