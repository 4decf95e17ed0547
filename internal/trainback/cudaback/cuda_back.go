package cudaback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/common"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/events"
	"github.com/Parallel-MARL-Orch/rl-orchestrator/internal/model"
	"github.com/robfig/cron/v3"
)

// CudaBack is the client for the external GPU training service. The service
// owns the CUDA simulation kernels and the policy optimizers; this client
// only moves JSON over its public contract.
type CudaBack struct {
	serviceUrl    string
	client        *http.Client
	eventBus      *events.EventBus
	cronScheduler *cron.Cron
}

func NewCudaBack(serviceUrl string, eventBus *events.EventBus) *CudaBack {
	return &CudaBack{
		serviceUrl:    serviceUrl,
		client:        &http.Client{Timeout: 120 * time.Second},
		eventBus:      eventBus,
		cronScheduler: cron.New(cron.WithSeconds()),
	}
}

type deviceCountResponse struct {
	DeviceCount int32 `json:"deviceCount"`
}

func (back *CudaBack) DeviceCount() (int32, error) {
	response := &deviceCountResponse{}
	if err := back.getJSON("/devices", response); err != nil {
		return 0, fmt.Errorf("querying device count: %w", err)
	}
	return response.DeviceCount, nil
}

type allocateModuleRequest struct {
	Spec        *model.ModuleSpec `json:"spec"`
	ConfigFiles map[string]string `json:"configFiles"`
}

func (back *CudaBack) AllocateModule(spec *model.ModuleSpec, configFiles map[string]string) (*model.ModuleHandle, error) {
	request := &allocateModuleRequest{
		Spec:        spec,
		ConfigFiles: configFiles,
	}

	handle := &model.ModuleHandle{}
	if err := back.postJSON("/modules", request, handle); err != nil {
		return nil, fmt.Errorf("allocating module: %w", err)
	}

	return handle, nil
}

type runEpochRequest struct {
	Epoch int32 `json:"epoch"`
}

func (back *CudaBack) RunEpoch(handle *model.ModuleHandle, epoch int32) (*model.EpochStats, error) {
	stats := &model.EpochStats{}
	path := fmt.Sprintf("/modules/%s/epoch", handle.Id)
	if err := back.postJSON(path, &runEpochRequest{Epoch: epoch}, stats); err != nil {
		return nil, fmt.Errorf("running epoch %d: %w", epoch, err)
	}
	return stats, nil
}

func (back *CudaBack) SyncDevice(handle *model.ModuleHandle) error {
	path := fmt.Sprintf("/modules/%s/sync", handle.Id)
	if err := back.postJSON(path, struct{}{}, nil); err != nil {
		return fmt.Errorf("syncing device state: %w", err)
	}
	return nil
}

type fetchEpisodeStatesRequest struct {
	Channels []string `json:"channels"`
}

func (back *CudaBack) FetchEpisodeStates(handle *model.ModuleHandle, channels []string) (map[string][][]float64, error) {
	states := map[string][][]float64{}
	path := fmt.Sprintf("/modules/%s/episode-states", handle.Id)
	if err := back.postJSON(path, &fetchEpisodeStatesRequest{Channels: channels}, &states); err != nil {
		return nil, fmt.Errorf("fetching episode states: %w", err)
	}
	return states, nil
}

func (back *CudaBack) GetTrainerLogs(handle *model.ModuleHandle) (bytes.Buffer, error) {
	var logs bytes.Buffer

	path := fmt.Sprintf("/modules/%s/logs", handle.Id)
	response, err := back.client.Get(back.serviceUrl + path)
	if err != nil {
		return logs, fmt.Errorf("fetching trainer logs: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return logs, fmt.Errorf("fetching trainer logs: service returned %d", response.StatusCode)
	}

	if _, err := logs.ReadFrom(response.Body); err != nil {
		return logs, fmt.Errorf("reading trainer logs: %w", err)
	}

	return logs, nil
}

func (back *CudaBack) ReleaseModule(handle *model.ModuleHandle) error {
	path := fmt.Sprintf("%s/modules/%s", back.serviceUrl, handle.Id)
	request, err := http.NewRequest(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	response, err := back.client.Do(request)
	if err != nil {
		return fmt.Errorf("releasing module: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		return fmt.Errorf("releasing module: service returned %d", response.StatusCode)
	}

	return nil
}

func (back *CudaBack) StartDeviceHeartbeat() {
	back.cronScheduler.AddFunc("@every 5s", back.notifyDeviceHeartbeat)

	back.cronScheduler.Start()
}

func (back *CudaBack) StopAllNotifiers() {
	back.cronScheduler.Stop()
}

func (back *CudaBack) notifyDeviceHeartbeat() {
	deviceCount, err := back.DeviceCount()
	if err != nil {
		return
	}

	back.eventBus.Publish(events.Event{
		Type:      common.DEVICE_HEARTBEAT_EVENT_TYPE,
		Timestamp: time.Now(),
		Data: events.DeviceHeartbeatEvent{
			DeviceCount: deviceCount,
		},
	})
}

func (back *CudaBack) getJSON(path string, out interface{}) error {
	response, err := back.client.Get(back.serviceUrl + path)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %d", response.StatusCode)
	}

	return json.NewDecoder(response.Body).Decode(out)
}

func (back *CudaBack) postJSON(path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	response, err := back.client.Post(back.serviceUrl+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %d", response.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}
