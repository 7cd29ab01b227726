package workers

import (
	"log/slog"
	"time"

	"github.com/alitto/pond"
)

// PoolManager runs detached background jobs off the request path — today
// that's exactly the auto-title job scheduled by the Chat Orchestrator
// (spec §4.6 "Auto-title job": fire-and-forget, failure non-fatal).
type PoolManager struct {
	AutoTitlePool *pond.WorkerPool
}

type PoolConfig struct {
	AutoTitleWorkers int
}

func NewPoolManager(config PoolConfig) *PoolManager {
	if config.AutoTitleWorkers <= 0 {
		config.AutoTitleWorkers = 4
	}
	return &PoolManager{
		AutoTitlePool: pond.New(
			config.AutoTitleWorkers,
			config.AutoTitleWorkers*4,
			pond.MinWorkers(1),
			pond.IdleTimeout(30*time.Second),
		),
	}
}

// SubmitAutoTitle enqueues an auto-title job. Panics inside task are
// recovered and logged; spec §4.6 requires the job's failure to never
// surface to the client (it already returned its SSE response).
func (pm *PoolManager) SubmitAutoTitle(task func()) {
	pm.AutoTitlePool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("auto-title job panicked", "error", r)
			}
		}()
		task()
	})
}

func (pm *PoolManager) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"auto_title_pool": map[string]interface{}{
			"running_workers":  pm.AutoTitlePool.RunningWorkers(),
			"idle_workers":     pm.AutoTitlePool.IdleWorkers(),
			"submitted_tasks":  pm.AutoTitlePool.SubmittedTasks(),
			"waiting_tasks":    pm.AutoTitlePool.WaitingTasks(),
			"successful_tasks": pm.AutoTitlePool.SuccessfulTasks(),
			"failed_tasks":     pm.AutoTitlePool.FailedTasks(),
		},
	}
}

func (pm *PoolManager) Shutdown() {
	slog.Info("shutting down worker pools...")
	pm.AutoTitlePool.StopAndWait()
	slog.Info("auto-title pool stopped")
}
