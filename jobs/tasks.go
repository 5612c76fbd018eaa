package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogSync converges the stored permission and role catalog with
	// the catalog compiled into the binary.
	TaskCatalogSync = "rbac:catalog_sync"
)

// CatalogSyncPayload describes why a catalog sync was requested.
type CatalogSyncPayload struct {
	Reason string `json:"reason"`
}

// NewCatalogSyncTask constructs an Asynq task.
func NewCatalogSyncTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CatalogSyncPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSync, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
