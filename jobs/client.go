package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// catalogSyncTaskID pins manual syncs to one queue slot so repeated clicks
// collapse into the task already waiting.
const catalogSyncTaskID = "rbac-catalog-sync"

// Client submits tasks to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq-backed client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueCatalogSync enqueues a catalog sync and returns its task id.
func (c *Client) EnqueueCatalogSync(ctx context.Context) (string, error) {
	task, err := NewCatalogSyncTask("manual")
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.TaskID(catalogSyncTaskID))
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict):
		return catalogSyncTaskID, nil
	case err != nil:
		return "", err
	}
	return info.ID, nil
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
