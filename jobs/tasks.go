package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncPush pushes pending rows to the message broker.
	TaskSyncPush = "sync:push"
	// TaskAuditCleanup prunes audit entries past retention.
	TaskAuditCleanup = "audit:cleanup"
)

// SyncPushPayload bounds how many rows each entity kind pushes per run.
type SyncPushPayload struct {
	Limit int `json:"limit"`
}

// AuditCleanupPayload carries the retention window.
type AuditCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewSyncPushTask constructs an outbound push task.
func NewSyncPushTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(SyncPushPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSyncPush, body, asynq.Queue(QueueDefault)), nil
}

// NewAuditCleanupTask constructs an audit retention task.
func NewAuditCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(AuditCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditCleanup, body, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSyncPush enqueues an outbound push run.
func (c *Client) EnqueueSyncPush(ctx context.Context, limit int) (*asynq.TaskInfo, error) {
	task, err := NewSyncPushTask(limit)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// EnqueueAuditCleanup enqueues an audit retention run.
func (c *Client) EnqueueAuditCleanup(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewAuditCleanupTask(retention)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
