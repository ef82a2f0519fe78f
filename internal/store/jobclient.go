package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"skald/internal/models"
	"skald/internal/tasks"
)

// ImportResultRetention is how long finished import results stay readable.
const ImportResultRetention = 24 * time.Hour

// AsynqJobClient enqueues background imports and reads their state back
// through the asynq inspector.
type AsynqJobClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynqJobClient(opt asynq.RedisClientOpt) (*AsynqJobClient, error) {
	if opt.Addr == "" {
		return nil, fmt.Errorf("redis address is required for the job client")
	}
	return &AsynqJobClient{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}, nil
}

func (jc *AsynqJobClient) Close() error {
	err := jc.client.Close()
	if ierr := jc.inspector.Close(); err == nil {
		err = ierr
	}
	return err
}

func (jc *AsynqJobClient) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if jc.client == nil {
		return nil, fmt.Errorf("AsynqJobClient internal client is not initialized")
	}
	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		log.WithError(err).WithField("task_type", task.Type()).Error("Failed to enqueue task")
		return nil, err
	}
	log.WithFields(log.Fields{"task_type": task.Type(), "task_id": info.ID, "queue": info.Queue}).Debug("Enqueued task")
	return info, nil
}

// EnqueueImport queues a bulk import. Imports are not retried: a retry
// would embed and charge the already-added rows a second time.
func (jc *AsynqJobClient) EnqueueImport(ctx context.Context, tenant models.TenantKey, drafts []models.ProductDraft) (string, error) {
	task, err := tasks.NewProductImportTask(tenant, drafts)
	if err != nil {
		return "", err
	}
	info, err := jc.Enqueue(ctx, task,
		asynq.Queue(tasks.QueueImports),
		asynq.MaxRetry(0),
		asynq.Retention(ImportResultRetention),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue import for %s: %w", tenant.ProjectID, err)
	}
	return info.ID, nil
}

func (jc *AsynqJobClient) ImportStatus(ctx context.Context, id string) (*ImportJob, error) {
	info, err := jc.inspector.GetTaskInfo(tasks.QueueImports, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("inspect task %s: %w", id, err)
	}
	job := &ImportJob{ID: info.ID, State: info.State.String(), Error: info.LastErr, Result: info.Result}
	if payload, err := tasks.ParseProductImportPayload(asynq.NewTask(info.Type, info.Payload)); err == nil {
		job.Tenant = payload.Tenant
	}
	return job, nil
}

var _ JobClient = (*AsynqJobClient)(nil)
