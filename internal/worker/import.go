// Package worker holds the asynq handlers run by `skald worker`.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"skald/internal/models"
	"skald/internal/services"
	"skald/internal/tasks"
)

// BulkImporter is the part of services.ImportService the worker needs.
type BulkImporter interface {
	BulkAdd(ctx context.Context, tenant models.TenantKey, drafts []models.ProductDraft, opts services.BulkOptions) (*services.BulkResult, error)
}

// ImportDeps holds dependencies for the import job handler.
type ImportDeps struct {
	Importer BulkImporter
}

// RegisterHandlers registers all task handlers with the ServeMux.
func RegisterHandlers(mux *asynq.ServeMux, deps ImportDeps) {
	mux.HandleFunc(tasks.TypeProductImport, HandleProductImport(deps))
	log.Infof("Registered handler for %s", tasks.TypeProductImport)
}

// HandleProductImport runs a queued bulk import and stores its outcome as
// the task result. Rejections of the whole batch (validation, preflight
// balance) are outcomes too; only infrastructure failures fail the task.
func HandleProductImport(deps ImportDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := tasks.ParseProductImportPayload(t)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		taskID := ""
		if rw := t.ResultWriter(); rw != nil {
			taskID = rw.TaskID()
		}
		logger := log.WithFields(log.Fields{"task_id": taskID, "tenant": payload.Tenant.ProjectID, "items": len(payload.Products)})
		logger.Info("Starting product import job")

		result, err := RunImport(ctx, deps, payload)
		if err != nil {
			logger.WithError(err).Error("Product import job failed")
			return err
		}

		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal import result: %w", err)
		}
		if rw := t.ResultWriter(); rw != nil {
			if _, err := rw.Write(body); err != nil {
				return fmt.Errorf("failed to write import result: %w", err)
			}
		}

		logger.WithFields(log.Fields{"added": len(result.Added), "errors": len(result.Errors)}).Info("Product import job finished")
		return nil
	}
}

// RunImport executes one import payload.
func RunImport(ctx context.Context, deps ImportDeps, payload tasks.ProductImportPayload) (*tasks.ProductImportResult, error) {
	res, err := deps.Importer.BulkAdd(ctx, payload.Tenant, payload.Products, services.BulkOptions{})
	if err != nil {
		if errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrInsufficientBalance) {
			return &tasks.ProductImportResult{Added: []string{}, Errors: []string{err.Error()}}, nil
		}
		return nil, err
	}

	out := &tasks.ProductImportResult{
		Added:   make([]string, 0, len(res.Added)),
		Errors:  res.Errors,
		Balance: res.Balance.String(),
	}
	for _, id := range res.Added {
		out.Added = append(out.Added, id.String())
	}
	return out, nil
}
