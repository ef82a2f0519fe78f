package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"skald/internal/models"
)

// Defines constants for task types used in Asynq.

const (
	// TypeProductImport runs a bulk product import in the worker.
	TypeProductImport = "product:import"

	// QueueImports is the queue bulk imports are enqueued on.
	QueueImports = "imports"
)

// ProductImportPayload is the body of a TypeProductImport task. The
// tenant carries only the hashed credential.
type ProductImportPayload struct {
	Tenant   models.TenantKey      `json:"tenant"`
	Products []models.ProductDraft `json:"products"`
}

// ProductImportResult is written back through the task's ResultWriter.
type ProductImportResult struct {
	Added   []string `json:"added"`
	Errors  []string `json:"errors"`
	Balance string   `json:"balance_usd"`
}

func NewProductImportTask(tenant models.TenantKey, drafts []models.ProductDraft) (*asynq.Task, error) {
	payload, err := json.Marshal(ProductImportPayload{Tenant: tenant, Products: drafts})
	if err != nil {
		return nil, fmt.Errorf("marshal import payload: %w", err)
	}
	return asynq.NewTask(TypeProductImport, payload), nil
}

func ParseProductImportPayload(task *asynq.Task) (ProductImportPayload, error) {
	var p ProductImportPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal import payload: %w", err)
	}
	if err := p.Tenant.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
