package repository

import (
	"context"

	"comfy-gateway/internal/domain/model"
)

// WorkflowRepository is the template store: named workflow graphs.
type WorkflowRepository interface {
	List(ctx context.Context) ([]string, error)
	// Load returns domain.ErrNotFound for unknown names and domain.ErrParse
	// for malformed documents.
	Load(ctx context.Context, name string) (*model.WorkflowGraph, error)
}
