package adapter

import (
	"context"

	"mayagen/internal/domain/model"
)

// ImageProvider is the port for one rendering backend. The adapter owns all
// protocol detail (workflow injection, polling, token exchange) and exposes
// only this one operation to the dispatcher's executor.
//
// Render must return the raw image bytes or a *domain.ProviderError.
type ImageProvider interface {
	// Name is the provider lane this adapter serves, e.g. "comfyui".
	Name() string

	Render(ctx context.Context, job *model.Job) ([]byte, error)
}
