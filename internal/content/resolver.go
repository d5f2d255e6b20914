package content

import (
	"context"

	"postoffice/internal/types"
)

// ContentSource produces the content of a bundle.
type ContentSource interface {
	RequestContent(ctx context.Context, bundle *types.Bundle) (Result, error)
}

// Resolver picks the ContentSource for a bundle by its Origin.
type Resolver struct {
	sources  map[types.Origin]ContentSource
	fallback ContentSource
}

// NewResolver creates a resolver. fallback serves every origin without a
// registered source and may be nil.
func NewResolver(fallback ContentSource) *Resolver {
	return &Resolver{sources: make(map[types.Origin]ContentSource), fallback: fallback}
}

// Register routes origin to src.
func (r *Resolver) Register(origin types.Origin, src ContentSource) *Resolver {
	r.sources[origin] = src
	return r
}

// Resolve returns the bundle's saved content location, or asks the
// origin's source for it.
func (r *Resolver) Resolve(ctx context.Context, bundle *types.Bundle) (Result, error) {
	if bundle.HasContent() {
		return Success(*bundle.Content), nil
	}
	src, ok := r.sources[bundle.Origin]
	if !ok {
		src = r.fallback
	}
	if src == nil {
		return Failure(ReasonUpstreamError, "no content source for origin "+string(bundle.Origin)), nil
	}
	return src.RequestContent(ctx, bundle)
}
