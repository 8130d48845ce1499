package utils

import (
	"context"

	"github.com/doet/powermap/internal/config"
)

type contextKey string

const ContextProjectKey contextKey = "project"

func WithProject(ctx context.Context, p *config.Project) context.Context {
	return context.WithValue(ctx, ContextProjectKey, p)
}

func GetProjectFromContext(ctx context.Context) (*config.Project, bool) {
	p, ok := ctx.Value(ContextProjectKey).(*config.Project)
	return p, ok && p != nil
}
