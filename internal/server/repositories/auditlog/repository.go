package auditlog

import (
	"context"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
)

type Repository interface {
	Append(ctx context.Context, e audit.Entry) error
	ListBySession(ctx context.Context, sessionID string) ([]audit.Entry, error)
}
