package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cytoguard/internal/dbx"
	"github.com/dmitrijs2005/cytoguard/internal/server/repositories/auditlog"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	AuditLog(db dbx.DBTX) auditlog.Repository
}
