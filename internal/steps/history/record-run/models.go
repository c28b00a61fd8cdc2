package recordrun

import (
	"context"
	"database/sql"
	"time"

	"cadio-client/internal/common/logger"
)

// Store executes statements; database.PostgresClient satisfies it.
type Store interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Input struct {
	RunID      string
	ActivityID string
	WorkItemID string
	// Status is the work item status, or the error code when the run failed before one existed.
	Status     string
	ErrorCode  string
	ReportURL  string
	ResultPath string
	StartedAt  time.Time
	FinishedAt time.Time
}

type ServiceDependencies struct {
	Logger logger.Logger
	Store  Store
}
