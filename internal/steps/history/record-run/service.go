// Package recordrun writes one history row per run.
package recordrun

import (
	"context"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

const StepName = "record-run"

const insertRunQuery = `INSERT INTO workitem_runs
	(run_id, activity_id, workitem_id, status, error_code, report_url, result_path, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id) DO UPDATE SET
	workitem_id = EXCLUDED.workitem_id,
	status = EXCLUDED.status,
	error_code = EXCLUDED.error_code,
	report_url = EXCLUDED.report_url,
	result_path = EXCLUDED.result_path,
	finished_at = EXCLUDED.finished_at`

type Service struct {
	config *Config
	logger logger.Logger
	store  Store
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"step": StepName}),
		store:  deps.Store,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	_, err := s.store.Exec(ctx, insertRunQuery,
		input.RunID,
		input.ActivityID,
		input.WorkItemID,
		input.Status,
		input.ErrorCode,
		input.ReportURL,
		input.ResultPath,
		input.StartedAt.UTC(),
		input.FinishedAt.UTC(),
	)
	if err != nil {
		return errors.NewHistoryWriteFailedError(err)
	}

	s.logger.Debug("Run recorded", map[string]interface{}{"runId": input.RunID, "status": input.Status})
	return nil
}
