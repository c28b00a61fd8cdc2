// Package submitworkitem submits a work item and waits for it to reach a terminal status.
package submitworkitem

import (
	"context"
	"fmt"
	"time"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
	"cadio-client/internal/common/metrics"
)

const StepName = "submit-workitem"

type Service struct {
	config *Config
	logger logger.Logger
	client WorkItemAPI
	now    func() time.Time
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"step": StepName}),
		client: deps.Client,
		now:    time.Now,
	}
}

// Execute returns the work item for any terminal status; callers decide what a failed status means.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Activity == nil {
		return nil, errors.NewWorkItemArgumentInvalidError("activity is required")
	}
	if err := validateArguments(input); err != nil {
		return nil, err
	}

	item := &autocadio.WorkItem{
		Id:         "",
		ActivityId: input.Activity.Id,
		Arguments: autocadio.Arguments{
			InputArguments:  input.InputArguments,
			OutputArguments: input.OutputArguments,
		},
	}

	s.logger.Info("Submitting workitem", map[string]interface{}{"activityId": item.ActivityId})

	submitCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	submitted, err := s.client.SubmitWorkItem(submitCtx, item)
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrCodeAPIUnauthorized) {
			return nil, err
		}
		return nil, errors.NewWorkItemSubmitFailedError(item.ActivityId, err)
	}

	log := s.logger.WithFields(map[string]interface{}{"workItemId": submitted.Id})
	log.Info("WorkItem submitted", nil)

	start := s.now()
	status, polls, err := s.poll(ctx, log, submitted.Id)
	elapsed := s.now().Sub(start)
	if err != nil {
		return nil, err
	}

	// re-query so the report and output URLs filled in by the service are visible
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	full, err := s.client.GetWorkItem(fetchCtx, submitted.Id)
	cancel()
	if err != nil {
		return nil, err
	}
	if full.Status == "" {
		full.Status = status
	}

	metrics.WorkItemsTotal.WithLabelValues(string(full.Status)).Inc()
	log.Info("WorkItem finished", map[string]interface{}{
		"status":  string(full.Status),
		"polls":   polls,
		"elapsed": elapsed.String(),
	})

	return &Output{WorkItem: full, Polls: polls, Elapsed: elapsed}, nil
}

// poll sleeps, checks the status and repeats until the status is terminal,
// MaxDuration or MaxAttempts is exhausted, or ctx is cancelled.
func (s *Service) poll(ctx context.Context, log logger.Logger, id string) (autocadio.ExecutionStatus, int, error) {
	start := s.now()
	deadline := start.Add(s.config.MaxDuration)
	lastStatus := autocadio.StatusPending
	polls, statusErrors := 0, 0

	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()

	for {
		if s.config.MaxAttempts > 0 && polls >= s.config.MaxAttempts {
			return "", polls, errors.NewWorkItemPollTimeoutError(id, polls, s.now().Sub(start), string(lastStatus))
		}
		if !s.now().Add(s.config.PollInterval).Before(deadline) && polls > 0 {
			return "", polls, errors.NewWorkItemPollTimeoutError(id, polls, s.now().Sub(start), string(lastStatus))
		}

		log.Debug("Sleeping before status check", map[string]interface{}{"interval": s.config.PollInterval.String()})
		select {
		case <-ctx.Done():
			return "", polls, fmt.Errorf("polling work item %s: %w", id, ctx.Err())
		case <-timer.C:
		}
		timer.Reset(s.config.PollInterval)

		polls++
		metrics.PollAttemptsTotal.Inc()

		reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		status, err := s.client.GetWorkItemStatus(reqCtx, id)
		cancel()
		if err != nil {
			if errors.IsRetryable(err) && statusErrors < s.config.MaxStatusErrors {
				statusErrors++
				log.Warn("Status check failed, will retry", map[string]interface{}{
					"error":   err.Error(),
					"attempt": statusErrors,
				})
				continue
			}
			return "", polls, err
		}
		statusErrors = 0
		lastStatus = status

		log.Info("WorkItem status", map[string]interface{}{"status": string(status), "poll": polls})
		if status.IsTerminal() {
			return status, polls, nil
		}
	}
}

// validateArguments checks argument names against the activity's declared parameters before anything is sent.
func validateArguments(input *Input) error {
	seen := make(map[string]bool)
	for _, arg := range input.InputArguments {
		if !input.Activity.HasInputParameter(arg.Name) {
			return errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("input %q is not a parameter of activity %s", arg.Name, input.Activity.Id))
		}
		if arg.ResourceURL() == "" {
			return errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("input %q has no resource", arg.Name))
		}
		if seen[arg.Name] {
			return errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("input %q is bound twice", arg.Name))
		}
		seen[arg.Name] = true
	}
	for _, arg := range input.OutputArguments {
		if !input.Activity.HasOutputParameter(arg.Name) {
			return errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("output %q is not a parameter of activity %s", arg.Name, input.Activity.Id))
		}
		if seen[arg.Name] {
			return errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("output %q is bound twice", arg.Name))
		}
		seen[arg.Name] = true
	}
	for _, p := range input.Activity.Parameters.InputParameters {
		if !p.Optional && !seen[p.Name] {
			return errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("required input %q is not bound", p.Name))
		}
	}
	return nil
}
