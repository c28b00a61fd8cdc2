// Package ensureactivity creates or updates the remote activity so it matches a local definition.
package ensureactivity

import (
	"context"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

const StepName = "ensure-activity"

type Service struct {
	config *Config
	logger logger.Logger
	client ActivityAPI
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"step": StepName}),
		client: deps.Client,
	}
}

// Execute is an idempotent upsert: the remote activity ends up carrying the definition whatever its prior state.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	def := input.Definition
	if def == nil {
		return nil, errors.NewDefinitionInvalidError("no activity definition supplied")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	s.logger.Info("Creating/Updating Activity", map[string]interface{}{
		"activityId":    def.ID,
		"engineVersion": def.RequiredEngineVersion,
	})

	activity, found, err := s.client.GetActivity(ctx, def.ID)
	if err != nil {
		return nil, wrap(def.ID, err)
	}

	if !found {
		activity = &autocadio.Activity{Id: def.ID}
		def.Apply(activity)
		created, err := s.client.CreateActivity(ctx, activity)
		if err != nil {
			return nil, wrap(def.ID, err)
		}
		s.logger.Info("Activity created", map[string]interface{}{"activityId": def.ID, "version": created.Version})
		return &Output{Activity: created, Created: true}, nil
	}

	if s.config.SkipUnchanged && def.Matches(activity) {
		s.logger.Info("Activity already up to date", map[string]interface{}{"activityId": def.ID, "version": activity.Version})
		return &Output{Activity: activity}, nil
	}

	def.Apply(activity)
	if err := s.client.UpdateActivity(ctx, activity); err != nil {
		return nil, wrap(def.ID, err)
	}
	s.logger.Info("Activity updated", map[string]interface{}{"activityId": def.ID})
	return &Output{Activity: activity, Updated: true}, nil
}

// wrap keeps authentication failures recognisable and files everything else under the upsert code.
func wrap(activityID string, err error) error {
	if errors.Is(err, errors.ErrCodeAPIUnauthorized) {
		return err
	}
	return errors.NewActivityUpsertFailedError(activityID, err)
}
