// Package signresources turns storage object references into work item arguments.
package signresources

import (
	"context"
	"fmt"
	"net/http"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

const StepName = "sign-resources"

type Service struct {
	config    *Config
	logger    logger.Logger
	presigner Presigner
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config:    config,
		logger:    deps.Logger.WithFields(map[string]interface{}{"step": StepName}),
		presigner: deps.Presigner,
	}
}

// Execute signs every input for GET and the optional output for PUT.
// It stops at the first failure; no argument is ever built from an empty URL.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Inputs) == 0 {
		return nil, errors.NewWorkItemArgumentInvalidError("at least one input object is required")
	}

	out := &Output{InputArguments: make([]autocadio.Argument, 0, len(input.Inputs))}

	for _, ref := range input.Inputs {
		url, err := s.sign(ctx, ref, http.MethodGet)
		if err != nil {
			return nil, err
		}
		out.InputArguments = append(out.InputArguments, autocadio.Argument{
			Name:            ref.Name,
			Resource:        autocadio.StringPtr(url),
			StorageProvider: autocadio.StorageGeneric,
		})
	}

	if input.Output == nil {
		out.OutputArguments = []autocadio.Argument{{
			Name:            s.config.OutputParameter,
			Resource:        nil,
			StorageProvider: autocadio.StorageGeneric,
			HttpVerb:        http.MethodPost,
		}}
	} else {
		ref := *input.Output
		if ref.Name == "" {
			ref.Name = s.config.OutputParameter
		}
		url, err := s.sign(ctx, ref, http.MethodPut)
		if err != nil {
			return nil, err
		}
		out.OutputArguments = []autocadio.Argument{{
			Name:            ref.Name,
			Resource:        autocadio.StringPtr(url),
			StorageProvider: autocadio.StorageGeneric,
			HttpVerb:        http.MethodPut,
		}}
	}

	s.logger.Info("Resources signed", map[string]interface{}{
		"inputs":        len(out.InputArguments),
		"serviceOutput": input.Output == nil,
	})
	return out, nil
}

func (s *Service) sign(ctx context.Context, ref ObjectRef, verb string) (string, error) {
	if ref.Name == "" || ref.Bucket == "" || ref.Key == "" {
		return "", errors.NewWorkItemArgumentInvalidError(fmt.Sprintf("object reference %+v needs name, bucket and key", ref))
	}
	url, err := s.presigner.SignURL(ctx, ref.Bucket, ref.Key, verb, s.config.URLTTL)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", errors.NewStorageSigningFailedError(ref.Bucket, ref.Key, fmt.Errorf("empty presigned URL"))
	}
	s.logger.Debug("Signed object", map[string]interface{}{
		"parameter": ref.Name,
		"bucket":    ref.Bucket,
		"key":       ref.Key,
		"verb":      verb,
	})
	return url, nil
}
