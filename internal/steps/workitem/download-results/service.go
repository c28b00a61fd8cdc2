// Package downloadresults fetches work item reports and outputs to local files.
package downloadresults

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

const StepName = "download-results"

type Service struct {
	config *Config
	logger logger.Logger
	client Doer
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"step": StepName}),
		client: deps.Client,
	}
}

// ReportPath is where the status report is written.
func (s *Service) ReportPath() (string, error) {
	return s.resolve(s.config.ReportFile)
}

// ResultPath is where the result artifact is written.
func (s *Service) ResultPath() (string, error) {
	return s.resolve(s.config.ResultFile)
}

func (s *Service) resolve(name string) (string, error) {
	dir := s.config.OutputDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve output directory: %w", err)
		}
		dir = wd
	}
	return filepath.Join(dir, name), nil
}

// Download streams url into localPath, replacing any existing file.
// The file only appears once the whole body has been received.
func (s *Service) Download(ctx context.Context, url, localPath string) (int64, error) {
	if url == "" {
		return 0, errors.NewDownloadPreconditionError(localPath)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.NewDownloadFailedError(localPath, err)
	}

	s.logger.Info("Downloading", map[string]interface{}{"path": localPath})

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.NewDownloadFailedError(localPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, errors.NewDownloadFailedError(localPath, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.NewDownloadFailedError(localPath, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".*")
	if err != nil {
		return 0, errors.NewDownloadFailedError(localPath, err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, localPath)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.NewDownloadFailedError(localPath, err)
	}

	s.logger.Info("Downloaded", map[string]interface{}{"path": localPath, "bytes": n})
	return n, nil
}
