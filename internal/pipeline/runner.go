// Package pipeline runs one import end to end: resolve credentials, obtain a token,
// make sure the activity exists, sign the inputs, submit the work item, wait for it
// and download what it produced.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cadio-client/internal/common/auth"
	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/aws"
	"cadio-client/internal/common/config"
	"cadio-client/internal/common/credentials"
	"cadio-client/internal/common/errors"
	cadiohttp "cadio-client/internal/common/http"
	"cadio-client/internal/common/logger"
	"cadio-client/internal/common/metrics"
	"cadio-client/internal/common/observability"
	ensureactivity "cadio-client/internal/steps/activity/ensure-activity"
	recordrun "cadio-client/internal/steps/history/record-run"
	notifycompletion "cadio-client/internal/steps/notify/notify-completion"
	signresources "cadio-client/internal/steps/storage/sign-resources"
	downloadresults "cadio-client/internal/steps/workitem/download-results"
	submitworkitem "cadio-client/internal/steps/workitem/submit-workitem"
	"cadio-client/pkg/activitydef"
)

// PresignerFactory builds the storage signer once the AWS keys are known.
type PresignerFactory func(region string, keys aws.StaticKeys, verify bool, log logger.Logger) (signresources.Presigner, error)

// Dependencies are the collaborators of a Runner. Only Logger and Credentials are required.
type Dependencies struct {
	Logger        logger.Logger
	Credentials   credentials.Provider
	TokenCache    auth.TokenCache
	NewPresigner  PresignerFactory
	History       recordrun.Store
	SES           notifycompletion.SESService
	SNS           notifycompletion.SNSService
	Observability *observability.Observability
}

// RunResult describes a finished run. Fields are filled in as far as the run got.
type RunResult struct {
	RunID           string
	ActivityID      string
	ActivityCreated bool
	WorkItemID      string
	Status          autocadio.ExecutionStatus
	ReportURL       string
	ReportPath      string
	ResultPath      string
	Polls           int
	Duration        time.Duration
}

type Runner struct {
	cfg    *config.Config
	deps   Dependencies
	logger logger.Logger
}

func NewRunner(cfg *config.Config, deps Dependencies) *Runner {
	if deps.NewPresigner == nil {
		deps.NewPresigner = func(region string, keys aws.StaticKeys, verify bool, log logger.Logger) (signresources.Presigner, error) {
			return aws.NewS3Presigner(region, keys, verify, log)
		}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Runner{cfg: cfg, deps: deps, logger: deps.Logger}
}

// Run executes one import. The returned result is never nil, so callers can log
// the run ID and how far the run got even when err is set.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.New().String()}
	log := r.logger.WithFields(map[string]interface{}{"runId": result.RunID})

	log.Info("Run started", nil)
	err := r.run(ctx, log, result)
	result.Duration = time.Since(start)

	// history and notifications still go out when ctx was cancelled mid-run
	r.finish(context.WithoutCancel(ctx), log, result, start, err)

	if err == nil {
		log.Info("Run finished", map[string]interface{}{
			"workItemId": result.WorkItemID,
			"status":     string(result.Status),
			"resultPath": result.ResultPath,
			"duration":   result.Duration.String(),
		})
	}
	return result, err
}

func (r *Runner) run(ctx context.Context, log logger.Logger, result *RunResult) error {
	// credentials are checked before anything touches the network
	var creds *credentials.Set
	if err := step(log, "resolve-credentials", func() (err error) {
		creds, err = credentials.Resolve(r.deps.Credentials)
		return err
	}); err != nil {
		return err
	}

	var def *activitydef.Definition
	if err := step(log, "load-definition", func() (err error) {
		def, err = activitydef.Load(r.cfg.Activity.DefinitionPath)
		return err
	}); err != nil {
		return err
	}
	result.ActivityID = def.ID

	tokens := newTokenClient(r.cfg, creds, r.deps.TokenCache, log)
	var client *autocadio.Client
	if err := step(log, "acquire-token", func() (err error) {
		client, err = authorize(ctx, r.cfg, tokens)
		return err
	}); err != nil {
		return err
	}

	requestTimeout := config.GetDuration(r.cfg.AutocadIO.Timeout)

	ensureCfg := &ensureactivity.Config{Timeout: requestTimeout, SkipUnchanged: r.cfg.Activity.SkipUnchanged}
	var ensured *ensureactivity.Output
	if err := step(log, ensureactivity.StepName, func() (err error) {
		ensured, err = ensureActivity(ctx, log, client, ensureCfg, def)
		if !errors.Is(err, errors.ErrCodeAPIUnauthorized) || !tokens.FromCache() {
			return err
		}
		// another process may have cached a token the service has since revoked
		log.Warn("Cached token rejected, requesting a new one", nil)
		if err := tokens.Invalidate(ctx); err != nil {
			return err
		}
		if client, err = authorize(ctx, r.cfg, tokens); err != nil {
			return err
		}
		ensured, err = ensureActivity(ctx, log, client, ensureCfg, def)
		return err
	}); err != nil {
		return err
	}
	result.ActivityCreated = ensured.Created

	presigner, err := r.deps.NewPresigner(r.cfg.Storage.Region, aws.StaticKeys{
		AccessKey: creds.AWSAccessKey,
		SecretKey: creds.AWSSecretKey,
	}, r.cfg.Storage.VerifyObjects, log)
	if err != nil {
		return err
	}

	outputRef := r.outputRef()
	sign := signresources.NewService(
		signresources.ServiceDependencies{Logger: log, Presigner: presigner},
		&signresources.Config{URLTTL: r.cfg.Storage.URLTTL(), OutputParameter: activitydef.ResultParameter},
	)
	var signed *signresources.Output
	if err := step(log, signresources.StepName, func() (err error) {
		signed, err = sign.Execute(ctx, &signresources.Input{Inputs: r.inputRefs(), Output: outputRef})
		return err
	}); err != nil {
		return err
	}

	submit := submitworkitem.NewService(
		submitworkitem.ServiceDependencies{Logger: log, Client: client},
		&submitworkitem.Config{
			PollInterval:    config.GetDuration(r.cfg.Polling.Interval),
			MaxDuration:     config.GetDuration(r.cfg.Polling.MaxDuration),
			MaxAttempts:     r.cfg.Polling.MaxAttempts,
			MaxStatusErrors: submitworkitem.DefaultConfig().MaxStatusErrors,
			RequestTimeout:  requestTimeout,
		},
	)
	var submitted *submitworkitem.Output
	if err := step(log, submitworkitem.StepName, func() (err error) {
		submitted, err = submit.Execute(ctx, &submitworkitem.Input{
			Activity:        ensured.Activity,
			InputArguments:  signed.InputArguments,
			OutputArguments: signed.OutputArguments,
		})
		return err
	}); err != nil {
		return err
	}

	item := submitted.WorkItem
	result.WorkItemID = item.Id
	result.Status = item.Status
	result.Polls = submitted.Polls
	result.ReportURL = item.ReportURL()

	download := downloadresults.NewService(
		downloadresults.ServiceDependencies{
			Logger: log,
			Client: cadiohttp.NewClient(config.GetDuration(r.cfg.Download.Timeout)),
		},
		&downloadresults.Config{
			OutputDir:  r.cfg.Download.OutputDir,
			ReportFile: r.cfg.Download.ReportFile,
			ResultFile: r.cfg.Download.ResultFile,
			Timeout:    config.GetDuration(r.cfg.Download.Timeout),
		},
	)

	if result.ReportURL != "" {
		if err := step(log, "download-report", func() error {
			path, err := download.ReportPath()
			if err != nil {
				return err
			}
			if _, err := download.Download(ctx, result.ReportURL, path); err != nil {
				return err
			}
			result.ReportPath = path
			return nil
		}); err != nil && item.Status.IsSuccess() {
			return err
		}
	} else {
		log.Warn("WorkItem has no report", map[string]interface{}{"workItemId": item.Id})
	}

	if !item.Status.IsSuccess() {
		return errors.NewWorkItemFailedError(item.Id, string(item.Status), result.ReportPath)
	}

	return step(log, downloadresults.StepName, func() error {
		url := item.OutputURL(activitydef.ResultParameter)
		if outputRef != nil {
			// the work item only holds our PUT URL; read the object back with a fresh GET
			signedGet, err := presigner.SignURL(ctx, outputRef.Bucket, outputRef.Key, "GET", r.cfg.Storage.URLTTL())
			if err != nil {
				return err
			}
			url = signedGet
		}
		path, err := download.ResultPath()
		if err != nil {
			return err
		}
		if _, err := download.Download(ctx, url, path); err != nil {
			return err
		}
		result.ResultPath = path
		return nil
	})
}

func ensureActivity(ctx context.Context, log logger.Logger, client *autocadio.Client, cfg *ensureactivity.Config, def *activitydef.Definition) (*ensureactivity.Output, error) {
	ensure := ensureactivity.NewService(ensureactivity.ServiceDependencies{Logger: log, Client: client}, cfg)
	return ensure.Execute(ctx, &ensureactivity.Input{Definition: def})
}

func (r *Runner) inputRefs() []signresources.ObjectRef {
	refs := make([]signresources.ObjectRef, 0, len(r.cfg.Storage.Inputs))
	for _, in := range r.cfg.Storage.Inputs {
		bucket := in.Bucket
		if bucket == "" {
			bucket = r.cfg.Storage.Bucket
		}
		refs = append(refs, signresources.ObjectRef{Name: in.Name, Bucket: bucket, Key: in.Key})
	}
	return refs
}

func (r *Runner) outputRef() *signresources.ObjectRef {
	if r.cfg.Storage.OutputBucket == "" {
		return nil
	}
	return &signresources.ObjectRef{
		Name:   activitydef.ResultParameter,
		Bucket: r.cfg.Storage.OutputBucket,
		Key:    r.cfg.Storage.OutputKey,
	}
}

// finish records the run. Failures here are logged and never change the run's outcome.
func (r *Runner) finish(ctx context.Context, log logger.Logger, result *RunResult, start time.Time, runErr error) {
	status := string(result.Status)
	errorCode, errorText := "", ""
	if runErr != nil {
		errorText = runErr.Error()
		errorCode = "INTERNAL_ERROR"
		if stdErr, ok := errors.AsStandard(runErr); ok {
			errorCode = string(stdErr.Code)
		}
		if status == "" {
			status = errorCode
		}
	}

	if r.deps.Observability != nil {
		r.deps.Observability.RecordRun(ctx, result.ActivityID, status, result.Duration)
	}

	if r.deps.History != nil {
		history := recordrun.NewService(
			recordrun.ServiceDependencies{Logger: log, Store: r.deps.History},
			recordrun.DefaultConfig(),
		)
		err := step(log, recordrun.StepName, func() error {
			return history.Execute(ctx, &recordrun.Input{
				RunID:      result.RunID,
				ActivityID: result.ActivityID,
				WorkItemID: result.WorkItemID,
				Status:     status,
				ErrorCode:  errorCode,
				ReportURL:  result.ReportURL,
				ResultPath: result.ResultPath,
				StartedAt:  start,
				FinishedAt: start.Add(result.Duration),
			})
		})
		if err != nil {
			log.Warn("Run history not written", map[string]interface{}{"error": err.Error()})
		}
	}

	n := r.cfg.Notifications
	if n.Enabled() && (r.deps.SES != nil || r.deps.SNS != nil) {
		notify := notifycompletion.NewService(
			notifycompletion.ServiceDependencies{Logger: log, SES: r.deps.SES, SNS: r.deps.SNS},
			&notifycompletion.Config{
				EmailEnabled: n.SES.Enabled,
				SNSEnabled:   n.SNS.Enabled,
				FromEmail:    n.SES.FromEmail,
				ToEmail:      n.SES.ToEmail,
				TopicARN:     n.SNS.TopicARN,
				Timeout:      notifycompletion.DefaultConfig().Timeout,
			},
		)
		err := step(log, notifycompletion.StepName, func() error {
			_, err := notify.Execute(ctx, &notifycompletion.Input{
				RunID:      result.RunID,
				ActivityID: result.ActivityID,
				WorkItemID: result.WorkItemID,
				Status:     status,
				ReportPath: result.ReportPath,
				ResultPath: result.ResultPath,
				Error:      errorText,
			})
			return err
		})
		if err != nil {
			log.Warn("Completion notification not sent", map[string]interface{}{"error": err.Error()})
		}
	}
}

// step times fn and records it under name.
func step(log logger.Logger, name string, fn func() error) error {
	start := time.Now()
	log.Debug("Step started", map[string]interface{}{"step": name})

	err := fn()
	metrics.ObserveStep(name, start, err)
	if err != nil {
		log.Error("Step failed", map[string]interface{}{"step": name, "error": err.Error()})
		return err
	}

	log.Debug("Step finished", map[string]interface{}{"step": name, "duration": time.Since(start).String()})
	return nil
}
