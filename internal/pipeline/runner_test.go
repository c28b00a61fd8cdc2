package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/autocadio/autocadiotest"
	"cadio-client/internal/common/aws"
	"cadio-client/internal/common/config"
	"cadio-client/internal/common/credentials"
	"cadio-client/internal/common/database"
	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
	signresources "cadio-client/internal/steps/storage/sign-resources"
	"cadio-client/pkg/activitydef"
)

type signCall struct {
	Bucket string
	Key    string
	Verb   string
}

// fakePresigner returns predictable URLs, or one served by the fake service when
// a key is mapped in served.
type fakePresigner struct {
	mu     sync.Mutex
	calls  []signCall
	err    error
	served map[string]string
}

func (f *fakePresigner) SignURL(ctx context.Context, bucket, key, verb string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, signCall{Bucket: bucket, Key: key, Verb: verb})
	if f.err != nil {
		return "", f.err
	}
	if u, ok := f.served[verb+" "+key]; ok {
		return u, nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s?X-Amz-Signature=%s", bucket, key, strings.ToLower(verb)), nil
}

func (f *fakePresigner) factory() PresignerFactory {
	return func(region string, keys aws.StaticKeys, verify bool, log logger.Logger) (signresources.Presigner, error) {
		return f, nil
	}
}

type MockSNSService struct {
	mock.Mock
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func noEnv(string) (string, bool) { return "", false }

func allCredentials() credentials.Provider {
	return credentials.NewProviderWithLookup(noEnv, map[string]string{
		credentials.ForgeClientID:     "client-id",
		credentials.ForgeClientSecret: "client-secret",
		credentials.AWSAccessKey:      "AKIAEXAMPLE",
		credentials.AWSSecretKey:      "secret",
	})
}

func testConfig(t *testing.T, srv *autocadiotest.Server) *config.Config {
	t.Helper()
	return &config.Config{
		AutocadIO: config.AutocadIOConfig{
			BaseURL:  srv.BaseURL(),
			TokenURL: srv.TokenURL(),
			Scope:    config.DefaultScope,
			Timeout:  5000,
		},
		Storage: config.StorageConfig{
			Region: config.DefaultRegion,
			Bucket: "cad-inputs",
			Inputs: []config.InputObject{
				{Name: "HostDwg", Key: "template.dwg"},
				{Name: "CatImport", Key: "Aero_Punch1.CATPart"},
			},
			URLTTLMinutes: 60,
		},
		Polling: config.PollingConfig{Interval: 1, MaxDuration: 5000},
		Download: config.DownloadConfig{
			OutputDir:  t.TempDir(),
			ReportFile: config.DefaultReportFile,
			ResultFile: config.DefaultResultFile,
			Timeout:    5000,
		},
	}
}

func newTestServer(t *testing.T) *autocadiotest.Server {
	srv := autocadiotest.NewServer()
	srv.RequireAuth = "Bearer test-token"
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(t, srv)
	signer := &fakePresigner{}

	runner := NewRunner(cfg, Dependencies{
		Logger:       logger.NewTestLogger(t),
		Credentials:  allCredentials(),
		NewPresigner: signer.factory(),
	})

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, activitydef.DefaultID, res.ActivityID)
	assert.True(t, res.ActivityCreated)
	assert.Equal(t, autocadio.StatusSucceeded, res.Status)
	assert.GreaterOrEqual(t, res.Polls, 2)

	activity, ok := srv.Activity(activitydef.DefaultID)
	require.True(t, ok)
	assert.Equal(t, activitydef.DefaultEngineVersion, activity.RequiredEngineVersion)
	assert.True(t, activity.HasInputParameter("HostDwg"))
	assert.True(t, activity.HasInputParameter("CatImport"))
	assert.True(t, activity.HasOutputParameter("Result"))

	item, ok := srv.WorkItem(res.WorkItemID)
	require.True(t, ok)
	require.Len(t, item.Arguments.InputArguments, 2)
	assert.Equal(t, "https://cad-inputs.s3.amazonaws.com/template.dwg?X-Amz-Signature=get", item.Arguments.InputArguments[0].ResourceURL())

	report, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, srv.Report, report)

	result, err := os.ReadFile(res.ResultPath)
	require.NoError(t, err)
	assert.Equal(t, srv.Result, result)
	assert.Equal(t, filepath.Join(cfg.Download.OutputDir, config.DefaultResultFile), res.ResultPath)

	for _, r := range srv.Requests() {
		if strings.HasPrefix(r.Path, "/Activities") || strings.HasPrefix(r.Path, "/WorkItems") {
			assert.Equal(t, "Bearer test-token", r.Authorization, r.Path)
		}
		if strings.HasPrefix(r.Path, "/files/") {
			assert.Empty(t, r.Authorization, r.Path)
		}
	}
}

func TestRun_SecondRunReusesActivity(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(t, srv)
	signer := &fakePresigner{}
	deps := Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: signer.factory(),
	}

	_, err := NewRunner(cfg, deps).Run(context.Background())
	require.NoError(t, err)
	first, _ := srv.Activity(activitydef.DefaultID)

	res, err := NewRunner(cfg, deps).Run(context.Background())
	require.NoError(t, err)
	second, _ := srv.Activity(activitydef.DefaultID)

	assert.False(t, res.ActivityCreated)
	assert.Equal(t, 1, srv.CountRequests("POST", "/Activities"))
	assert.Equal(t, first.Instruction, second.Instruction)
	assert.Equal(t, first.Parameters, second.Parameters)
	assert.Equal(t, first.RequiredEngineVersion, second.RequiredEngineVersion)
}

func TestRun_SkipUnchangedLeavesActivityAlone(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(t, srv)
	cfg.Activity.SkipUnchanged = true
	deps := Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: (&fakePresigner{}).factory(),
	}

	_, err := NewRunner(cfg, deps).Run(context.Background())
	require.NoError(t, err)
	res, err := NewRunner(cfg, deps).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.ActivityCreated)
	assert.Zero(t, srv.CountRequests("PATCH", "/Activities"))
	activity, _ := srv.Activity(activitydef.DefaultID)
	assert.Equal(t, 1, activity.Version)
}

func TestRun_StaleCachedTokenIsReplaced(t *testing.T) {
	srv := newTestServer(t)
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("cadio:token:client-id", "Bearer stale"))
	cache := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer cache.Close()

	res, err := NewRunner(testConfig(t, srv), Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		TokenCache:   cache,
		NewPresigner: (&fakePresigner{}).factory(),
	}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, autocadio.StatusSucceeded, res.Status)
	assert.Equal(t, 1, srv.CountRequests("POST", "/authentication"))

	stored, err := mr.Get("cadio:token:client-id")
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", stored)
}

func TestRun_MissingCredentialFailsBeforeNetwork(t *testing.T) {
	srv := newTestServer(t)
	signer := &fakePresigner{}

	provider := credentials.NewProviderWithLookup(noEnv, map[string]string{
		credentials.ForgeClientID:     "client-id",
		credentials.ForgeClientSecret: "client-secret",
		credentials.AWSAccessKey:      "AKIAEXAMPLE",
	})

	res, err := NewRunner(testConfig(t, srv), Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  provider,
		NewPresigner: signer.factory(),
	}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeCredentialMissing))
	assert.Contains(t, err.Error(), credentials.AWSSecretKey)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, srv.Requests())
	assert.Empty(t, signer.calls)
}

func TestRun_RejectedTokenStopsAtActivity(t *testing.T) {
	srv := newTestServer(t)
	srv.RequireAuth = "Bearer some-other-token"

	_, err := NewRunner(testConfig(t, srv), Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: (&fakePresigner{}).factory(),
	}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAPIUnauthorized))
	assert.Zero(t, srv.CountRequests("POST", "/WorkItems"))
}

func TestRun_SigningFailureStopsBeforeSubmit(t *testing.T) {
	srv := newTestServer(t)
	signer := &fakePresigner{err: errors.NewStorageSigningFailedError("cad-inputs", "template.dwg", fmt.Errorf("empty url"))}

	_, err := NewRunner(testConfig(t, srv), Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: signer.factory(),
	}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeStorageSigningFailed))
	assert.Len(t, signer.calls, 1)
	assert.Zero(t, srv.CountRequests("POST", "/WorkItems"))
}

func TestRun_FailedWorkItemKeepsReport(t *testing.T) {
	srv := newTestServer(t)
	srv.Statuses = []autocadio.ExecutionStatus{autocadio.StatusInProgress, autocadio.StatusFailedInstructions}
	srv.Report = []byte("Error: CATPart could not be imported\n")
	cfg := testConfig(t, srv)

	res, err := NewRunner(cfg, Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: (&fakePresigner{}).factory(),
	}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeWorkItemFailed))
	assert.Equal(t, autocadio.StatusFailedInstructions, res.Status)

	report, readErr := os.ReadFile(res.ReportPath)
	require.NoError(t, readErr)
	assert.Equal(t, srv.Report, report)

	assert.Empty(t, res.ResultPath)
	_, statErr := os.Stat(filepath.Join(cfg.Download.OutputDir, config.DefaultResultFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_PollTimeout(t *testing.T) {
	srv := newTestServer(t)
	srv.Statuses = []autocadio.ExecutionStatus{autocadio.StatusInProgress}
	cfg := testConfig(t, srv)
	cfg.Polling.MaxAttempts = 3

	res, err := NewRunner(cfg, Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: (&fakePresigner{}).factory(),
	}).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeWorkItemPollTimeout))
	assert.Empty(t, res.ResultPath)
	assert.Equal(t, 3, srv.CountRequests("GET", "/WorkItems"))
}

func TestRun_OwnOutputBucket(t *testing.T) {
	srv := newTestServer(t)
	srv.PutFile("own/out.dwg", []byte("uploaded by the job"))
	cfg := testConfig(t, srv)
	cfg.Storage.OutputBucket = "cad-outputs"
	cfg.Storage.OutputKey = "results/out.dwg"

	signer := &fakePresigner{served: map[string]string{
		"GET results/out.dwg": srv.URL + "/files/own/out.dwg",
	}}

	res, err := NewRunner(cfg, Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: signer.factory(),
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, signer.calls, signCall{Bucket: "cad-outputs", Key: "results/out.dwg", Verb: "PUT"})
	assert.Contains(t, signer.calls, signCall{Bucket: "cad-outputs", Key: "results/out.dwg", Verb: "GET"})

	result, err := os.ReadFile(res.ResultPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("uploaded by the job"), result)
}

func TestRun_RecordsHistoryAndNotifies(t *testing.T) {
	srv := newTestServer(t)
	cfg := testConfig(t, srv)
	cfg.Notifications.SNS.Enabled = true
	cfg.Notifications.SNS.TopicARN = "arn:aws:sns:us-west-2:123456789012:cad-runs"

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlMock.ExpectExec(`INSERT INTO workitem_runs`).WillReturnResult(sqlmock.NewResult(0, 1))

	snsMock := new(MockSNSService)
	snsMock.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return in.Message != nil && strings.Contains(*in.Message, "Succeeded")
	})).Return(&sns.PublishOutput{}, nil)

	_, err = NewRunner(cfg, Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: (&fakePresigner{}).factory(),
		History:      database.NewPostgresFromDB(db),
		SNS:          snsMock,
	}).Run(context.Background())
	require.NoError(t, err)

	assert.NoError(t, sqlMock.ExpectationsWereMet())
	snsMock.AssertExpectations(t)
}

func TestRun_HistoryFailureDoesNotFailRun(t *testing.T) {
	srv := newTestServer(t)

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlMock.ExpectExec(`INSERT INTO workitem_runs`).WillReturnError(fmt.Errorf("connection reset"))

	res, err := NewRunner(testConfig(t, srv), Dependencies{
		Logger:       logger.NewNoOpLogger(),
		Credentials:  allCredentials(),
		NewPresigner: (&fakePresigner{}).factory(),
		History:      database.NewPostgresFromDB(db),
	}).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, autocadio.StatusSucceeded, res.Status)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}
