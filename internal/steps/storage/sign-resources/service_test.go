package signresources

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) SignURL(ctx context.Context, bucket, key, verb string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, verb, ttl)
	return args.String(0), args.Error(1)
}

func newService(t *testing.T, p Presigner) *Service {
	return NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), Presigner: p}, DefaultConfig())
}

var defaultInputs = []ObjectRef{
	{Name: "HostDwg", Bucket: "cad-inputs", Key: "template.dwg"},
	{Name: "CatImport", Bucket: "cad-inputs", Key: "Aero_Punch1.CATPart"},
}

func TestExecute_ServiceProvidedOutput(t *testing.T) {
	p := new(MockPresigner)
	p.On("SignURL", mock.Anything, "cad-inputs", "template.dwg", http.MethodGet, time.Hour).Return("https://s3/template?sig", nil)
	p.On("SignURL", mock.Anything, "cad-inputs", "Aero_Punch1.CATPart", http.MethodGet, time.Hour).Return("https://s3/part?sig", nil)

	out, err := newService(t, p).Execute(context.Background(), &Input{Inputs: defaultInputs})

	require.NoError(t, err)
	require.Len(t, out.InputArguments, 2)
	assert.Equal(t, "HostDwg", out.InputArguments[0].Name)
	assert.Equal(t, "https://s3/template?sig", out.InputArguments[0].ResourceURL())
	assert.Equal(t, autocadio.StorageGeneric, out.InputArguments[1].StorageProvider)

	require.Len(t, out.OutputArguments, 1)
	result := out.OutputArguments[0]
	assert.Equal(t, "Result", result.Name)
	assert.Nil(t, result.Resource)
	assert.Equal(t, http.MethodPost, result.HttpVerb)
	p.AssertExpectations(t)
}

func TestExecute_OwnOutputBucket(t *testing.T) {
	p := new(MockPresigner)
	p.On("SignURL", mock.Anything, "cad-inputs", mock.Anything, http.MethodGet, time.Hour).Return("https://s3/in?sig", nil)
	p.On("SignURL", mock.Anything, "cad-outputs", "runs/out.dwg", http.MethodPut, time.Hour).Return("https://s3/out?sig", nil)

	out, err := newService(t, p).Execute(context.Background(), &Input{
		Inputs: defaultInputs,
		Output: &ObjectRef{Bucket: "cad-outputs", Key: "runs/out.dwg"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Result", out.OutputArguments[0].Name)
	assert.Equal(t, "https://s3/out?sig", out.OutputArguments[0].ResourceURL())
	assert.Equal(t, http.MethodPut, out.OutputArguments[0].HttpVerb)
}

func TestExecute_FailsFast(t *testing.T) {
	tests := []struct {
		name string
		url  string
		err  error
		code errors.ErrorCode
	}{
		{"bad credentials", "", errors.NewStorageCredentialsInvalidError("cad-inputs", "template.dwg", fmt.Errorf("InvalidAccessKeyId")), errors.ErrCodeStorageCredentialsInvalid},
		{"signing error", "", errors.NewStorageSigningFailedError("cad-inputs", "template.dwg", fmt.Errorf("boom")), errors.ErrCodeStorageSigningFailed},
		{"empty url without error", "", nil, errors.ErrCodeStorageSigningFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockPresigner)
			p.On("SignURL", mock.Anything, "cad-inputs", "template.dwg", http.MethodGet, time.Hour).Return(tt.url, tt.err)

			out, err := newService(t, p).Execute(context.Background(), &Input{Inputs: defaultInputs})

			assert.Nil(t, out)
			assert.True(t, errors.Is(err, tt.code), err)
			p.AssertNumberOfCalls(t, "SignURL", 1)
		})
	}
}

func TestExecute_RejectsIncompleteReferences(t *testing.T) {
	p := new(MockPresigner)

	_, err := newService(t, p).Execute(context.Background(), &Input{Inputs: []ObjectRef{{Name: "HostDwg", Key: "template.dwg"}}})
	assert.True(t, errors.Is(err, errors.ErrCodeWorkItemArgumentInvalid))

	_, err = newService(t, p).Execute(context.Background(), &Input{})
	assert.True(t, errors.Is(err, errors.ErrCodeWorkItemArgumentInvalid))

	p.AssertNotCalled(t, "SignURL", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{URLTTL: 0, OutputParameter: "Result"}).Validate())
	assert.Error(t, (&Config{URLTTL: 8 * 24 * time.Hour, OutputParameter: "Result"}).Validate())
	assert.Error(t, (&Config{URLTTL: time.Hour}).Validate())
}
