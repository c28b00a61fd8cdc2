package notifycompletion

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

type MockSESService struct {
	mock.Mock
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*ses.SendEmailOutput)
	return out, args.Error(1)
}

type MockSNSService struct {
	mock.Mock
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func createTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.EmailEnabled = true
	cfg.SNSEnabled = true
	cfg.FromEmail = "cad@example.com"
	cfg.ToEmail = "ops@example.com"
	cfg.TopicARN = "arn:aws:sns:us-west-2:123456789012:cadio-runs"
	return cfg
}

func createTestInput() *Input {
	return &Input{
		RunID:      "run-1",
		ActivityID: "TestImport",
		WorkItemID: "wi-1",
		Status:     "Succeeded",
		ReportPath: "/tmp/output-report.txt",
		ResultPath: "/tmp/AfterImported.dwg",
	}
}

func TestExecute_SendsOnBothChannels(t *testing.T) {
	sesMock := new(MockSESService)
	snsMock := new(MockSNSService)
	sesMock.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return *in.Source == "cad@example.com" &&
			in.Destination.ToAddresses[0] == "ops@example.com" &&
			*in.Message.Subject.Data == "[cadio] TestImport work item wi-1: Succeeded"
	})).Return(&ses.SendEmailOutput{}, nil)
	snsMock.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return *in.TopicArn == "arn:aws:sns:us-west-2:123456789012:cadio-runs" &&
			strings.Contains(*in.Message, "Report:    /tmp/output-report.txt")
	})).Return(&sns.PublishOutput{}, nil)

	service := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), SES: sesMock, SNS: snsMock}, createTestConfig())
	out, err := service.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{ChannelEmail, ChannelSNS}, out.Channels)
	assert.NotEmpty(t, out.NotificationID)
	sesMock.AssertExpectations(t)
	snsMock.AssertExpectations(t)
}

func TestExecute_Disabled(t *testing.T) {
	sesMock := new(MockSESService)
	service := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), SES: sesMock}, DefaultConfig())

	out, err := service.Execute(context.Background(), createTestInput())

	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, out.Status)
	sesMock.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestExecute_EmailFailureStillPublishes(t *testing.T) {
	sesMock := new(MockSESService)
	snsMock := new(MockSNSService)
	sesMock.On("SendEmail", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("MessageRejected"))
	snsMock.On("Publish", mock.Anything, mock.Anything).Return(&sns.PublishOutput{}, nil)

	service := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), SES: sesMock, SNS: snsMock}, createTestConfig())
	out, err := service.Execute(context.Background(), createTestInput())

	assert.True(t, errors.Is(err, errors.ErrCodeNotificationSendFailed))
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, []string{ChannelSNS}, out.Channels)
	snsMock.AssertExpectations(t)
}

func TestExecute_FailedRunIncludesError(t *testing.T) {
	snsMock := new(MockSNSService)
	snsMock.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return strings.Contains(*in.Message, "Error:     work item finished with status FailedInstructions")
	})).Return(&sns.PublishOutput{}, nil)

	cfg := createTestConfig()
	cfg.EmailEnabled = false
	input := createTestInput()
	input.Status = "FailedInstructions"
	input.ResultPath = ""
	input.Error = "work item finished with status FailedInstructions"

	_, err := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), SNS: snsMock}, cfg).Execute(context.Background(), input)

	require.NoError(t, err)
	snsMock.AssertExpectations(t)
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		data     map[string]interface{}
		expected string
	}{
		{"all values", "{{a}}-{{b}}", map[string]interface{}{"a": "x", "b": 2}, "x-2"},
		{"missing value dropped", "{{a}} and {{missing}}", map[string]interface{}{"a": "x"}, "x and "},
		{"unterminated", "{{a}} {{oops", map[string]interface{}{"a": "x"}, "x {{oops"},
		{"value with braces kept", "{{a}}: {{b}}", map[string]interface{}{"a": "{{b}} {{", "b": "y"}, "{{b}} {{: y"},
		{"value with closed braces kept", "{{a}}", map[string]interface{}{"a": "bad {{status}} }}"}, "bad {{status}} }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, renderTemplate(tt.tmpl, tt.data))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, createTestConfig().Validate())

	cfg := createTestConfig()
	cfg.TopicARN = ""
	assert.Error(t, cfg.Validate())

	cfg = createTestConfig()
	cfg.ToEmail = ""
	assert.Error(t, cfg.Validate())
}

func TestExecute_SubjectTruncatedByRune(t *testing.T) {
	var subject string
	snsMock := new(MockSNSService)
	snsMock.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		subject = *in.Subject
		return true
	})).Return(&sns.PublishOutput{}, nil)

	cfg := createTestConfig()
	cfg.EmailEnabled = false
	input := createTestInput()
	input.ActivityID = strings.Repeat("é", 120)

	_, err := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), SNS: snsMock}, cfg).Execute(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, utf8.ValidString(subject))
	assert.Equal(t, 100, utf8.RuneCountInString(subject))
	assert.True(t, strings.HasPrefix(subject, "[cadio] ééé"))
}

func TestExecute_ErrorTextWithPlaceholdersIsVerbatim(t *testing.T) {
	var subject, message string
	snsMock := new(MockSNSService)
	snsMock.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		subject, message = *in.Subject, *in.Message
		return true
	})).Return(&sns.PublishOutput{}, nil)

	cfg := createTestConfig()
	cfg.EmailEnabled = false
	input := createTestInput()
	input.Status = "FailedInstructions"
	input.Error = `script said "{{status}}" and {{ left open`

	_, err := NewService(ServiceDependencies{Logger: logger.NewTestLogger(t), SNS: snsMock}, cfg).Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, "[cadio] TestImport work item wi-1: FailedInstructions", subject)
	assert.Contains(t, message, "Error:     script said \"{{status}}\" and {{ left open\n")
	assert.True(t, strings.HasSuffix(message, "\n"))
	assert.False(t, strings.HasSuffix(message, "\n\n"))
}
