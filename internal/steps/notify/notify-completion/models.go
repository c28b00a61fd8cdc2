package notifycompletion

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"cadio-client/internal/common/logger"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Input struct {
	RunID      string `json:"runId"`
	ActivityID string `json:"activityId"`
	WorkItemID string `json:"workItemId,omitempty"`
	Status     string `json:"status"`
	ReportPath string `json:"reportPath,omitempty"`
	ResultPath string `json:"resultPath,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"` // "sent", "failed", "disabled"
	Channels       []string `json:"channels,omitempty"`
	SentAt         string   `json:"sentAt"` // ISO 8601
}

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSNS   = "sns"
)

type ServiceDependencies struct {
	Logger logger.Logger
	SES    SESService
	SNS    SNSService
}
