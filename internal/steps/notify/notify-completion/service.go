// Package notifycompletion announces the outcome of a run over SES and SNS.
package notifycompletion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/logger"
)

const StepName = "notify-completion"

// SNS subjects are limited to 100 characters.
const maxSubjectRunes = 100

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

const (
	subjectTemplate = "[cadio] {{activityId}} work item {{workItemId}}: {{status}}"
	bodyTemplate    = `Run {{runId}} finished.

Activity:  {{activityId}}
Work item: {{workItemId}}
Status:    {{status}}
Report:    {{reportPath}}
Result:    {{resultPath}}
{{error}}`
)

type Service struct {
	config *Config
	logger logger.Logger
	ses    SESService
	sns    SNSService
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	return &Service{
		config: config,
		logger: deps.Logger.WithFields(map[string]interface{}{"step": StepName}),
		ses:    deps.SES,
		sns:    deps.SNS,
	}
}

// Execute sends on every enabled channel. A failing channel does not stop the others;
// the first failure is returned once all have been tried.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}

	emailOn := s.config.EmailEnabled && s.ses != nil
	snsOn := s.config.SNSEnabled && s.sns != nil
	if !emailOn && !snsOn {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	data := map[string]interface{}{
		"runId":      input.RunID,
		"activityId": input.ActivityID,
		"workItemId": input.WorkItemID,
		"status":     input.Status,
		"reportPath": input.ReportPath,
		"resultPath": input.ResultPath,
	}
	if input.Error != "" {
		data["error"] = "Error:     " + input.Error
	}
	subject := renderTemplate(subjectTemplate, data)
	body := strings.TrimRight(renderTemplate(bodyTemplate, data), "\n") + "\n"

	var firstErr error
	if emailOn {
		if err := s.sendEmail(ctx, subject, body); err != nil {
			s.logger.Error("email send failed", map[string]interface{}{"error": err, "to": s.config.ToEmail})
			firstErr = errors.NewNotificationSendFailedError(ChannelEmail, err)
		} else {
			out.Channels = append(out.Channels, ChannelEmail)
		}
	}
	if snsOn {
		if err := s.publish(ctx, subject, body); err != nil {
			s.logger.Error("SNS publish failed", map[string]interface{}{"error": err, "topicArn": s.config.TopicARN})
			if firstErr == nil {
				firstErr = errors.NewNotificationSendFailedError(ChannelSNS, err)
			}
		} else {
			out.Channels = append(out.Channels, ChannelSNS)
		}
	}

	if firstErr != nil {
		out.Status = StatusFailed
		return out, firstErr
	}
	out.Status = StatusSent
	return out, nil
}

func (s *Service) sendEmail(ctx context.Context, subject, body string) error {
	_, err := s.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{s.config.ToEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.config.FromEmail),
	})
	return err
}

func (s *Service) publish(ctx context.Context, subject, body string) error {
	if r := []rune(subject); len(r) > maxSubjectRunes {
		subject = string(r[:maxSubjectRunes])
	}
	_, err := s.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.config.TopicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	return err
}

// renderTemplate replaces {{key}} placeholders in one pass over tmpl, so
// substituted values are never rescanned. Placeholders without a value are dropped.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		switch v := data[m[2:len(m)-2]].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			return fmt.Sprintf("%v", v)
		}
	})
}
