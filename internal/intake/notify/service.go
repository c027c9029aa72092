package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"claims-intake/internal/common/config"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

// EmailSender sends a decision email. Satisfied by the SES wrapper.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SMSSender publishes a decision SMS. Satisfied by the SNS wrapper.
type SMSSender interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Service sends best-effort decision notifications. Either channel may be
// disabled; a nil sender skips that channel.
type Service struct {
	logger logger.Logger
	email  EmailSender
	sms    SMSSender
	cfg    config.NotificationConfig
}

// NewService creates a notifier.
func NewService(log logger.Logger, email EmailSender, sms SMSSender, cfg config.NotificationConfig) *Service {
	return &Service{
		logger: log,
		email:  email,
		sms:    sms,
		cfg:    cfg,
	}
}

// NotifyDecision tells the claimant how their submission was decided. SMS
// goes to the phone number from the contact step when one was given.
func (s *Service) NotifyDecision(ctx context.Context, session *models.IntakeSession) error {
	if session.Decision == nil || session.UserInfo == nil {
		return fmt.Errorf("session %s has no decision to notify about", session.ID)
	}

	subject, body := decisionMessage(session)

	var firstErr error
	if s.cfg.Email.Enabled && s.email != nil {
		if err := s.sendEmail(ctx, subject, body); err != nil {
			s.logger.WithError(err).Warn("Decision email failed", nil)
			firstErr = err
		}
	}

	if s.cfg.SMS.Enabled && s.sms != nil && session.UserInfo.Phone != "" {
		if err := s.sendSMS(ctx, session.UserInfo.Phone, body); err != nil {
			s.logger.WithError(err).Warn("Decision SMS failed", nil)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (s *Service) sendEmail(ctx context.Context, subject, body string) error {
	_, err := s.email.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{s.cfg.Email.OpsEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send decision email: %w", err)
	}
	return nil
}

func (s *Service) sendSMS(ctx context.Context, phone, body string) error {
	_, err := s.sms.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to publish decision sms: %w", err)
	}
	return nil
}

func decisionMessage(session *models.IntakeSession) (subject, body string) {
	name := session.UserInfo.Name

	switch session.Decision.Status {
	case models.DecisionAccepts:
		return "Your claim evidence was accepted",
			fmt.Sprintf("Hi %s, the photo you submitted has been verified and your claim is moving forward.", name)
	case models.DecisionEvaluates:
		return "Your claim evidence is under review",
			fmt.Sprintf("Hi %s, the photo you submitted needs a manual review. We will get back to you shortly.", name)
	default:
		return "We need a few more details about your claim",
			fmt.Sprintf("Hi %s, we could not verify the photo you submitted. An agent will reach out to talk it through.", name)
	}
}
