package service

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"vocabcue/internal/logging"
	"vocabcue/internal/models"
)

// EmailSender is the part of the SES client the email service uses
type EmailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends consent receipts via Amazon SES
type EmailService struct {
	client    EmailSender
	fromEmail string
	fromName  string
	enabled   bool
	logger    *zap.Logger
}

// NewEmailService creates a new email service. An empty fromEmail yields a disabled service.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName string, logger *zap.Logger) (*EmailService, error) {
	logger = logging.OrNop(logger)

	if fromEmail == "" {
		logger.Info("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{logger: logger}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("Email service enabled", zap.String("from", fromEmail), zap.String("region", awsRegion))
	return NewEmailServiceWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName, logger), nil
}

// NewEmailServiceWithClient creates an enabled service over an existing client
func NewEmailServiceWithClient(client EmailSender, fromEmail, fromName string, logger *zap.Logger) *EmailService {
	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
		logger:    logging.OrNop(logger),
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

var receiptHTML = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 5px; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="content">
			<p>Hi {{.Name}},</p>
			<p>Thank you for taking part in our vocabulary study. This email confirms that you gave consent on {{.Date}}.</p>
			<p>Your participant reference is <strong>{{.UserID}}</strong>. Quote it if you want your responses withdrawn.</p>
		</div>
		<div class="footer">
			<p>This is an automated email. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`))

// SendConsentReceipt confirms a consent to the participant
func (s *EmailService) SendConsentReceipt(ctx context.Context, consent models.Consent) error {
	if !s.enabled {
		s.logger.Debug("Skipping consent receipt (service disabled)", zap.String("user_id", consent.UserID))
		return nil
	}

	date := consent.ConsentedAt.UTC().Format(time.RFC1123)
	var html strings.Builder
	err := receiptHTML.Execute(&html, struct {
		Name   string
		Date   string
		UserID string
	}{consent.Name, date, consent.UserID})
	if err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}

	text := fmt.Sprintf(`Hi %s,

Thank you for taking part in our vocabulary study. This email confirms that you gave consent on %s.

Your participant reference is %s. Quote it if you want your responses withdrawn.

---
This is an automated email. Please do not reply.
`, consent.Name, date, consent.UserID)

	return s.sendEmail(ctx, consent.Email, "Your study consent receipt", html.String(), text)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := []zap.Field{zap.String("to", toEmail), zap.String("subject", subject)}
	if result != nil && result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.logger.Info("Email sent", fields...)
	return nil
}
