package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
)

// ErrNotificationFailed is returned when a job email could not be delivered.
var ErrNotificationFailed = errors.New("notification failed")

// NotificationContent holds the subject and body lines of job emails.
type NotificationContent struct {
	CompleteSubject string
	CompleteBody    string
	FailedSubject   string
	FailedBody      string // May contain one %s for the job id.
}

// DefaultNotificationContent returns the stock texts for job emails.
func DefaultNotificationContent() NotificationContent {
	return NotificationContent{
		CompleteSubject: "Cyano job complete",
		CompleteBody:    "Cyano job is complete",
		FailedSubject:   "Cyano job failed",
		FailedBody:      "Cyano job %s could not be completed.",
	}
}

// NotificationServiceOptions groups dependencies for NotificationService.
type NotificationServiceOptions struct {
	Mailer  core.Mailer // Required
	Content NotificationContent
	Logger  *slog.Logger
}

// NotificationService emails job owners when their batch job finishes.
type NotificationService struct {
	mailer  core.Mailer
	content NotificationContent
	logger  *slog.Logger
}

var _ core.JobNotifier = (*NotificationService)(nil)

// NewNotificationService constructs a NotificationService.
func NewNotificationService(opts NotificationServiceOptions) (*NotificationService, error) {
	if opts.Mailer == nil {
		return nil, errors.New("mailer is required")
	}
	content := opts.Content
	def := DefaultNotificationContent()
	if content.CompleteSubject == "" {
		content.CompleteSubject = def.CompleteSubject
	}
	if content.CompleteBody == "" {
		content.CompleteBody = def.CompleteBody
	}
	if content.FailedSubject == "" {
		content.FailedSubject = def.FailedSubject
	}
	if content.FailedBody == "" {
		content.FailedBody = def.FailedBody
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		mailer:  opts.Mailer,
		content: content,
		logger:  logger.With("component", "notification_service"),
	}, nil
}

// MustNewNotificationService constructs a NotificationService and panics on error.
func MustNewNotificationService(opts NotificationServiceOptions) *NotificationService {
	svc, err := NewNotificationService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create NotificationService: %v", err))
	}
	return svc
}

// NotifyComplete sends the completion email with the result CSV attached.
func (s *NotificationService) NotifyComplete(ctx context.Context, p core.NotifyParams) error {
	if p.Artifact == nil || p.Artifact.Path == "" {
		return fmt.Errorf("%w: job %s has no artifact", ErrNotificationFailed, p.JobID)
	}
	return s.send(ctx, p, &model.Email{
		To:          p.Email,
		Subject:     s.content.CompleteSubject,
		Body:        s.content.CompleteBody,
		Attachments: []string{p.Artifact.Path},
	})
}

// NotifyFailed tells the owner the job could not be completed. Nothing is attached.
func (s *NotificationService) NotifyFailed(ctx context.Context, p core.NotifyParams) error {
	body := s.content.FailedBody
	if strings.Contains(body, "%s") {
		body = fmt.Sprintf(body, p.JobID)
	}
	return s.send(ctx, p, &model.Email{
		To:      p.Email,
		Subject: s.content.FailedSubject,
		Body:    body,
	})
}

func (s *NotificationService) send(ctx context.Context, p core.NotifyParams, msg *model.Email) error {
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("%w: job %s owner has no email address", ErrNotificationFailed, p.JobID)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "job email failed", "job_id", p.JobID, "subject", msg.Subject, "error", err)
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	s.logger.InfoContext(ctx, "job email sent", "job_id", p.JobID, "subject", msg.Subject)
	return nil
}
