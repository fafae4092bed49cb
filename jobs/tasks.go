package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeMediaSweep is the task type for the orphaned-blob sweep.
	TaskTypeMediaSweep = "media:sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewMediaSweepTask constructs the sweep task; the payload is empty.
func NewMediaSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeMediaSweep, nil)
}

// SMTPConfig carries the delivery endpoint for outgoing mail.
type SMTPConfig struct {
	Host string
	Port int
	From string
}

// Mailer delivers queued emails over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

// NewMailer constructs a Mailer.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// HandleSendEmail processes TaskTypeSendEmail tasks. A malformed payload is
// dropped; delivery errors are retried by asynq.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}

	msg := []byte("From: " + m.cfg.From + "\r\n" +
		"To: " + payload.To + "\r\n" +
		"Subject: " + payload.Subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		payload.Body + "\r\n")

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := smtp.SendMail(addr, nil, m.cfg.From, []string{payload.To}, msg); err != nil {
		return fmt.Errorf("jobs: send mail to %s: %w", payload.To, err)
	}
	if m.logger != nil {
		m.logger.Info("mail sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	}
	return nil
}

// sweepGrace is how long an unreferenced blob must sit on disk before the
// sweep may remove it. The pipeline writes the blob before the post row is
// inserted, so a file can be momentarily unreferenced while its upload is
// still in flight; deleting it then would lose the media for good.
const sweepGrace = time.Hour

// MediaIndex lists the storage names currently referenced by post rows.
type MediaIndex interface {
	ListMediaNames(ctx context.Context) ([]string, error)
}

// MediaStore is the slice of the blob store the sweep needs.
type MediaStore interface {
	List() ([]string, error)
	ModTime(name string) (time.Time, error)
	Remove(name string) error
}

// MediaSweeper unlinks stored blobs that no post references and that are
// older than the grace window.
type MediaSweeper struct {
	index  MediaIndex
	store  MediaStore
	logger *slog.Logger
}

// NewMediaSweeper constructs a MediaSweeper.
func NewMediaSweeper(index MediaIndex, store MediaStore, logger *slog.Logger) *MediaSweeper {
	return &MediaSweeper{index: index, store: store, logger: logger}
}

// HandleMediaSweep processes TaskTypeMediaSweep tasks.
func (s *MediaSweeper) HandleMediaSweep(ctx context.Context, _ *asynq.Task) error {
	referenced, err := s.index.ListMediaNames(ctx)
	if err != nil {
		return fmt.Errorf("jobs: list referenced media: %w", err)
	}
	keep := make(map[string]struct{}, len(referenced))
	for _, name := range referenced {
		keep[name] = struct{}{}
	}

	onDisk, err := s.store.List()
	if err != nil {
		return fmt.Errorf("jobs: list stored media: %w", err)
	}

	cutoff := time.Now().Add(-sweepGrace)
	removed := 0
	for _, name := range onDisk {
		if _, ok := keep[name]; ok {
			continue
		}
		mt, err := s.store.ModTime(name)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("sweep stat", slog.String("name", name), slog.Any("error", err))
			}
			continue
		}
		// Young files may belong to an upload whose post row has not landed
		// yet; leave them for a later run.
		if mt.After(cutoff) {
			continue
		}
		if err := s.store.Remove(name); err != nil {
			if s.logger != nil {
				s.logger.Warn("sweep remove", slog.String("name", name), slog.Any("error", err))
			}
			continue
		}
		removed++
	}
	if s.logger != nil {
		s.logger.Info("media sweep done", slog.Int("removed", removed), slog.Int("kept", len(keep)))
	}
	return nil
}
