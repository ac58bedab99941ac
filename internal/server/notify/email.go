package notify

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/signoff/internal/server/config"
	"gopkg.in/gomail.v2"
)

// mailer is the part of *gomail.Dialer the sink uses.
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

var (
	newDialer = func(host string, port int, user, password string) mailer {
		return gomail.NewDialer(host, port, user, password)
	}
	checkSMTP = func(m mailer) error {
		d, ok := m.(*gomail.Dialer)
		if !ok {
			return nil
		}
		c, err := d.Dial()
		if err != nil {
			return err
		}
		return c.Close()
	}
)

type EmailSink struct {
	dialer mailer
	from   string
	dir    Directory
}

// NewEmailSink fails when the SMTP server cannot be reached.
func NewEmailSink(cfg *config.Config, dir Directory) (*EmailSink, error) {
	d := newDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	if err := checkSMTP(d); err != nil {
		return nil, fmt.Errorf("smtp %s:%d: %w", cfg.SMTPHost, cfg.SMTPPort, err)
	}
	return &EmailSink{dialer: d, from: cfg.MailFrom, dir: dir}, nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, e Event) error {
	if len(e.TargetUserIDs) == 0 {
		return nil
	}

	users, err := s.dir.Users(ctx, e.TargetUserIDs)
	if err != nil {
		return fmt.Errorf("resolve users: %w", err)
	}

	subject, body := render(e)

	var msgs []*gomail.Message
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		m := gomail.NewMessage()
		m.SetHeader("From", s.from)
		m.SetHeader("To", u.Email)
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", body)
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := s.dialer.DialAndSend(msgs...); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func render(e Event) (string, string) {
	switch e.Kind {
	case KindRequestCreated:
		return fmt.Sprintf("[signoff] Approval requested: %s", e.Title),
			fmt.Sprintf("Request #%d for package #%d is waiting for your sign-off.\n\nTitle: %s\n",
				e.RequestID, e.PackageID, e.Title)
	case KindRequestApproved:
		return fmt.Sprintf("[signoff] Approved: %s", e.Title),
			fmt.Sprintf("Request #%d for package #%d has been approved by every group.\n\nTitle: %s\n",
				e.RequestID, e.PackageID, e.Title)
	default:
		return fmt.Sprintf("[signoff] %s", e.Kind), fmt.Sprintf("Request #%d: %s\n", e.RequestID, e.Kind)
	}
}
