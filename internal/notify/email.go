package notify

import (
	"context"
	"errors"
	"fmt"

	"cubenotary/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// mailDialer is the part of gomail.Dialer the sender needs.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// EmailSender delivers messages over SMTP.
type EmailSender struct {
	dialer   mailDialer
	from     string
	fromName string
	logger   *zerolog.Logger
}

func NewEmailSender(cfg EmailConfig, logger *zerolog.Logger) (*EmailSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("email: smtp host and from address are required")
	}
	return newEmailSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.FromName, logger), nil
}

func newEmailSender(d mailDialer, from, fromName string, logger *zerolog.Logger) *EmailSender {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "email").Logger()
	return &EmailSender{dialer: d, from: from, fromName: fromName, logger: &l}
}

func (s *EmailSender) Channel() models.Channel { return models.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if msg.Recipient == "" {
		return errors.New("email: recipient is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("email: send to %s: %w", msg.Recipient, err)
	}
	s.logger.Debug().Str("booking_id", msg.BookingID).Str("kind", string(msg.Kind)).Msg("email sent")
	return nil
}
