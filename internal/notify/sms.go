package notify

import (
	"context"
	"errors"
	"fmt"

	"cubenotary/internal/models"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is satisfied by the Twilio REST API service.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSSender delivers text messages through Twilio.
type SMSSender struct {
	api    messageCreator
	from   string
	logger *zerolog.Logger
}

func NewSMSSender(accountSID, authToken, from string, logger *zerolog.Logger) (*SMSSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("sms: account sid, auth token and from number are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newSMSSender(client.Api, from, logger), nil
}

func newSMSSender(api messageCreator, from string, logger *zerolog.Logger) *SMSSender {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sms").Logger()
	return &SMSSender{api: api, from: from, logger: &l}
}

func (s *SMSSender) Channel() models.Channel { return models.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if msg.Recipient == "" {
		return errors.New("sms: recipient is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.Recipient)
	params.SetFrom(s.from)
	params.SetBody(msg.Text)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("sms: send to %s: %w", msg.Recipient, err)
	}
	ev := s.logger.Debug().Str("booking_id", msg.BookingID).Str("kind", string(msg.Kind))
	if resp != nil && resp.Sid != nil {
		ev = ev.Str("sid", *resp.Sid)
	}
	ev.Msg("sms sent")
	return nil
}
