package notifications

import (
	"context"
	"edupath_go/models"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// ErrNoAddress is returned when the user has no address on the channel.
var ErrNoAddress = errors.New("recipient has no address for channel")

// LineSender pushes notifications to a user's LINE account.
type LineSender struct {
	bot *linebot.Client
}

// NewLineSender returns nil when the channel credentials are missing.
func NewLineSender(channelSecret, channelToken string) (*LineSender, error) {
	if channelSecret == "" || channelToken == "" {
		logrus.Warn("LINE Messaging API disabled: missing LINE_CHANNEL_SECRET or LINE_CHANNEL_ACCESS_TOKEN")
		return nil, nil
	}
	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, fmt.Errorf("create LINE bot client: %w", err)
	}
	return &LineSender{bot: bot}, nil
}

// Bot exposes the client for the webhook handler.
func (s *LineSender) Bot() *linebot.Client {
	return s.bot
}

func (s *LineSender) Channel() string { return ChannelLine }

func (s *LineSender) Send(ctx context.Context, user models.User, p Payload) error {
	if user.LineID == "" {
		return ErrNoAddress
	}
	return s.Push(ctx, user.LineID, p.Title+"\n"+p.Message)
}

// Push sends a text message to a LINE user or group id.
func (s *LineSender) Push(ctx context.Context, to, text string) error {
	if _, err := s.bot.PushMessage(to, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %w", err)
	}
	return nil
}

// EmailSender delivers notifications through SendGrid.
type EmailSender struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

const sendgridEndpoint = "/v3/mail/send"

// NewEmailSender returns nil when no API key is configured.
func NewEmailSender(key, appName, fromEmail string) *EmailSender {
	if key == "" {
		logrus.Warn("email notifications disabled: missing SENDGRID_API_KEY")
		return nil
	}
	return &EmailSender{
		key:        key,
		host:       "https://api.sendgrid.com",
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
	}
}

func (s *EmailSender) Channel() string { return ChannelEmail }

func (s *EmailSender) Send(_ context.Context, user models.User, p Payload) error {
	if user.Email == "" {
		return ErrNoAddress
	}
	m := sgmail.NewSingleEmail(
		s.from,
		s.subjPrefix+p.Title,
		sgmail.NewEmail(user.FullName, user.Email),
		p.Message,
		"<p>"+html.EscapeString(p.Message)+"</p>",
	)
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
