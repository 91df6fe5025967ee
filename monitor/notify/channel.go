package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/event"
)

// Message is one notification ready for delivery.
type Message struct {
	SubscriberID string
	Recipient    string
	Subject      string
	Body         string
	Event        *event.Event
}

// Receipt is the channel's acknowledgement of a send.
type Receipt struct {
	ProviderMessageID string
}

// Channel delivers a message to one subscriber over one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// InAppChannel records notifications for in-app consumption. The delivery
// log row itself is the in-app inbox entry, so sending is a no-op beyond
// logging.
type InAppChannel struct {
	log *zap.SugaredLogger
}

// NewInAppChannel creates the in-app channel.
func NewInAppChannel(log *zap.SugaredLogger) *InAppChannel {
	return &InAppChannel{log: log}
}

func (c *InAppChannel) Name() string { return ChannelInApp }

func (c *InAppChannel) Send(_ context.Context, msg Message) (Receipt, error) {
	c.log.Debugw("In-app notification recorded",
		"subscriber_id", msg.SubscriberID,
		"subject", msg.Subject)
	return Receipt{}, nil
}

// EmailChannel delivers over SendGrid.
type EmailChannel struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
	log       *zap.SugaredLogger
}

// NewEmailChannel creates a SendGrid-backed email channel.
func NewEmailChannel(apiKey, fromName, fromEmail string, log *zap.SugaredLogger) *EmailChannel {
	return &EmailChannel{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
		log:       log,
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.Recipient == "" {
		return Receipt{}, errors.NewValidationError("email message has no recipient")
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail("", msg.Recipient)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, "")

	resp, err := c.client.SendWithContext(ctx, m)
	if err != nil {
		return Receipt{}, errors.WrapCollaborator(err, "sendgrid")
	}
	if resp.StatusCode >= 400 {
		return Receipt{}, errors.WrapCollaborator(
			errors.Newf("sendgrid returned status %d", resp.StatusCode), "sendgrid")
	}

	messageID := resp.Headers["X-Message-Id"]
	var providerID string
	if len(messageID) > 0 {
		providerID = messageID[0]
	}

	c.log.Infow("Email sent",
		"subscriber_id", msg.SubscriberID,
		"status", resp.StatusCode,
		"provider_message_id", providerID)

	return Receipt{ProviderMessageID: providerID}, nil
}

// NoopChannel stands in when a channel is not configured. It succeeds
// without delivering so runs in unconfigured environments still complete.
type NoopChannel struct {
	name string
}

// NewNoopChannel creates a no-op channel under the given name.
func NewNoopChannel(name string) *NoopChannel {
	return &NoopChannel{name: name}
}

func (c *NoopChannel) Name() string { return c.name }

func (c *NoopChannel) Send(_ context.Context, msg Message) (Receipt, error) {
	return Receipt{ProviderMessageID: fmt.Sprintf("noop-%s", msg.SubscriberID)}, nil
}
