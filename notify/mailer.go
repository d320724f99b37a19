/*
mailer.go - Outbound email transports

PURPOSE:
  Delivers rendered OutboundEmail messages. SendGridMailer talks to the
  SendGrid v3 mail API; ConsoleMailer logs the message and keeps a copy,
  which is what dev mode and tests use.

SEE ALSO:
  - render.go: Builds OutboundEmail from the engine's EmailRequest
  - dispatcher.go: Sends, and queues failures in the outbox
*/
package notify

import (
	"context"
	"net/http"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/logging"
)

// Mailer sends one message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg generic.OutboundEmail) error
}

// =============================================================================
// SENDGRID
// =============================================================================

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendGridMailer struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

var _ Mailer = (*SendGridMailer)(nil)

// NewSendGridMailer builds a mailer for the given API key and sender.
// An empty host means the public SendGrid API.
func NewSendGridMailer(key, appName, fromEmail, host string) *SendGridMailer {
	if host == "" {
		host = sendgridHost
	}
	prefix := ""
	if appName != "" {
		prefix = "[" + appName + "] "
	}
	return &SendGridMailer{
		key:        key,
		host:       host,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: prefix,
	}
}

func (m *SendGridMailer) prepare(msg generic.OutboundEmail) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return v3
}

func (m *SendGridMailer) Send(ctx context.Context, msg generic.OutboundEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return goerr.Wrap(err, "sendgrid request failed", goerr.V("email_id", msg.ID))
	}
	if res.StatusCode >= http.StatusBadRequest {
		return goerr.New("sendgrid rejected message",
			goerr.V("email_id", msg.ID),
			goerr.V("status", res.StatusCode),
			goerr.V("body", res.Body))
	}

	logging.From(ctx).Info("email sent", "email_id", msg.ID, "record_id", msg.RecordID, "status", res.StatusCode)
	return nil
}

// =============================================================================
// CONSOLE
// =============================================================================

// ConsoleMailer logs messages instead of sending them.
type ConsoleMailer struct {
	mu   sync.Mutex
	fail error
	sent []generic.OutboundEmail
}

var _ Mailer = (*ConsoleMailer)(nil)

func NewConsoleMailer() *ConsoleMailer {
	return &ConsoleMailer{}
}

func (c *ConsoleMailer) Send(ctx context.Context, msg generic.OutboundEmail) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, msg)
	logging.From(ctx).Info("email (console)",
		"to", msg.To,
		"subject", msg.Subject,
		"record_id", msg.RecordID,
		"body", msg.Text)
	return nil
}

// SentMessages returns a copy of everything sent so far.
func (c *ConsoleMailer) SentMessages() []generic.OutboundEmail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]generic.OutboundEmail(nil), c.sent...)
}

// SetFail makes every following Send return err. nil restores delivery.
func (c *ConsoleMailer) SetFail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}
