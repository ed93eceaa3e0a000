package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"os"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/kikundi/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type sendgridService struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return newSendgridService(sendgridHost, conf, logger)
}

func newSendgridService(host string, conf *core.Config, logger core.Logger) *sendgridService {
	from := fromAddress(conf)
	return &sendgridService{
		key:        conf.Email.SendgridAPIKey,
		host:       host,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			_ = svc.sendMessage(msg)
		}(msg)
	}
}

func (svc sendgridService) sendMessage(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
		return err
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	return svc.send(*msg)
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc sendgridService) send(msg core.EmailMessage) error {
	req := sendgrid.GetRequest(svc.key, sendgridEndpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
		svc.logger.Error("sending email", err, map[string]interface{}{"subject": msg.Subject})
		return err
	}
	return nil
}

// NewService picks Sendgrid when an API key is configured, the console otherwise.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Email.SendgridAPIKey != "" {
		return NewSendgridService(conf, logger)
	}
	return NewConsoleService(os.Stdout, conf, logger)
}
