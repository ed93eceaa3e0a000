package emailsvc

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
)

// consoleService writes messages to `out` instead of sending them. Used in DEV.
type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	out              io.Writer
	logger           core.Logger
	mu               sync.Mutex
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(out io.Writer, conf *core.Config, logger core.Logger) core.EmailService {
	return newConsoleService(out, conf, logger)
}

func newConsoleService(out io.Writer, conf *core.Config, logger core.Logger) *consoleService {
	return &consoleService{
		defaultFromEmail: fromAddress(conf),
		subjPrefix:       "[" + conf.AppName + "] ",
		out:              out,
		logger:           logger,
	}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go func(msg *core.EmailMessage) {
			_ = svc.sendMessage(msg)
		}(msg)
	}
}

func (svc *consoleService) sendMessage(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		svc.logger.Error("rendering email", errors.Wrap(err, "rendering email"))
		return err
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	body, err := svc.build(*msg)
	if err != nil {
		svc.logger.Error("building email", err)
		return err
	}
	if svc.out != nil {
		svc.mu.Lock()
		_, _ = io.WriteString(svc.out, body)
		svc.mu.Unlock()
	}
	return nil
}

func (svc *consoleService) build(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err = altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

func fromAddress(conf *core.Config) mail.Address {
	if addr, err := mail.ParseAddress(conf.Email.DefaultFromEmail); err == nil {
		if addr.Name == "" {
			addr.Name = conf.AppName
		}
		return *addr
	}
	return mail.Address{Name: conf.AppName, Address: conf.Email.DefaultFromEmail}
}

// ConsoleServiceMock renders & records messages synchronously, without output.
type ConsoleServiceMock struct {
	svc  *consoleService
	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*ConsoleServiceMock)(nil)

func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleServiceMock {
	return &ConsoleServiceMock{svc: newConsoleService(nil, conf, logger)}
}

func (m *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		if err := m.svc.sendMessage(msg); err == nil && msg.HasRecipients() && msg.HasContent() {
			m.mu.Lock()
			m.sent = append(m.sent, *msg)
			m.mu.Unlock()
		}
	}
}

// SentMessages returns a copy of the delivered messages.
func (m *ConsoleServiceMock) SentMessages() []core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.EmailMessage(nil), m.sent...)
}

func (m *ConsoleServiceMock) Reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}
