package emailsvc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
	logsvc "github.com/trezcool/kikundi/services/logger"
)

var testConf = &core.Config{
	AppName: "Kikundi",
	Email:   core.EmailConfig{DefaultFromEmail: "noreply@kikundi.test", SendgridAPIKey: "SG.test"},
}

type digestData struct {
	InstructorName  string
	CourseName      string
	Alerts          []feedback.GroupAlert
	Recommendations []feedback.Recommendation
	GeneratedAt     time.Time
}

func digestMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@kikundi.test"}},
		Subject:      "Daily digest",
		TemplateName: "digest",
		TemplateData: digestData{
			InstructorName: "Ada",
			CourseName:     "Web Development",
			Alerts: []feedback.GroupAlert{{
				GroupName:    "Team A",
				Severity:     feedback.SeverityCritical,
				Reason:       "Alice did 80% of the work",
				Intervention: "Meet the group",
			}},
			GeneratedAt: time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestConsoleService(t *testing.T) {
	var out bytes.Buffer
	svc := newConsoleService(&out, testConf, logsvc.NewNopLogger())

	require.NoError(t, svc.sendMessage(digestMessage()))
	body := out.String()
	assert.Contains(t, body, "Subject: [Kikundi] Daily digest")
	assert.Contains(t, body, `To: "Ada" <ada@kikundi.test>`)
	assert.Contains(t, body, "[critical] Team A: Alice did 80% of the work")
	assert.Contains(t, body, "text/html")
}

func TestConsoleServiceMock(t *testing.T) {
	mock := NewConsoleServiceMock(testConf, logsvc.NewNopLogger())
	mock.SendMessages(
		digestMessage(),
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hi"},
		&core.EmailMessage{To: []mail.Address{{Address: "bob@kikundi.test"}}, Subject: "plain", BodyStr: "hi"},
	)

	sent := mock.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Daily digest", sent[0].Subject)
	assert.Contains(t, sent[0].HTMLContent, "Team A")
	assert.Equal(t, "hi", sent[1].TextContent)

	mock.Reset()
	assert.Empty(t, mock.SentMessages())
}

func TestConsoleServiceMock_unknownTemplate(t *testing.T) {
	mock := NewConsoleServiceMock(testConf, logsvc.NewNopLogger())
	mock.SendMessages(&core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, TemplateName: "nope"})
	assert.Empty(t, mock.SentMessages())
}

func TestSendgridService(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendgridEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc := newSendgridService(srv.URL, testConf, logsvc.NewNopLogger())
	require.NoError(t, svc.sendMessage(digestMessage()))

	require.NotNil(t, payload)
	from := payload["from"].(map[string]interface{})
	assert.Equal(t, "noreply@kikundi.test", from["email"])
	contents := payload["content"].([]interface{})
	assert.Len(t, contents, 2)
}

func TestSendgridService_error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	svc := newSendgridService(srv.URL, testConf, logsvc.NewNopLogger())
	err := svc.sendMessage(&core.EmailMessage{To: []mail.Address{{Address: "a@b.c"}}, BodyStr: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
