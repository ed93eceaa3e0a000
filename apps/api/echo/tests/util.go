package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/kikundi/apps/api/echo"
	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
	cachesvc "github.com/trezcool/kikundi/services/cache"
	emailsvc "github.com/trezcool/kikundi/services/email"
	llmsvc "github.com/trezcool/kikundi/services/llm"
	logsvc "github.com/trezcool/kikundi/services/logger"
	sqlxrepos "github.com/trezcool/kikundi/storage/database/sqlx"
	testutil "github.com/trezcool/kikundi/tests"
)

var (
	conf = &core.Config{
		Env:       "TEST",
		AppName:   "Kikundi",
		TestMode:  true,
		SecretKey: "test-secret",

		FrontendBaseURL:      "http://kikundi.test",
		PasswordResetTimeout: 72 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Redis:  core.RedisConfig{ReportTTL: time.Minute},
		Policy: feedback.DefaultPolicy(),
	}

	strongPwd = "Kik!und1-2024"

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type env struct {
	app        *echoapi.Server
	usrRepo    user.Repository
	courseRepo course.Repository
	mail       *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) env {
	t.Helper()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)

	// set up services
	logger := logsvc.NewNopLogger()
	validate, translator := core.NewValidation(user.RegisterValidators, course.RegisterValidators)
	mail := emailsvc.NewConsoleServiceMock(conf, logger)

	// set up server
	app := echoapi.NewServer(nil, &echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewService(db, usrRepo),
		CourseSvc:  course.NewService(db, courseRepo, usrRepo, conf.Policy),
		Mail:       mail,
		LLM:        llmsvc.NewService(llmsvc.MockProvider{}, logger),
		Cache:      cachesvc.NewMemoryCache(),
	})
	return env{app: app, usrRepo: usrRepo, courseRepo: courseRepo, mail: mail}
}

// do runs a request against the app.
func (e env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type fieldsErr struct {
	Error map[string]string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, echoapi.GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, e env, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// userIDs extracts the IDs of a users list response, in order.
func userIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var users []user.User
	decode(t, rec, &users)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
