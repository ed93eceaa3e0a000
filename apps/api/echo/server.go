package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
	llmsvc "github.com/trezcool/kikundi/services/llm"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		DB         core.DB
		Validate   *validator.Validate
		Translator ut.Translator
		UserSvc    *user.Service
		CourseSvc  *course.Service
		Mail       core.EmailService
		LLM        *llmsvc.Service
		Cache      core.Cache
	}

	Server struct {
		deps     *Deps
		app      *echo.Echo
		shutdown chan os.Signal
	}

	HealthResponse struct {
		Status       string `json:"status"`
		Database     string `json:"database"`
		LLMProvider  string `json:"llm_provider"`
		LLMAvailable bool   `json:"llm_available"`
	}
)

// NewServer builds the API. `shutdown` receives a signal when a handler hits a core shutdown error.
func NewServer(shutdown chan os.Signal, deps *Deps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = conf.Debug
	s.app.Logger.SetLevel(log.OFF)
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(s.requestLogger())
	}
	// do not recover in DEBUG|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	if conf.Server.RateLimit > 0 && !conf.TestMode {
		store := middleware.NewRateLimiterMemoryStore(rate.Limit(conf.Server.RateLimit))
		s.app.Use(middleware.RateLimiter(store))
	}

	s.app.GET("/", home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := newJWTMiddleware(conf)

	registerUserAPI(v1, jwt, s.deps)
	registerCourseAPI(v1, jwt, newCourseApi(s.deps))
}

// requestLogger sends one structured entry per request to the app logger.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(ctx echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latency":   v.Latency.String(),
				"remote_ip": v.RemoteIP,
			}
			if v.RequestID != "" {
				fields["request_id"] = v.RequestID
			}
			s.deps.Logger.Info("request", fields)
			return nil
		},
	})
}

func (s *Server) signalShutdown() {
	if s.shutdown != nil {
		s.shutdown <- syscall.SIGTERM
	}
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	err := s.app.Start(s.deps.Conf.Server.Address())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Kikundi API!")
}

func (s *Server) health(ctx echo.Context) error {
	c, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", LLMProvider: s.deps.LLM.ProviderName()}
	var one int
	if err := s.deps.DB.GetContext(c, &one, "SELECT 1"); err != nil {
		s.deps.Logger.Error("health: database unreachable", err)
		resp.Status, resp.Database = "degraded", "unavailable"
	}
	resp.LLMAvailable = s.deps.LLM.Healthy(c)

	code := http.StatusOK
	if resp.Database != "ok" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, resp)
}
