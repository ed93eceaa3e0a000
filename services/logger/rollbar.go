package logsvc

import (
	"io"
	"os"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/kikundi/core"
)

// Logger writes structured entries with zerolog and forwards them to Rollbar when a token is configured.
type Logger struct {
	zl      zerolog.Logger
	rollbar bool
	exit    func(code int)
}

var _ core.Logger = (*Logger)(nil)

// NewLogger logs to `out` (stdout when nil). Non-PROD environments get the pretty console output.
func NewLogger(out io.Writer, conf *core.Config) *Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(conf.LogLevel)
	if err != nil || conf.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	var zl zerolog.Logger
	if conf.Env == "DEV" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(out).With().Timestamp().Logger()
	}
	zl = zl.Level(level).With().Str("app", conf.AppName).Logger()

	enabled := conf.RollbarToken != "" && !conf.TestMode
	if enabled {
		rollbar.SetToken(conf.RollbarToken)
		rollbar.SetEnvironment(conf.Env)
		rollbar.SetServerHost(conf.Server.Host)
		rollbar.SetCodeVersion(conf.Build)
		rollbar.SetStackTracer(errors.StackTracer)
	}
	rollbar.SetEnabled(enabled)

	return &Logger{zl: zl, rollbar: enabled, exit: os.Exit}
}

// NewNopLogger discards every entry.
func NewNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop(), exit: func(int) {}}
}

// Close flushes pending Rollbar items.
func (l *Logger) Close() {
	if l.rollbar {
		rollbar.Close()
	}
}

// expected fmt: msg | error, map[string]interface{}, core.LogUser
func (l *Logger) log(evt *zerolog.Event, send func(...interface{}), msg string, args []interface{}) {
	var usr *core.LogUser
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)

	for _, arg := range args {
		switch a := arg.(type) {
		case core.LogUser:
			if usr == nil { // only set one user
				u := a
				usr = &u
			}
			continue
		case error:
			evt = evt.Err(a)
		case map[string]interface{}:
			evt = evt.Fields(a)
		default:
			evt = evt.Interface("extra", a)
		}
		rbArgs = append(rbArgs, arg)
	}

	if usr != nil {
		evt = evt.Dict("user", zerolog.Dict().Str("id", usr.ID).Str("username", usr.Username))
	}
	evt.Msg(msg)

	if l.rollbar {
		if usr != nil {
			rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
		} else {
			rollbar.ClearPerson()
		}
		send(rbArgs...)
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(l.zl.Debug(), rollbar.Debug, msg, args)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(l.zl.Info(), rollbar.Info, msg, args)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(l.zl.Warn(), rollbar.Warning, msg, args)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(l.zl.Error(), rollbar.Error, msg, args)
}

// Fatal reports the entry as critical, flushes Rollbar and exits.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	// WithLevel keeps zerolog from exiting before Rollbar is flushed
	l.log(l.zl.WithLevel(zerolog.FatalLevel), rollbar.Critical, msg, args)
	l.Close()
	l.exit(1)
}
