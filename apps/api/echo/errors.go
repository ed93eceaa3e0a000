package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errMissingToken         = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateFieldErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch errors.Cause(err) {
			case user.ErrNotFound, course.ErrCourseNotFound, course.ErrGroupNotFound, course.ErrMilestoneNotFound:
				code = http.StatusNotFound
				message = errors.Cause(err).Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr core.LogUser
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr = core.LogUser{ID: claims.Subject, Username: claims.Username, Email: claims.Email}
				}
				logger.Error(msg, errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), usr)

				// shutting down...
				if core.IsShutdown(err) && signalShutdown != nil {
					signalShutdown()
				}
			}
		}

		if m, ok := message.(string); ok {
			if ctx.Echo().Debug && code == http.StatusInternalServerError {
				m = err.Error()
			}
			message = echo.Map{"error": m}
		} else {
			message = echo.Map{"error": message}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				logger.Error("sending error response", err)
			}
		}
	}
}
