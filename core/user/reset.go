package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
)

type (
	// PasswordReset mails reset links and applies the new passwords.
	PasswordReset struct {
		users   *Service
		tokens  *ResetTokens
		mail    core.EmailService
		appName string
		baseURL string
	}

	passwordResetData struct {
		Name     string
		AppName  string
		ResetURL string
		Validity string
	}
)

func NewPasswordReset(conf *core.Config, users *Service, mailer core.EmailService) *PasswordReset {
	return &PasswordReset{
		users:   users,
		tokens:  NewResetTokens(conf.SecretKey, conf.PasswordResetTimeout),
		mail:    mailer,
		appName: conf.AppName,
		baseURL: strings.TrimRight(conf.FrontendBaseURL, "/"),
	}
}

// Request emails a reset link to the active user owning `email`.
// Unknown or inactive accounts are ignored so callers cannot probe for emails.
func (pr *PasswordReset) Request(ctx context.Context, email string) error {
	usr, err := pr.users.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !usr.IsActive || len(usr.PasswordHash) == 0 {
		return nil
	}

	pr.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: passwordResetData{
			Name:     usr.Name,
			AppName:  pr.appName,
			ResetURL: pr.baseURL + "/password-reset/" + EncodeUID(usr) + "/" + pr.tokens.Make(usr),
			Validity: validityText(pr.tokens.timeout),
		},
	})
	return nil
}

// Confirm sets the new password once the token checks out.
func (pr *PasswordReset) Confirm(ctx context.Context, data ResetUserPassword) error {
	id, err := DecodeUID(data.UID)
	if err != nil {
		return core.NewFieldError("token", err.Error())
	}
	usr, err := pr.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.NewFieldError("token", ErrInvalidToken.Error())
		}
		return err
	}
	if err := pr.tokens.Verify(usr, data.Token); err != nil || !usr.IsActive {
		if err == nil {
			err = ErrInvalidToken
		}
		return core.NewFieldError("token", err.Error())
	}
	if msg := PasswordProblem(data.Password, usr.Name, usr.Username, usr.Email); msg != "" {
		return core.NewFieldError("password", msg)
	}

	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = pr.users.repo.UpdateUser(ctx, usr)
	return err
}

func validityText(d time.Duration) string {
	if days := int(d / (24 * time.Hour)); days > 1 {
		return fmt.Sprintf("%d days", days)
	}
	return fmt.Sprintf("%d hours", int(d/time.Hour))
}
