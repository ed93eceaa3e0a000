package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user owns them.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsers(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = RoleStudent
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	usr.LastLogin = &now
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword sets a new password on the user identified by username or email.
func (svc *Service) ResetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// SaveUser creates `usr` or, when a user with the same username or email exists, overwrites it.
func (svc *Service) SaveUser(ctx context.Context, usr User) (User, error) {
	var saved User
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		existing, err := svc.repo.GetUser(ctx, GetFilter{Username: usr.Username}, tx)
		if errors.Cause(err) == ErrNotFound && usr.Email != "" {
			existing, err = svc.repo.GetUser(ctx, GetFilter{Email: usr.Email}, tx)
		}

		now := time.Now().UTC()
		usr.UpdatedAt = now
		switch {
		case err == nil:
			usr.ID = existing.ID
			usr.CreatedAt = existing.CreatedAt
			usr.LastLogin = existing.LastLogin
			saved, err = svc.repo.UpdateUser(ctx, usr, tx)
		case errors.Cause(err) == ErrNotFound:
			usr.CreatedAt = now
			saved, err = svc.repo.CreateUser(ctx, usr, tx)
		}
		return err
	})
	return saved, errors.Wrap(err, "saving user")
}

// UpsertStudentByLMSID creates or refreshes the student synced from an LMS.
// Synced students have no password until an admin sets one.
func (svc *Service) UpsertStudentByLMSID(ctx context.Context, lmsID, name, email string) (User, bool, error) {
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := svc.repo.GetUser(ctx, GetFilter{LMSID: lmsID})
	switch errors.Cause(err) {
	case nil:
		usr.Name = core.CleanString(name)
		if email != "" {
			usr.Email = email
		}
		usr.UpdatedAt = now
		usr, err = svc.repo.UpdateUser(ctx, usr)
		return usr, false, err
	case ErrNotFound:
		usr = User{
			Name:      core.CleanString(name),
			Email:     email,
			Role:      RoleStudent,
			IsActive:  true,
			LMSID:     lmsID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		usr, err = svc.repo.CreateUser(ctx, usr)
		return usr, err == nil, err
	default:
		return User{}, false, err
	}
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsers(ctx, ids)
}
