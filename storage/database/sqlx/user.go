package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/user"
)

const userColumns = "id, name, username, email, role, is_active, password_hash, lms_id, created_at, updated_at, last_login"

var userOrderings = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"role":       "role",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	Role         string      `db:"role"`
	IsActive     bool        `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	LMSID        null.String `db:"lms_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		LMSID:        nullString(usr.LMSID),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    nullTime(usr.LastLogin),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Role:         row.Role,
		IsActive:     row.IsActive,
		LMSID:        row.LMSID.String,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    timePtr(row.LastLogin),
	}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	excluded := make([]string, 0, len(excludedUsers)+1)
	excluded = append(excluded, "") // keeps NOT IN () valid
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	check := func(column, value string, errExists error) error {
		if value == "" {
			return nil
		}
		q, args, err := sqlx.In("SELECT COUNT(*) FROM users WHERE "+column+" = ? AND id NOT IN (?)", value, excluded)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		var count int
		if err := sqlx.GetContext(ctx, exe, &count, exe.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if count > 0 {
			return errExists
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	usr.ID = newID()
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :username, :email, :role, :is_active, :password_hash, :lms_id, :created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, exe, q, repo.toRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := repo.getExec(exec)

	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			where = append(where, "(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
			args = append(args, val, val, val)
		}
		if len(filter.Roles) > 0 {
			where = append(where, "role IN (?)")
			args = append(args, filter.Roles)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += core.OrderByClause(ordering, userOrderings, "created_at DESC")

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	var rows []userRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)

	var (
		cond string
		args []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "id = ?", []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = "username = ?", []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = "email = ?", []interface{}{filter.Email}
	case filter.UsernameOrEmail != "":
		cond, args = "(username = ? OR email = ?)", []interface{}{filter.UsernameOrEmail, filter.UsernameOrEmail}
	case filter.LMSID != "":
		cond, args = "lms_id = ?", []interface{}{filter.LMSID}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := exe.Rebind("SELECT " + userColumns + " FROM users WHERE " + cond + " LIMIT 1")
	if err := exe.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	q := `UPDATE users SET name = :name, username = :username, email = :email, role = :role, is_active = :is_active,
		password_hash = :password_hash, lms_id = :lms_id, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, exe, q, repo.toRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
}

func (repo userRepository) DeleteUsers(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	exe := repo.getExec(exec)
	q, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err := exe.ExecContext(ctx, exe.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
