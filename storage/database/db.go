package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // "postgres" driver
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // "sqlite" driver

	"github.com/trezcool/kikundi/core"
	appfs "github.com/trezcool/kikundi/fs"
)

const migrationsDir = "migrations"

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func dsn(dbName string, admin bool, conf core.DatabaseConfig) string {
	if conf.IsSQLite() {
		return conf.Path
	}

	user := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		user = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}

	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf core.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Engine, dsn(dbName, admin, conf))
	if err != nil {
		return nil, err
	}
	if conf.IsSQLite() {
		// a single connection keeps ":memory:" databases alive and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "enabling foreign keys")
		}
	}
	return db, nil
}

// Open connects to the application database and waits for it to be ready.
func Open(conf core.DatabaseConfig) (*sqlx.DB, error) {
	db, err := open(conf.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var found bool
	err := db.Get(&found, db.Rebind(query), name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sqlx.DB, conf core.DatabaseConfig) error {
	if conf.User == "" {
		return nil
	}
	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = ?", conf.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf("CREATE USER %q CREATEDB ENCRYPTED PASSWORD '%s'", conf.User, conf.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf core.DatabaseConfig) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = ?", conf.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %q", conf.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the postgres app user & database. SQLite files are created on open.
func CreateIfNotExist(conf core.DatabaseConfig) error {
	if conf.IsSQLite() {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

// Dialect maps the configured engine to its goose dialect.
func Dialect(engine string) string {
	if engine == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

// RunMigrations runs a goose command ("up", "down", "status"...) against the embedded migrations.
func RunMigrations(db *sql.DB, engine, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(Dialect(engine)); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return goose.Run(command, db, migrationsDir, args...)
}

func Migrate(db *sqlx.DB, engine string) error {
	if err := RunMigrations(db.DB, engine, "up"); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
