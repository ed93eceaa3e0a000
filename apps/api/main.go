package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/kikundi/apps/api/echo"
	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
	cachesvc "github.com/trezcool/kikundi/services/cache"
	emailsvc "github.com/trezcool/kikundi/services/email"
	llmsvc "github.com/trezcool/kikundi/services/llm"
	lmssvc "github.com/trezcool/kikundi/services/lms"
	logsvc "github.com/trezcool/kikundi/services/logger"
	"github.com/trezcool/kikundi/services/scheduler"
	"github.com/trezcool/kikundi/storage/database"
	sqlxrepos "github.com/trezcool/kikundi/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.MustConfig()
	logger := logsvc.NewLogger(os.Stdout, conf)
	defer logger.Close()

	db, err := setUpDB(conf.Database)
	if err != nil {
		logger.Fatal("setting up database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	ctx := context.Background()
	userRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	usrSvc := user.NewService(db, userRepo)
	courseSvc := course.NewService(db, courseRepo, userRepo, conf.Policy)
	mailSvc := emailsvc.NewService(conf, logger)
	llm := llmsvc.New(ctx, conf.LLM, logger)
	cache := cachesvc.New(ctx, conf.Redis, logger)
	validate, translator := core.NewValidation(user.RegisterValidators, course.RegisterValidators)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build),
		map[string]interface{}{"env": conf.Env, "llm": llm.ProviderName(), "db": conf.Database.Engine})
	defer logger.Info("Application stopped")

	sched, err := setUpScheduler(conf, logger, usrSvc, courseSvc, mailSvc)
	if err != nil {
		logger.Fatal("setting up scheduler", err)
	}
	sched.Start()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress(), http.DefaultServeMux); err != nil {
			logger.Error("debug server closed", err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(shutdown, &echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		CourseSvc:  courseSvc,
		Mail:       mailSvc,
		LLM:        llm,
		Cache:      cache,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening", map[string]interface{}{"addr": conf.Server.Address()})
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Fatal("server error", err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests and jobs a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := sched.Stop(ctx); err != nil {
			logger.Error("could not stop scheduler gracefully", err)
		}
		if err := server.Stop(ctx); err != nil {
			logger.Error("could not stop server gracefully", err)
			if err := server.Close(); err != nil {
				logger.Error("could not force stop server", err)
			}
		}
	}
}

func setUpDB(conf core.DatabaseConfig) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, conf.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// setUpScheduler registers the digest job and, when an LMS is configured, the sync job.
func setUpScheduler(
	conf *core.Config,
	logger core.Logger,
	usrSvc *user.Service,
	courseSvc *course.Service,
	mailSvc core.EmailService,
) (*scheduler.Scheduler, error) {
	sched := scheduler.New(logger)
	if !conf.Jobs.Enabled {
		return sched, nil
	}

	if err := sched.Add(conf.Jobs.DigestSpec, scheduler.NewDigestJob(courseSvc, usrSvc, mailSvc, logger)); err != nil {
		return nil, err
	}

	provider, err := lmssvc.NewProvider(conf.LMS)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		syncer := lmssvc.NewSyncer(provider, usrSvc, courseSvc, logger)
		if err := sched.Add(conf.LMS.SyncSpec, scheduler.NewSyncJob(syncer, conf.LMS.Instructor)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
