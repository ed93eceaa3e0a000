package main

import (
	"fmt"
	"os"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
	lmssvc "github.com/trezcool/kikundi/services/lms"
	logsvc "github.com/trezcool/kikundi/services/logger"
	"github.com/trezcool/kikundi/storage/database"
	sqlxrepos "github.com/trezcool/kikundi/storage/database/sqlx"
)

func main() {
	conf := core.MustConfig()
	logger := logsvc.NewLogger(os.Stderr, conf)

	// set up DB
	if err := database.CreateIfNotExist(conf.Database); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf.Database)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	lms, err := lmssvc.NewProvider(conf.LMS)
	if err != nil {
		logger.Fatal("setting up lms provider", err)
	}

	userRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		conf:      conf,
		logger:    logger,
		db:        db,
		usrSvc:    user.NewService(db, userRepo),
		courseSvc: course.NewService(db, sqlxrepos.NewCourseRepository(db), userRepo, conf.Policy),
		lms:       lms,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)

	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
