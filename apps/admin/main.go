package main

import (
	"context"
	"log"
	"os"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/account"
	emailsvc "github.com/cgpaboard/cgpaboard/services/email"
	logsvc "github.com/cgpaboard/cgpaboard/services/logger"
	"github.com/cgpaboard/cgpaboard/storage/cache/rediscache"
	"github.com/cgpaboard/cgpaboard/storage/database"
	"github.com/cgpaboard/cgpaboard/storage/database/sqlxrepos"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)

	// set up DB
	ctx := context.Background()
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(err)

	// the API caches the leaderboard: writes from here must invalidate it too
	var cache account.LeaderboardCache
	if conf.Redis.Addr != "" {
		client := rediscache.NewClient(conf.Redis)
		defer func() { _ = client.Close() }()
		cache = rediscache.NewLeaderboardCache(client, conf.Redis.TTL, appLogger)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, appLogger)
	}

	// start CLI
	cli := commandLine{
		db:     db.DB,
		accSvc: account.NewService(conf, sqlxrepos.NewAccountRepository(db), cache, mailSvc, appLogger),
	}
	err = cli.run(os.Args)
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait()
	}
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
