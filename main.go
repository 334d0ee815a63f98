package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deemkeen/birdbridge/activitypub"
	"github.com/deemkeen/birdbridge/cache"
	"github.com/deemkeen/birdbridge/db"
	"github.com/deemkeen/birdbridge/metrics"
	"github.com/deemkeen/birdbridge/moderation"
	"github.com/deemkeen/birdbridge/twitter"
	"github.com/deemkeen/birdbridge/util"
	"github.com/deemkeen/birdbridge/web"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	logLevel := flag.String("log-level", "", "overrides logLevel from the config")
	flag.Parse()

	boot := util.NewLogger("info")
	conf, err := util.ReadConf(*configPath, boot)
	if err != nil {
		boot.WithError(err).Fatal("Failed to read configuration")
	}

	level := conf.Conf.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log := util.NewLogger(level)
	log.WithFields(logrus.Fields{
		"version": util.GetVersion(),
		"domain":  conf.Conf.SslDomain,
	}).Info("Starting birdbridge")

	if err := run(conf, log); err != nil {
		log.WithError(err).Fatal("birdbridge stopped")
	}
}

func run(conf *util.AppConfig, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, conf.Conf.DbPath, log)
	if err != nil {
		return err
	}
	defer database.Close()

	key, err := util.LoadOrCreateInstanceKey(conf.Conf.KeyPath)
	if err != nil {
		return fmt.Errorf("loading instance key: %w", err)
	}

	var m *metrics.BridgeMetrics
	if conf.Conf.Metrics {
		m = metrics.New()
	}

	var store cache.Store
	if conf.Conf.RedisUrl != "" {
		redisStore, err := cache.NewRedisStore(ctx, conf.Conf.RedisUrl, util.Name+":")
		if err != nil {
			return err
		}
		defer redisStore.Close()
		store = redisStore
		log.Info("Caching lookups in redis")
	} else {
		store = cache.NewMemoryStore(10000)
	}

	client := twitter.NewClient(twitter.Options{
		BaseURL:      conf.Conf.SourceApi.BaseUrl,
		BearerToken:  conf.Conf.SourceApi.BearerToken,
		SourceDomain: conf.Conf.SourceDomain,
		Timeout:      time.Duration(conf.Conf.SourceApi.TimeoutSeconds) * time.Second,
		Metrics:      m,
		Log:          log,
	})
	source := twitter.NewCachedSource(client, store, time.Duration(conf.Conf.CacheTtlMinutes)*time.Minute, m, log)

	mod := moderation.New(conf.Conf.Moderation)
	domainName := conf.Conf.SslDomain

	fetcher := activitypub.NewActorFetcher(database, key.Private, activitypub.InstanceActorURL(domainName)+"#main-key", log)
	authorizer := activitypub.NewAuthorizer(domainName, fetcher, database, mod, source, log)
	dispatcher := activitypub.NewInboxDispatcher(authorizer, m, log)

	gin.SetMode(gin.ReleaseMode)
	router := web.NewRouter(ctx, web.Options{
		Domain:       domainName,
		SourceDomain: conf.Conf.SourceDomain,
		AdminEmail:   conf.Conf.AdminEmail,
		Accounts:     source,
		Posts:        source,
		Counter:      database,
		Moderation:   mod,
		Documents:    activitypub.NewDocumentBuilder(domainName, conf.Conf.SourceDomain, key.Public),
		Inbox:        dispatcher,
		RateLimit:    conf.Conf.RateLimit,
		Metrics:      m,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
