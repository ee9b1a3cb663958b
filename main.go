package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/judgegodwins/chess-relay/api"
	"github.com/judgegodwins/chess-relay/directory"
	"github.com/judgegodwins/chess-relay/util"
	"github.com/judgegodwins/chess-relay/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const directoryBuffer = 1024

func main() {
	config, err := util.LoadConfig()

	if err != nil {
		log.Fatal(err)
	}

	logger, err := util.NewLogger(config)

	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store     directory.Store
		publisher *directory.Publisher
		opts      []ws.Option
	)

	// the publisher outlives the signal context so that rooms closed during
	// shutdown are still removed from the directory
	publisherCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()

	if config.DirectoryEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddress,
			Password: config.RedisPassword,
			DB:       0,
		})
		defer rdb.Close()

		// check redis connection status
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("cannot reach redis", zap.String("addr", config.RedisAddress), zap.Error(err))
		}

		store = directory.NewRedisStore(rdb, config.DirectoryTTL)
		publisher = directory.NewPublisher(store, logger.Named("directory"), directoryBuffer)
		opts = append(opts, ws.WithNotifier(publisher))

		go publisher.Run(publisherCtx)
	}

	manager := ws.NewManager(config, logger.Named("ws"), opts...)
	server := api.NewServer(config, manager, store, logger.Named("api"))

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// http.Server.Shutdown leaves hijacked websocket connections alone
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("closing websocket connections failed", zap.Error(err))
	}

	if publisher != nil {
		stopPublisher()
		<-publisher.Done()
	}
}
