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

	"github.com/fyerfyer/advisor-rag/api"
	"github.com/fyerfyer/advisor-rag/api/handler"
	"github.com/fyerfyer/advisor-rag/api/middleware"
	"github.com/fyerfyer/advisor-rag/internal/services"
	"github.com/fyerfyer/advisor-rag/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Build the index and start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	a, err := newApp(configPath, appOptions{needIndex: true, needLLM: true, needDatabase: true})
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.logger
	middleware.SetLogger(log)
	if a.cfg.Server.Mode != "" {
		gin.SetMode(a.cfg.Server.Mode)
	}

	// 启动前必须有可用索引
	stats, err := a.buildIndex(ctx)
	if err != nil {
		return fmt.Errorf("initial index build failed: %w", err)
	}
	log.WithField("chunks", stats.Chunks).Info("Index ready")

	queue, stopWorker, err := setupQueue(a)
	if err != nil {
		return err
	}
	defer stopWorker()

	sessions := services.NewSessionManager(a.newConversation, a.archiver, log)
	r := api.SetupRouter(
		handler.NewSessionHandler(sessions),
		handler.NewIndexHandler(a.indexer, queue, sessions),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

// setupQueue 启用任务队列时创建队列并启动重建任务的工作者
func setupQueue(a *app) (taskqueue.Queue, func(), error) {
	if !a.cfg.Queue.Enable {
		return nil, func() {}, nil
	}

	qcfg := taskqueue.DefaultConfig()
	qcfg.RedisAddr = a.cfg.Queue.RedisAddr
	qcfg.RedisPassword = a.cfg.Queue.RedisPassword
	qcfg.RedisDB = a.cfg.Queue.RedisDB
	if a.cfg.Queue.Concurrency > 0 {
		qcfg.Concurrency = a.cfg.Queue.Concurrency
	}
	qcfg.Logger = a.logger

	queue, err := taskqueue.NewRedisQueue(qcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize task queue: %w", err)
	}

	worker := taskqueue.NewRedisWorker(queue, nil)
	worker.RegisterHandler(taskqueue.TaskIndexRebuild, taskqueue.NewIndexRebuildHandler(a.indexer, a.logger))
	if err := worker.Start(); err != nil {
		queue.Close()
		return nil, nil, fmt.Errorf("failed to start task worker: %w", err)
	}

	return queue, func() {
		worker.Stop()
		if err := queue.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close task queue")
		}
	}, nil
}
