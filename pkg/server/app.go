package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EdgeScan/internal/usecase"
	xhttp "EdgeScan/pkg/http"
	pkgkafka "EdgeScan/pkg/kafka"
	applogger "EdgeScan/pkg/logger"
	"EdgeScan/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	logger     *applogger.Logger
	httpServer *xhttp.Server
	tasks      *usecase.TaskManager
	consumer   *pkgkafka.Consumer
	intake     pkgkafka.MessageHandler
	queue      *queue.RedisQueue
	closers    []namedCloser

	shutdownTimeout time.Duration
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Option configures optional parts of the App.
type Option func(*App)

// WithConsumer starts c with h registered. Either may be nil.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.intake = h
	}
}

// WithQueue starts q as a Redis job consumer.
func WithQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

// WithCloser closes c during shutdown, after everything that may still use it.
// Closers run in reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// New creates a new App instance with all dependencies.
func New(l *applogger.Logger, httpServer *xhttp.Server, tasks *usecase.TaskManager, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{
		logger:          l,
		httpServer:      httpServer,
		tasks:           tasks,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.intake != nil {
		a.consumer.RegisterHandler(a.intake)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.intake.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.logger.Error("redis queue start error", applogger.Error(err))
			a.shutdown()
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first so no new task starts, then the tasks, then the
// infrastructure they publish to.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Warn("redis queue stop error", applogger.Error(err))
		}
	}
	if a.tasks != nil {
		if err := a.tasks.Shutdown(ctx); err != nil {
			a.logger.Warn("task shutdown incomplete", applogger.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
