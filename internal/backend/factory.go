package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"txadmin/internal/amqp"
	"txadmin/internal/log"
	"txadmin/internal/session"
	"txadmin/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create implements Factory.Create
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		res = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	res.Publisher = f.createPublisher(ctx, config)
	storeCleanup := res.Cleanup
	res.Cleanup = func() error {
		var errs []error
		if err := res.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
		if storeCleanup != nil {
			if err := storeCleanup(); err != nil {
				errs = append(errs, fmt.Errorf("sessions: %w", err))
			}
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	store, err := storage.NewSQLiteSessionStore(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite session store: %w", err)
	}

	f.logger.Info("Initialized SQLite session backend", "db_path", config.SQLiteDBPath)

	return &Result{
		Sessions: store,
		Ping:     store.Ping,
		Cleanup:  store.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *Result {
	interval := time.Duration(config.CleanupInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	store := session.NewMemoryStore(interval)

	f.logger.Info("Initialized memory session backend", "cleanup_interval", interval)

	return &Result{
		Sessions: store,
		Ping:     func(context.Context) error { return nil },
	}
}

// createPublisher connects to the broker when one is configured. A broker
// that cannot be reached is not fatal: the server runs without events.
func (f *DefaultFactory) createPublisher(ctx context.Context, config Config) amqp.Publisher {
	if config.AMQPURL == "" {
		f.logger.InfoContext(ctx, "AMQP not configured, transaction events disabled")
		return amqp.NoopPublisher{}
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		return amqp.NoopPublisher{}
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
