package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/catalog-import/internal/config"
	"github.com/JonMunkholm/catalog-import/internal/core"
	"github.com/JonMunkholm/catalog-import/internal/notify"
	"github.com/JonMunkholm/catalog-import/internal/objectstore"
	"github.com/JonMunkholm/catalog-import/internal/queue"
	"github.com/JonMunkholm/catalog-import/internal/store"
	"github.com/JonMunkholm/catalog-import/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// unitQueue is both ends of the unit-of-work queue.
type unitQueue interface {
	queue.Producer
	queue.Consumer
}

// deps holds the clients one command needs. Each is built once and passed
// explicitly to the components that use it.
type deps struct {
	cfg      *config.Config
	objects  *objectstore.S3
	queue    unitQueue
	store    core.ProductStore
	notifier core.Notifier

	redis   *redis.Client
	closers []func()
}

func newDeps(cfg *config.Config) *deps {
	return &deps{cfg: cfg}
}

// Close releases every client in reverse order of creation.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *deps) redisClient(ctx context.Context) (*redis.Client, error) {
	if d.redis != nil {
		return d.redis, nil
	}
	q := d.cfg.Queue
	client := queue.NewRedisClient(q.RedisAddr, q.RedisPassword, q.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", q.RedisAddr, err)
	}
	d.redis = client
	d.closers = append(d.closers, func() { _ = client.Close() })
	slog.Info("connected to redis", "addr", q.RedisAddr)
	return client, nil
}

func (d *deps) withObjects(ctx context.Context) error {
	if err := d.cfg.RequireBucket(); err != nil {
		return err
	}
	s3, err := objectstore.NewS3(ctx, objectstore.S3Config{
		Region:   d.cfg.Storage.Region,
		Endpoint: d.cfg.Storage.Endpoint,
	})
	if err != nil {
		return err
	}
	d.objects = s3
	return nil
}

func (d *deps) withQueue(ctx context.Context) error {
	q := d.cfg.Queue
	switch q.Driver {
	case "memory":
		mem := queue.NewMemory(q.PollInterval)
		d.queue = mem
		d.closers = append(d.closers, mem.Close)
		slog.Warn("using in-process queue; units are lost on exit")
	case "redis":
		client, err := d.redisClient(ctx)
		if err != nil {
			return err
		}
		stream := queue.NewRedisStream(client, queue.RedisConfig{
			Stream:           q.Stream,
			Group:            q.Group,
			Consumer:         q.Consumer,
			DeadLetterStream: q.DeadLetterStream,
			Block:            q.PollInterval,
		})
		if err := stream.EnsureGroup(ctx); err != nil {
			return err
		}
		d.queue = stream
	default:
		return fmt.Errorf("unknown queue driver %q", q.Driver)
	}
	return nil
}

func (d *deps) withStore(ctx context.Context) error {
	switch d.cfg.Store.Driver {
	case "memory":
		d.store = store.NewMemory()
		slog.Warn("using in-process store; products are lost on exit")
	case "postgres":
		pool, err := d.postgres(ctx)
		if err != nil {
			return err
		}
		d.store = store.NewPostgres(pool)
	case "mongo":
		m, err := d.mongo(ctx)
		if err != nil {
			return err
		}
		d.store = m
	default:
		return fmt.Errorf("unknown store driver %q", d.cfg.Store.Driver)
	}
	return nil
}

func (d *deps) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	db := d.cfg.Database
	pool, err := store.Connect(ctx, db.URL, store.PoolOptions{
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
		MaxConnIdleTime: db.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pool.Close)
	slog.Info("connected to database", "max_conns", db.MaxConns)
	return pool, nil
}

func (d *deps) mongo(ctx context.Context) (*store.Mongo, error) {
	m, err := store.ConnectMongo(ctx, d.cfg.Store.MongoURI, d.cfg.Store.MongoDatabase)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() { _ = m.Close(context.Background()) })
	slog.Info("connected to mongodb", "database", d.cfg.Store.MongoDatabase)
	return m, nil
}

func (d *deps) withNotifier(ctx context.Context) error {
	switch d.cfg.Notify.Driver {
	case "log":
		d.notifier = notify.NewLogPublisher(nil)
	case "redis":
		client, err := d.redisClient(ctx)
		if err != nil {
			return err
		}
		d.notifier = notify.NewRedisPublisher(client, d.cfg.Notify.Channel)
	default:
		return fmt.Errorf("unknown notify driver %q", d.cfg.Notify.Driver)
	}
	return nil
}

// build runs each step, closing whatever was opened if one fails.
func (d *deps) build(ctx context.Context, steps ...func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			d.Close()
			return err
		}
	}
	return nil
}

func (d *deps) parser() *core.FileParser {
	s := d.cfg.Storage
	return core.NewFileParser(d.objects, d.queue, s.UploadPrefix, s.ProcessedPrefix)
}

func (d *deps) worker() *worker.Worker {
	p, q := d.cfg.Processor, d.cfg.Queue
	processor := core.NewProcessor(d.store, d.notifier,
		core.WithConcurrency(p.Concurrency),
		core.WithCountPolicy(core.CountPolicy{
			Default:   p.DefaultCount,
			Randomize: p.RandomCount,
			RandomMax: p.RandomMax,
		}),
	)
	return worker.New(d.queue, processor, worker.Config{
		BatchSize:         q.BatchSize,
		Consumers:         q.Consumers,
		VisibilityTimeout: q.VisibilityTimeout,
		MaxDeliveries:     q.MaxDeliveries,
	})
}
