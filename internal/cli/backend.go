package cli

import (
	"context"
	"fmt"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	"github.com/go-zookeeper/zk"
	"github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	goredis "github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zoobzio/stash"
	"github.com/zoobzio/stash/internal/config"
	"github.com/zoobzio/stash/pkg/consul"
	"github.com/zoobzio/stash/pkg/etcd"
	"github.com/zoobzio/stash/pkg/file"
	"github.com/zoobzio/stash/pkg/firestore"
	"github.com/zoobzio/stash/pkg/gormkv"
	stashnats "github.com/zoobzio/stash/pkg/nats"
	"github.com/zoobzio/stash/pkg/postgres"
	"github.com/zoobzio/stash/pkg/redis"
	"github.com/zoobzio/stash/pkg/zookeeper"
)

const dialTimeout = 5 * time.Second

// Store is an opened backend with its optional change feed.
type Store struct {
	Backend stash.Backend
	// Watcher returns a change feed for key, or nil when the backend has none.
	Watcher func(key string) stash.Watcher
	closers []func()
}

// Close releases the backend's connections.
func (s *Store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Open connects to the backend described by cfg.
func Open(ctx context.Context, cfg config.BackendConfig) (*Store, error) {
	switch cfg.Kind {
	case config.BackendMemory:
		return &Store{Backend: stash.NewMemoryBackend()}, nil

	case config.BackendFile:
		b := file.New(cfg.Dir)
		return &Store{Backend: b, Watcher: watcherOf(b.Watcher)}, nil

	case config.BackendSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", cfg.DSN, err)
		}
		b := gormkv.New(db)
		if err := b.Migrate(ctx); err != nil {
			return nil, err
		}
		s := &Store{Backend: b}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, func() { _ = sqlDB.Close() })
		}
		return s, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr})
		b := redis.New(client, redis.WithPrefix(cfg.Prefix))
		return &Store{
			Backend: b,
			Watcher: watcherOf(b.Watcher),
			closers: []func(){func() { _ = client.Close() }},
		}, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		b := postgres.New(pool, postgres.WithTable(cfg.Table))
		if err := b.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{
			Backend: b,
			Watcher: watcherOf(b.Watcher),
			closers: []func(){pool.Close},
		}, nil

	case config.BackendNATS:
		nc, err := nats.Connect(cfg.Addr, nats.Timeout(dialTimeout))
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("creating jetstream: %w", err)
		}
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: cfg.Bucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("opening bucket %s: %w", cfg.Bucket, err)
		}
		b := stashnats.New(kv)
		return &Store{
			Backend: b,
			Watcher: watcherOf(b.Watcher),
			closers: []func(){nc.Close},
		}, nil

	case config.BackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Endpoints,
			DialTimeout: dialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to etcd: %w", err)
		}
		b := etcd.New(client, etcd.WithPrefix(cfg.Prefix))
		return &Store{
			Backend: b,
			Watcher: watcherOf(b.Watcher),
			closers: []func(){func() { _ = client.Close() }},
		}, nil

	case config.BackendConsul:
		client, err := api.NewClient(&api.Config{Address: cfg.Addr})
		if err != nil {
			return nil, fmt.Errorf("creating consul client: %w", err)
		}
		b := consul.New(client, consul.WithPrefix(cfg.Prefix))
		return &Store{Backend: b, Watcher: watcherOf(b.Watcher)}, nil

	case config.BackendZookeeper:
		conn, _, err := zk.Connect(cfg.Endpoints, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("connecting to zookeeper: %w", err)
		}
		var opts []zookeeper.Option
		if cfg.Prefix != "" {
			opts = append(opts, zookeeper.WithRoot(cfg.Prefix))
		}
		b := zookeeper.New(conn, opts...)
		return &Store{
			Backend: b,
			Watcher: watcherOf(b.Watcher),
			closers: []func(){conn.Close},
		}, nil

	case config.BackendFirestore:
		client, err := gcpfirestore.NewClient(ctx, cfg.Project)
		if err != nil {
			return nil, fmt.Errorf("creating firestore client: %w", err)
		}
		var opts []firestore.Option
		if cfg.Collection != "" {
			opts = append(opts, firestore.WithCollection(cfg.Collection))
		}
		b := firestore.New(client, opts...)
		return &Store{
			Backend: b,
			Watcher: watcherOf(b.Watcher),
			closers: []func(){func() { _ = client.Close() }},
		}, nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
}

// watcherOf adapts a backend's typed Watcher constructor.
func watcherOf[W stash.Watcher](fn func(string) W) func(string) stash.Watcher {
	return func(key string) stash.Watcher {
		return fn(key)
	}
}
