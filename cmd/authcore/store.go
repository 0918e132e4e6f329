package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memstore"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/MrEthical07/authcore/store/sqlstore"
)

// backend is the persistence a server runs on: identities plus todos.
type backend struct {
	identities authcore.IdentityStore
	todos      todoRepository
	close      func() error
}

// openStore builds the backend named by cfg.Driver. sqlite keeps todos in
// the same database; the other drivers keep them in memory. close releases
// backend connections and is never nil.
func openStore(ctx context.Context, cfg storeConfig, logger logrus.FieldLogger) (backend, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.RedisAddr},
		})
		store := redisstore.New(client, cfg.RedisPrefix)

		backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(cfg.ConnectBackoff))
		attempt := 0
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			attempt++
			if err := store.Ping(ctx); err != nil {
				logger.WithError(err).WithField("attempt", attempt).Warn("redis not ready")
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			_ = client.Close()
			return backend{}, oops.Code("STORE_UNAVAILABLE").
				With("driver", cfg.Driver).
				With("addr", cfg.RedisAddr).
				Wrapf(err, "connect redis")
		}
		logger.WithField("addr", cfg.RedisAddr).Info("identity store: redis")
		return backend{identities: store, todos: newMemoryTodos(nil), close: client.Close}, nil

	case "sqlite":
		store, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return backend{}, oops.Code("STORE_UNAVAILABLE").
				With("driver", cfg.Driver).
				With("path", cfg.SQLitePath).
				Wrapf(err, "open sqlite")
		}
		todos, err := newSQLTodos(store.DB(), nil)
		if err != nil {
			_ = store.Close()
			return backend{}, oops.With("path", cfg.SQLitePath).Wrapf(err, "migrate todos")
		}
		logger.WithField("path", cfg.SQLitePath).Info("identity store: sqlite")
		return backend{identities: store, todos: todos, close: store.Close}, nil

	default:
		logger.Info("identity store: memory")
		return backend{
			identities: memstore.New(),
			todos:      newMemoryTodos(nil),
			close:      func() error { return nil },
		}, nil
	}
}
