// Package bootstrap builds the object graph shared by the CLI and the
// gateway from a ClientConfig.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/carpool-client/internal/api"
	"github.com/example/carpool-client/internal/config"
	"github.com/example/carpool-client/internal/events"
	"github.com/example/carpool-client/internal/session"
	"github.com/example/carpool-client/internal/views"
)

type App struct {
	Config  config.ClientConfig
	Logger  *slog.Logger
	Tokens  session.TokenStore
	Session *session.Store
	Client  *api.Client
	Fanout  *events.Fanout

	closers []func() error
}

// New wires the token store, session, API client and update fan-out. The
// caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	tokens, err := a.tokenStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Tokens = tokens

	pub, err := a.publisher()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Fanout = events.NewFanout(pub, logger.With("component", "events"))
	a.closers = append(a.closers, a.Fanout.Close)

	a.Session = session.New(tokens, logger.With("component", "session"))
	a.Client = api.NewClient(cfg.APIBaseURL, a.Session,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithLogger(logger.With("component", "api")),
	)
	a.Session.SetVerifier(a.Client)
	a.Session.OnChange(func(s session.Snapshot) {
		a.Fanout.Notify(views.Update{View: views.ViewSession, Kind: views.UpdateState, Payload: s, At: time.Now()})
	})

	logger.Debug("bootstrap_ready",
		"api_base_url", cfg.APIBaseURL,
		"token_store", cfg.TokenStore,
		"events_backend", cfg.EventsBackend,
	)
	return a, nil
}

func (a *App) tokenStore(ctx context.Context) (session.TokenStore, error) {
	cfg := a.Config
	switch cfg.TokenStore {
	case config.TokenStoreMemory:
		return session.NewMemoryTokens(), nil
	case config.TokenStoreRedis:
		r := session.NewRedisTokens(cfg.RedisAddr, cfg.RedisPassword, cfg.TokenKey)
		a.closers = append(a.closers, r.Close)
		return r, nil
	case config.TokenStorePostgres:
		p, err := session.NewPostgresTokens(ctx, cfg.PGDSN, cfg.TokenKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open token store: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case config.TokenStoreFile, "":
		return session.NewFileTokens(cfg.TokenFile, cfg.TokenKey), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

func (a *App) publisher() (events.Publisher, error) {
	cfg := a.Config
	switch cfg.EventsBackend {
	case config.EventsKafka:
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.EventsAMQP:
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect events backend: %w", err)
		}
		return p, nil
	case config.EventsNone, "":
		return events.NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}
}

// Intervals returns the configured polling periods.
func (a *App) Intervals() views.Intervals {
	return views.Intervals{
		Messages:    a.Config.MessagesPollInterval,
		Connections: a.Config.ConnectionsPollInterval,
		Unread:      a.Config.UnreadPollInterval,
	}
}

// ViewDeps builds view dependencies that report to n as well as the
// fan-out.
func (a *App) ViewDeps(n views.Notifier) views.Deps {
	notifier := views.Notifier(a.Fanout)
	if n != nil {
		notifier = views.NotifierFunc(func(u views.Update) {
			n.Notify(u)
			a.Fanout.Publish(u)
		})
	}
	return views.Deps{
		Notifier:  notifier,
		Session:   a.Session,
		Logger:    a.Logger,
		Intervals: a.Intervals(),
	}
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
