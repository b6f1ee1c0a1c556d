package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/installhub/api/internal/di"
	"github.com/installhub/api/internal/platform/config"
	pfirestore "github.com/installhub/api/internal/platform/firestore"
	"github.com/installhub/api/internal/platform/idempotency"
	"github.com/installhub/api/internal/platform/jobs"
	"github.com/installhub/api/internal/platform/secrets"
	platformstorage "github.com/installhub/api/internal/platform/storage"
	"github.com/installhub/api/internal/repositories"
	firestoreRepo "github.com/installhub/api/internal/repositories/firestore"
)

// Runtime holds the configured container together with the cloud clients it owns.
type Runtime struct {
	Config    config.Config
	Container *di.Container
	// Idempotency stores replayable quote responses in Firestore.
	Idempotency idempotency.Store

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

// Option adjusts the loaded configuration before clients are created.
type Option func(*config.Config)

// New reads configuration (resolving secret references through Secret Manager), connects
// Firestore, Pub/Sub and Cloud Storage, and builds the service container. Pub/Sub and Storage
// are optional and skipped when their topic or bucket is unset.
func New(ctx context.Context, logger *zap.Logger, opts ...Option) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{logger: logger}

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise secret fetcher: %w", err)
	}
	rt.addCloser("secrets", func(context.Context) error { return fetcher.Close() })

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		return nil, rt.fail(ctx, fmt.Errorf("load configuration: %w", err))
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	rt.Config = cfg

	provider := pfirestore.NewProvider(cfg.Firestore)
	rt.addCloser("firestore", func(context.Context) error { return provider.Close() })
	if _, err := provider.Client(ctx); err != nil {
		return nil, rt.fail(ctx, fmt.Errorf("initialise firestore client: %w", err))
	}

	keys, err := idempotency.NewFirestoreStore(provider)
	if err != nil {
		return nil, rt.fail(ctx, fmt.Errorf("initialise idempotency store: %w", err))
	}
	rt.Idempotency = keys

	var (
		infra  = di.Infrastructure{Logger: logger}
		probes []repositories.DependencyProbe
	)

	if topicID := strings.TrimSpace(cfg.PubSub.ShipmentTopic); topicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, rt.fail(ctx, fmt.Errorf("initialise pubsub client: %w", err))
		}
		topic := client.Topic(topicID)
		topic.EnableMessageOrdering = true
		rt.addCloser("pubsub", func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
		publisher, err := jobs.NewShipmentEventPublisher(topic)
		if err != nil {
			return nil, rt.fail(ctx, err)
		}
		infra.Events = publisher
		probes = append(probes, repositories.DependencyProbe{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topicID)
				}
				return nil
			},
		})
	} else {
		logger.Info("shipment events disabled: no pubsub topic configured")
	}

	if bucket := strings.TrimSpace(cfg.Storage.ExportsBucket); bucket != "" {
		var clientOpts []option.ClientOption
		if creds := strings.TrimSpace(cfg.Storage.CredentialsJSON); creds != "" {
			clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(creds)))
		}
		client, err := gcs.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, rt.fail(ctx, fmt.Errorf("initialise storage client: %w", err))
		}
		rt.addCloser("storage", func(context.Context) error { return client.Close() })
		writer, err := platformstorage.NewReportWriter(client, bucket, cfg.Storage.ReportPrefix)
		if err != nil {
			return nil, rt.fail(ctx, err)
		}
		infra.Reports = writer
		probes = append(probes, repositories.DependencyProbe{
			Name:    "storage",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := client.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}

	registry, err := firestoreRepo.NewRegistry(provider, probes...)
	if err != nil {
		return nil, rt.fail(ctx, fmt.Errorf("initialise repositories: %w", err))
	}

	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		return nil, rt.fail(ctx, fmt.Errorf("initialise container: %w", err))
	}
	rt.Container = container
	return rt, nil
}

// Close releases every client in reverse creation order.
func (r *Runtime) Close(ctx context.Context) {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("client close error", zap.String("client", c.name), zap.Error(err))
		}
	}
	r.closers = nil
}

func (r *Runtime) fail(ctx context.Context, err error) error {
	r.Close(ctx)
	return err
}

func (r *Runtime) addCloser(name string, fn func(context.Context) error) {
	r.closers = append(r.closers, namedCloser{name: name, close: fn})
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project, err := config.EnvironmentValue("APP_SECRETS_PROJECT_ID")
	if err != nil {
		return nil, err
	}
	if project == "" {
		if project, err = config.EnvironmentValue("APP_FIRESTORE_PROJECT_ID"); err != nil {
			return nil, err
		}
	}
	fallback, err := config.EnvironmentValue("APP_SECRETS_FALLBACK_FILE")
	if err != nil {
		return nil, err
	}
	if fallback == "" {
		fallback = ".secrets.local"
	}
	return secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallback),
	)
}
