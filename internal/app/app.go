// Package app assembles the post office from configuration. Every entry
// point builds its dependencies here so the wiring lives in one place.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"postoffice/internal/bundling"
	"postoffice/internal/config"
	"postoffice/internal/content"
	"postoffice/internal/db"
	"postoffice/internal/dequeue"
	"postoffice/internal/external"
	"postoffice/internal/intake"
	"postoffice/internal/mailbox"
	"postoffice/internal/queue"
	"postoffice/internal/telemetry"
	"postoffice/internal/types"
)

// Deps holds the infrastructure shared by the services.
type Deps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Stores  types.StoreRegistry
	Tx      types.TransactionManager
	Codec   *queue.Codec
	Bus     queue.Bus
	Metrics telemetry.Recorder
	Clock   types.Clock
}

// Services holds the coordinators built over Deps.
type Services struct {
	Intake   *intake.Service
	Bundling *bundling.Coordinator
	Gateway  *content.Gateway
	Dequeue  *dequeue.Coordinator
	Mailbox  *mailbox.Service
}

// NewLogger creates the JSON logger used by every entry point.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// LoadConfig loads the config, resolving _SSM_PARAM pointers through the
// provider secretProvider picks. The SSM client is only created when a
// pointer is present.
func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(secretProvider(os.Getenv))
}

// secretProvider returns the environment-backed provider when
// SECRET_PROVIDER=env, used by integration stacks that run with a non-local
// APP_ENV but no SSM. Anything else selects SSM.
func secretProvider(getenv func(string) string) config.SecretProvider {
	if strings.EqualFold(getenv("SECRET_PROVIDER"), "env") {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(getenv("AWS_REGION"))
}

// Build connects to Postgres and AWS. Close releases the pool.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.ApplySchema {
		if err := db.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	codec, err := queue.NewCodec(cfg.Mailbox.CompressAboveBytes)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var metrics telemetry.Recorder = telemetry.Nop{}
	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = telemetry.NewCloudWatchRecorder(cw, cfg.Observability.MetricNamespace, logger)
	}

	return &Deps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Stores:  db.NewStores(pool),
		Tx:      db.NewTxManager(pool),
		Codec:   codec,
		Bus:     queue.NewSQSBus(sqsClient, cfg.AWS.QueueURLPrefix, codec, logger),
		Metrics: metrics,
		Clock:   types.RealClock{},
	}, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Close releases the database pool.
func (d *Deps) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// NewServices builds the coordinators over d.
func NewServices(d *Deps) (*Services, error) {
	cfg := d.Config.Mailbox

	var notifier dequeue.Notifier
	if cfg.PublishDequeueNotices {
		notifier = dequeue.NewBusNotifier(d.Bus)
	}

	intakeSvc := intake.NewService(d.Tx, d.Stores, d.Clock, d.Metrics, d.Logger)
	coordinator := bundling.NewCoordinator(d.Tx, bundling.Config{
		MaxBundleWeight: int(cfg.MaxBundleWeight),
		ConflictRetries: cfg.PeekConflictRetries,
	}, d.Clock, d.Metrics, d.Logger)
	gateway := content.NewGateway(d.Bus, cfg.ContentRequestTimeout, d.Metrics, d.Logger)
	dequeuer := dequeue.NewCoordinator(d.Stores, notifier, dequeue.Config{
		ChunkSize:   cfg.DequeueChunkSize,
		Concurrency: cfg.DequeueConcurrency,
	}, d.Metrics, d.Logger)
	resolver, err := newResolver(d, gateway)
	if err != nil {
		return nil, err
	}
	mbox := mailbox.NewService(coordinator, resolver, dequeuer, d.Stores.Bundles(), d.Logger)

	return &Services{
		Intake:   intakeSvc,
		Bundling: coordinator,
		Gateway:  gateway,
		Dequeue:  dequeuer,
		Mailbox:  mbox,
	}, nil
}

// newResolver sends content requests over the bus unless an origin has an
// HTTP content endpoint configured.
func newResolver(d *Deps, gateway *content.Gateway) (*content.Resolver, error) {
	resolver := content.NewResolver(gateway)
	for _, entry := range d.Config.Mailbox.ContentEndpoints {
		name, url, _ := strings.Cut(entry, "=")
		origin, err := types.ParseOrigin(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("content endpoint %q: %w", entry, err)
		}
		client := external.NewBaseClient(
			&http.Client{Timeout: d.Config.Mailbox.ContentRequestTimeout},
			"content-"+string(origin),
			external.DefaultRetryPolicy(),
			"PostOffice/"+d.Config.Build.Version,
		)
		resolver.Register(origin, external.NewContentAPI(client, strings.TrimSpace(url), d.Config.Mailbox.ContentRequestTimeout, d.Logger))
		d.Logger.Info("content served over HTTP", "origin", origin, "endpoint", url)
	}
	return resolver, nil
}
