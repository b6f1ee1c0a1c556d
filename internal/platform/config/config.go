package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/installhub/api/internal/domain"
)

// Config is the runtime configuration of both binaries. Every field is read from an APP_*
// variable; see the env tags for names and defaults.
type Config struct {
	Environment string `env:"APP_ENVIRONMENT" envDefault:"local"`
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Storage     StorageConfig
	Secrets     SecretsConfig
	Fees        domain.FeeConfig
	Backfill    BackfillConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port         string        `env:"APP_SERVER_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"APP_SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"APP_SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"APP_SERVER_IDLE_TIMEOUT" envDefault:"120s"`
}

type FirestoreConfig struct {
	ProjectID       string `env:"APP_FIRESTORE_PROJECT_ID"`
	EmulatorHost    string `env:"APP_FIRESTORE_EMULATOR_HOST"`
	CredentialsJSON string `env:"APP_FIRESTORE_CREDENTIALS"`
}

// PubSubConfig selects the topic receiving shipment events. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID     string `env:"APP_PUBSUB_PROJECT_ID"`
	ShipmentTopic string `env:"APP_PUBSUB_SHIPMENT_TOPIC" envDefault:"project-shipments"`
}

// StorageConfig names the bucket receiving backfill reports. An empty bucket disables uploads.
type StorageConfig struct {
	ExportsBucket   string `env:"APP_STORAGE_EXPORTS_BUCKET"`
	ReportPrefix    string `env:"APP_STORAGE_REPORT_PREFIX" envDefault:"backfill/shipments"`
	CredentialsJSON string `env:"APP_STORAGE_CREDENTIALS"`
}

type SecretsConfig struct {
	ProjectID    string `env:"APP_SECRETS_PROJECT_ID"`
	FallbackFile string `env:"APP_SECRETS_FALLBACK_FILE"`
}

type BackfillConfig struct {
	Workers  int           `env:"APP_BACKFILL_WORKERS" envDefault:"1"`
	DryRun   bool          `env:"APP_BACKFILL_DRY_RUN"`
	Deadline time.Duration `env:"APP_BACKFILL_DEADLINE" envDefault:"30m"`
}

// IdempotencyConfig controls replay of retried quote creation requests. A zero cleanup
// interval disables the expiry sweep.
type IdempotencyConfig struct {
	Header           string        `env:"APP_IDEMPOTENCY_HEADER" envDefault:"Idempotency-Key"`
	TTL              time.Duration `env:"APP_IDEMPOTENCY_TTL" envDefault:"24h"`
	CleanupInterval  time.Duration `env:"APP_IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"15m"`
	CleanupBatchSize int           `env:"APP_IDEMPOTENCY_CLEANUP_BATCH_SIZE" envDefault:"200"`
}

// feeEnv holds the optional fee rate variables; unset ones keep domain.DefaultFeeConfig.
type feeEnv struct {
	InstallationPerDevice *float64 `env:"APP_FEES_INSTALLATION_PER_DEVICE"`
	IntegrationRate       *float64 `env:"APP_FEES_INTEGRATION_RATE"`
	LogisticsPrimary      *float64 `env:"APP_FEES_LOGISTICS_PRIMARY"`
	LogisticsNearRegion   *float64 `env:"APP_FEES_LOGISTICS_NEAR_REGION"`
	LogisticsOther        *float64 `env:"APP_FEES_LOGISTICS_OTHER"`
	MiscRate              *float64 `env:"APP_FEES_MISC_RATE"`
	TaxRate               *float64 `env:"APP_FEES_TAX_RATE"`
}

func (f feeEnv) apply(base domain.FeeConfig) domain.FeeConfig {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.InstallationPerDevice, f.InstallationPerDevice)
	set(&base.IntegrationRate, f.IntegrationRate)
	set(&base.LogisticsPrimary, f.LogisticsPrimary)
	set(&base.LogisticsNearRegion, f.LogisticsNearRegion)
	set(&base.LogisticsOther, f.LogisticsOther)
	set(&base.MiscRate, f.MiscRate)
	set(&base.TaxRate, f.TaxRate)
	return base
}

// SecretResolver resolves secret:// references, normally through Secret Manager.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists fields that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: invalid fields [" + strings.Join(e.fields, ", ") + "]"
}

func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError wraps a failed secret reference lookup.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve %s: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load.
type Option func(*sources)

type sources struct {
	envFile   string
	overrides map[string]string
	process   bool
	resolver  SecretResolver
}

// WithEnvFile changes the dotenv file read for local overrides. An empty path skips it.
func WithEnvFile(path string) Option {
	return func(s *sources) { s.envFile = path }
}

// WithEnvMap supplies values that win over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(s *sources) { s.overrides = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(s *sources) { s.process = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(s *sources) { s.resolver = resolver }
}

func newSources(opts []Option) sources {
	s := sources{envFile: ".env", process: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// environ merges the sources. Precedence: explicit map > process env > dotenv file.
func (s sources) environ() (map[string]string, error) {
	merged, err := readDotEnv(s.envFile)
	if err != nil {
		return nil, err
	}
	if s.process {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "APP_") {
				merged[k] = v
			}
		}
	}
	for k, v := range s.overrides {
		merged[k] = v
	}
	for k, v := range merged {
		if v = strings.TrimSpace(v); v == "" {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	return merged, nil
}

// Load reads the configuration, resolves secret references and validates the result.
// Malformed values (a duration or number that does not parse) are errors.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	src := newSources(opts)
	environ, err := src.environ()
	if err != nil {
		return Config{}, err
	}
	parseOpts := env.Options{Environment: environ}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, parseOpts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	var fees feeEnv
	if err := env.ParseWithOptions(&fees, parseOpts); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Fees = fees.apply(domain.DefaultFeeConfig())
	cfg.Environment = strings.ToLower(cfg.Environment)

	// Pub/Sub and Secret Manager live in the Firestore project unless told otherwise.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	for _, field := range []*string{&cfg.Firestore.CredentialsJSON, &cfg.Storage.CredentialsJSON} {
		if *field, err = resolveSecret(ctx, *field, src.resolver); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnvironmentValue returns the trimmed value of key with the same precedence as Load. It lets
// binaries read bootstrap settings, such as the secrets project, before Load runs.
func EnvironmentValue(key string, opts ...Option) (string, error) {
	environ, err := newSources(opts).environ()
	if err != nil {
		return "", err
	}
	return environ[key], nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	ref, ok := secretReference(value)
	if !ok {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

// secretReference normalises sm:// to secret:// and reports whether value is a reference.
func secretReference(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "sm://"); ok {
		return "secret://" + rest, true
	}
	return value, strings.HasPrefix(value, "secret://")
}

func validate(cfg Config) error {
	var bad []string
	check := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}
	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(cfg.Backfill.Workers > 0, "Backfill.Workers")
	check(cfg.Backfill.Deadline > 0, "Backfill.Deadline")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")

	rate := func(v float64) bool { return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0) }
	check(rate(cfg.Fees.InstallationPerDevice), "Fees.InstallationPerDevice")
	check(rate(cfg.Fees.IntegrationRate), "Fees.IntegrationRate")
	check(rate(cfg.Fees.LogisticsPrimary), "Fees.LogisticsPrimary")
	check(rate(cfg.Fees.LogisticsNearRegion), "Fees.LogisticsNearRegion")
	check(rate(cfg.Fees.LogisticsOther), "Fees.LogisticsOther")
	check(rate(cfg.Fees.MiscRate), "Fees.MiscRate")
	check(rate(cfg.Fees.TaxRate), "Fees.TaxRate")

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

// readDotEnv parses KEY=VALUE lines, ignoring comments, blank lines, an "export " prefix and
// surrounding quotes. A missing file yields an empty map.
func readDotEnv(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return values, nil
}
