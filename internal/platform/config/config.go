package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	secretRefPrefix = "secret://"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Stripe    StripeConfig
	Analytics AnalyticsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StripeConfig collects payment-provider credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// AnalyticsConfig identifies the Pub/Sub topic receiving order analytics events.
// An empty TopicID disables publishing.
type AnalyticsConfig struct {
	ProjectID string
	TopicID   string
}

// SecretResolver resolves secret:// references into plaintext values.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to the SecretResolver interface.
type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

// Resolve implements SecretResolver.
func (f SecretResolverFunc) Resolve(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Option customises configuration loading.
type Option func(*loadOptions)

type loadOptions struct {
	envFile  string
	resolver SecretResolver
}

// WithEnvFile overrides the dotenv file merged into the process environment.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = strings.TrimSpace(path)
	}
}

// WithSecretResolver installs the resolver used for secret:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loadOptions) {
		o.resolver = resolver
	}
}

// Load reads configuration from the environment, merging an optional dotenv
// file and resolving secret references for the Stripe credentials.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loadOptions{envFile: defaultEnvFile}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	env, err := mergeEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         valueOr(env, "PORT", defaultPort),
			ReadTimeout:  durationOr(env, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationOr(env, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationOr(env, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    valueOr(env, "FIRESTORE_PROJECT_ID", env["GOOGLE_CLOUD_PROJECT"]),
			EmulatorHost: env["FIRESTORE_EMULATOR_HOST"],
		},
		Stripe: StripeConfig{
			APIKey:        env["STRIPE_API_KEY"],
			WebhookSecret: env["STRIPE_WEBHOOK_SECRET"],
		},
		Analytics: AnalyticsConfig{
			ProjectID: valueOr(env, "ANALYTICS_PROJECT_ID", env["GOOGLE_CLOUD_PROJECT"]),
			TopicID:   env["ANALYTICS_TOPIC_ID"],
		},
	}

	if cfg.Stripe.APIKey, err = resolveSecret(ctx, options.resolver, cfg.Stripe.APIKey); err != nil {
		return Config{}, fmt.Errorf("config: resolve STRIPE_API_KEY: %w", err)
	}
	if cfg.Stripe.WebhookSecret, err = resolveSecret(ctx, options.resolver, cfg.Stripe.WebhookSecret); err != nil {
		return Config{}, fmt.Errorf("config: resolve STRIPE_WEBHOOK_SECRET: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Port) == "" {
		problems = append(problems, "server port is required")
	}
	if strings.TrimSpace(c.Stripe.APIKey) == "" {
		problems = append(problems, "STRIPE_API_KEY is required")
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func resolveSecret(ctx context.Context, resolver SecretResolver, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, secretRefPrefix) {
		return trimmed, nil
	}
	if resolver == nil {
		return "", errors.New("secret reference present but no resolver configured")
	}
	resolved, err := resolver.Resolve(ctx, trimmed)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resolved), nil
}

// mergeEnv overlays the process environment on top of the optional dotenv file.
func mergeEnv(envFile string) (map[string]string, error) {
	merged := map[string]string{}

	if envFile != "" {
		fileValues, err := parseEnvFile(envFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fileValues {
			merged[k] = v
		}
	}

	for _, entry := range os.Environ() {
		if key, value, ok := strings.Cut(entry, "="); ok {
			merged[key] = value
		}
	}
	return merged, nil
}

func parseEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func valueOr(env map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(env[key]); v != "" {
		return v
	}
	return fallback
}

func durationOr(env map[string]string, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(env[key])
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
