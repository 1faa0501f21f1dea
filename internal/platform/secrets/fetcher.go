package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	refScheme      = "secret"
	defaultVersion = "latest"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references using Google Secret Manager with in-process caching.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

type fetcherConfig struct {
	logger     *zap.Logger
	projectID  string
	client     secretManagerClient
	clientOpts []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithProject configures the project ID used when a reference does not name one.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectID = strings.TrimSpace(projectID)
	}
}

// WithClient injects a preconfigured Secret Manager client (primarily for tests).
func WithClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher with secret caching.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.client
	ownsClient := false
	if client == nil {
		created, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
		client = created
		ownsClient = true
	}

	return &Fetcher{
		client:     client,
		ownsClient: ownsClient,
		logger:     logger,
		projectID:  cfg.projectID,
		cache:      map[string]cacheEntry{},
	}, nil
}

// Resolve fetches the secret value behind a secret://name[@version][?project=id] reference.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	if f == nil || f.client == nil {
		return "", errors.New("secrets: fetcher not initialised")
	}

	name, err := f.canonicalName(ref)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	entry, ok := f.cache[name]
	f.mu.RUnlock()
	if ok {
		return entry.value, nil
	}

	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", name)
	}
	value := string(resp.GetPayload().GetData())

	f.mu.Lock()
	f.cache[name] = cacheEntry{value: value, fetchedAt: time.Now().UTC()}
	f.mu.Unlock()

	f.logger.Debug("secret resolved", zap.String("secret", name))
	return value, nil
}

// Close releases the underlying client when owned by the fetcher.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil || !f.ownsClient {
		return nil
	}
	return f.client.Close()
}

func (f *Fetcher) canonicalName(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", errors.New("secrets: reference is required")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("secrets: parse reference %q: %w", trimmed, err)
	}
	if parsed.Scheme != refScheme {
		return "", fmt.Errorf("secrets: unsupported scheme %q", parsed.Scheme)
	}

	secretName := parsed.Host
	version := defaultVersion
	if at := strings.Index(secretName, "@"); at >= 0 {
		version = secretName[at+1:]
		secretName = secretName[:at]
	}
	if secretName == "" {
		return "", fmt.Errorf("secrets: reference %q names no secret", trimmed)
	}

	projectID := strings.TrimSpace(parsed.Query().Get("project"))
	if projectID == "" {
		projectID = f.projectID
	}
	if projectID == "" {
		return "", fmt.Errorf("secrets: no project for reference %q", trimmed)
	}

	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secretName, version), nil
}
