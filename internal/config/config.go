package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type QueryBackend string

const (
	QueryBackendRemote   QueryBackend = "remote"
	QueryBackendPostgres QueryBackend = "postgres"
	QueryBackendDuckDB   QueryBackend = "duckdb"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Search        SearchConfig
	LLM           LLMConfig
	Prompt        PromptConfig
	Query         QueryConfig
	Database      DatabaseConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type SearchConfig struct {
	Endpoint   string
	APIKey     string
	Index      string
	APIVersion string
	Timeout    time.Duration
}

type LLMConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

type PromptConfig struct {
	TimeZone string
}

type QueryConfig struct {
	Backend  QueryBackend
	Endpoint string
	Timeout  time.Duration
	RowLimit int
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
	DatasetPrefix    string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("CHATSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid CHATSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "CHATSQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyPort(lookup, "PORT", &cfg.HTTP.Address) },
		func() error { return applyString(lookup, "CHATSQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "CHATSQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "CHATSQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "CHATSQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyList(lookup, "CHATSQL_CORS_ORIGINS", &cfg.HTTP.CORSOrigins) },
		func() error { return applyString(lookup, "CHATSQL_SEARCH_ENDPOINT", &cfg.Search.Endpoint) },
		func() error { return applyString(lookup, "CHATSQL_SEARCH_API_KEY", &cfg.Search.APIKey) },
		func() error { return applyString(lookup, "CHATSQL_SEARCH_INDEX", &cfg.Search.Index) },
		func() error { return applyString(lookup, "CHATSQL_SEARCH_API_VERSION", &cfg.Search.APIVersion) },
		func() error { return applyDuration(lookup, "CHATSQL_SEARCH_TIMEOUT", &cfg.Search.Timeout) },
		func() error { return applyString(lookup, "CHATSQL_LLM_ENDPOINT", &cfg.LLM.Endpoint) },
		func() error { return applyString(lookup, "CHATSQL_LLM_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "CHATSQL_LLM_DEPLOYMENT", &cfg.LLM.Deployment) },
		func() error { return applyString(lookup, "CHATSQL_LLM_API_VERSION", &cfg.LLM.APIVersion) },
		func() error { return applyDuration(lookup, "CHATSQL_LLM_TIMEOUT", &cfg.LLM.Timeout) },
		func() error { return applyString(lookup, "CHATSQL_PROMPT_TIMEZONE", &cfg.Prompt.TimeZone) },
		func() error { return applyQueryBackend(lookup, "CHATSQL_QUERY_BACKEND", &cfg.Query.Backend) },
		func() error { return applyString(lookup, "CHATSQL_QUERY_ENDPOINT", &cfg.Query.Endpoint) },
		func() error { return applyDuration(lookup, "CHATSQL_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyInt(lookup, "CHATSQL_QUERY_ROW_LIMIT", &cfg.Query.RowLimit) },
		func() error { return applyString(lookup, "CHATSQL_DATABASE_DSN", &cfg.Database.DSN) },
		func() error { return applyInt(lookup, "CHATSQL_DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "CHATSQL_DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "CHATSQL_DATABASE_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "CHATSQL_DATABASE_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyString(lookup, "CHATSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "CHATSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "CHATSQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "CHATSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "CHATSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "CHATSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "CHATSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "CHATSQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "CHATSQL_DATASET_PREFIX", &cfg.ObjectStore.DatasetPrefix) },
		func() error { return applyBool(lookup, "CHATSQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "CHATSQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Query.RowLimit < 0 {
		return Config{}, fmt.Errorf("CHATSQL_QUERY_ROW_LIMIT must be >= 0")
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = cfg.PipelineBudget() + writeTimeoutMargin
	}
	return cfg, nil
}

// writeTimeoutMargin covers request decoding, prompt assembly and response
// encoding on top of the collaborator calls.
const writeTimeoutMargin = 15 * time.Second

// PipelineBudget is the longest a chat turn can take when every collaborator
// call runs up to its timeout: search, two completions and one query.
func (c Config) PipelineBudget() time.Duration {
	return c.Search.Timeout + 2*c.LLM.Timeout + c.Query.Timeout
}

// ValidateChat reports every collaborator setting the chat API cannot start
// without. Only the listening address has a default.
func (c Config) ValidateChat() error {
	var errs []error
	required := []struct {
		key   string
		value string
	}{
		{"CHATSQL_SEARCH_ENDPOINT", c.Search.Endpoint},
		{"CHATSQL_SEARCH_API_KEY", c.Search.APIKey},
		{"CHATSQL_SEARCH_INDEX", c.Search.Index},
		{"CHATSQL_LLM_ENDPOINT", c.LLM.Endpoint},
		{"CHATSQL_LLM_API_KEY", c.LLM.APIKey},
		{"CHATSQL_LLM_DEPLOYMENT", c.LLM.Deployment},
		{"CHATSQL_LLM_API_VERSION", c.LLM.APIVersion},
	}
	for _, item := range required {
		if item.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", item.key))
		}
	}
	if c.HTTP.WriteTimeout <= c.PipelineBudget() {
		errs = append(errs, fmt.Errorf("CHATSQL_HTTP_WRITE_TIMEOUT (%s) must exceed the pipeline budget of %s", c.HTTP.WriteTimeout, c.PipelineBudget()))
	}
	switch c.Query.Backend {
	case QueryBackendRemote:
		if c.Query.Endpoint == "" {
			errs = append(errs, fmt.Errorf("CHATSQL_QUERY_ENDPOINT is required for the remote query backend"))
		}
	case QueryBackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("CHATSQL_DATABASE_DSN is required for the postgres query backend"))
		}
	case QueryBackendDuckDB:
		if c.ObjectStore.Endpoint == "" || c.ObjectStore.Bucket == "" {
			errs = append(errs, fmt.Errorf("object store endpoint and bucket are required for the duckdb query backend"))
		}
	}
	return errors.Join(errs...)
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "chatsql-api"},
		HTTP: HTTPConfig{
			Address:      ":3001",
			ReadTimeout:  5 * time.Second,
			// WriteTimeout is derived from the collaborator timeouts in Load.
			IdleTimeout:  60 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Search: SearchConfig{
			APIVersion: "2020-06-30",
			Timeout:    10 * time.Second,
		},
		LLM: LLMConfig{
			Timeout: 60 * time.Second,
		},
		Prompt: PromptConfig{
			TimeZone: "Europe/Berlin",
		},
		Query: QueryConfig{
			Backend:  QueryBackendRemote,
			Endpoint: "http://localhost:3000/MySQLQueryFunction",
			Timeout:  30 * time.Second,
			RowLimit: 200,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "chatsql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
			DatasetPrefix:    "dataset",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":13001"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			values = append(values, item)
		}
	}
	*dst = values
	return nil
}

func applyPort(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	*dst = ":" + strconv.Itoa(port)
	return nil
}

func applyQueryBackend(lookup LookupFunc, key string, dst *QueryBackend) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	backend := QueryBackend(strings.ToLower(strings.TrimSpace(raw)))
	switch backend {
	case QueryBackendRemote, QueryBackendPostgres, QueryBackendDuckDB:
		*dst = backend
		return nil
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
