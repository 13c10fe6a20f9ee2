// Package config loads client settings from .env files and the process
// environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mnehpets/nsrpc/auth"
	"github.com/mnehpets/nsrpc/client"
	"github.com/mnehpets/nsrpc/credentials"
	"github.com/mnehpets/nsrpc/jsonrpc"
	"github.com/mnehpets/nsrpc/schema"
	"github.com/mnehpets/nsrpc/transport"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables read by Load.
const (
	EnvScheme           = "NSRPC_SCHEME"
	EnvHost             = "NSRPC_HOST"
	EnvPort             = "NSRPC_PORT"
	EnvPath             = "NSRPC_PATH"
	EnvUser             = "NSRPC_USER"
	EnvPass             = "NSRPC_PASS"
	EnvTimeout          = "NSRPC_TIMEOUT"
	EnvSchema           = "NSRPC_SCHEMA"
	EnvStrictIDs        = "NSRPC_STRICT_IDS"
	EnvUUIDIDs          = "NSRPC_UUID_IDS"
	EnvCredentials      = "NSRPC_CREDENTIALS"
	EnvCredentialsKey   = "NSRPC_CREDENTIALS_KEY"
	EnvOIDCIssuer       = "NSRPC_OIDC_ISSUER"
	EnvOIDCClientID     = "NSRPC_OIDC_CLIENT_ID"
	EnvOIDCClientSecret = "NSRPC_OIDC_CLIENT_SECRET"
	EnvOIDCScopes       = "NSRPC_OIDC_SCOPES"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 8080
)

// OIDC holds the settings for client credentials Bearer auth. It is enabled
// when Issuer is set.
type OIDC struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config is the resolved client configuration.
type Config struct {
	Server transport.ServerParams
	// Timeout is in seconds; 0 disables it.
	Timeout    int
	SchemaPath string
	StrictIDs  bool
	UUIDIDs    bool
	OIDC       OIDC
}

// Load reads the given .env files, or ./.env if none are given and it
// exists, and then resolves the configuration from the environment.
// Variables already set in the environment take precedence over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load %s: %w", strings.Join(files, ", "), err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv resolves the configuration using lookup to read variables.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		Server: transport.ServerParams{
			Scheme: get(EnvScheme),
			Host:   get(EnvHost),
			Port:   DefaultPort,
			Path:   get(EnvPath),
			User:   get(EnvUser),
			Pass:   get(EnvPass),
		},
		Timeout:    int(client.DefaultTimeout.Seconds()),
		SchemaPath: get(EnvSchema),
		OIDC: OIDC{
			Issuer:       get(EnvOIDCIssuer),
			ClientID:     get(EnvOIDCClientID),
			ClientSecret: get(EnvOIDCClientSecret),
		},
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}

	var err error
	if v := get(EnvPort); v != "" {
		if cfg.Server.Port, err = strconv.Atoi(v); err != nil || cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return nil, fmt.Errorf("%w: %s=%q is not a port", ErrInvalidConfig, EnvPort, v)
		}
	}
	if v := get(EnvTimeout); v != "" {
		if cfg.Timeout, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number of seconds", ErrInvalidConfig, EnvTimeout, v)
		}
	}
	if cfg.StrictIDs, err = parseBool(EnvStrictIDs, get(EnvStrictIDs)); err != nil {
		return nil, err
	}
	if cfg.UUIDIDs, err = parseBool(EnvUUIDIDs, get(EnvUUIDIDs)); err != nil {
		return nil, err
	}
	if v := get(EnvOIDCScopes); v != "" {
		cfg.OIDC.Scopes = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}
	if cfg.OIDC.Issuer != "" && cfg.OIDC.ClientID == "" {
		return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidConfig, EnvOIDCIssuer, EnvOIDCClientID)
	}

	if token := get(EnvCredentials); token != "" {
		if cfg.Server.User != "" {
			return nil, fmt.Errorf("%w: %s and %s are mutually exclusive", ErrInvalidConfig, EnvCredentials, EnvUser)
		}
		if cfg.Server, err = openCredentials(cfg.Server, token, get(EnvCredentialsKey)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseBool(key, v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v)
	}
	return b, nil
}

func openCredentials(params transport.ServerParams, token, keySpec string) (transport.ServerParams, error) {
	if keySpec == "" {
		return params, fmt.Errorf("%w: %s requires %s", ErrInvalidConfig, EnvCredentials, EnvCredentialsKey)
	}
	keyID, keys, err := credentials.ParseKeys(keySpec)
	if err != nil {
		return params, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvCredentialsKey, err)
	}
	sealer, err := credentials.NewSealer(keyID, keys)
	if err != nil {
		return params, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvCredentialsKey, err)
	}
	params, err = sealer.Apply(params, token)
	if err != nil {
		return params, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvCredentials, err)
	}
	return params, nil
}

// LoadSchema reads the schema file, or returns an empty schema when no file
// is configured.
func (c *Config) LoadSchema() (*schema.Node, error) {
	if c.SchemaPath == "" {
		return schema.New("")
	}
	return schema.Load(c.SchemaPath)
}

// ClientOptions returns the client options implied by c. When OIDC is
// enabled the issuer is discovered using ctx, which also bounds later token
// requests.
func (c *Config) ClientOptions(ctx context.Context, logger *zap.Logger) ([]client.Option, error) {
	opts := []client.Option{
		client.WithTimeout(c.Timeout),
		client.WithLogger(logger),
	}
	if c.StrictIDs {
		opts = append(opts, client.WithIDMode(jsonrpc.IDStrict))
	}
	if c.UUIDIDs {
		opts = append(opts, client.WithIDGenerator(client.UUIDIDs{}))
	}
	if c.OIDC.Issuer != "" {
		ts, err := auth.ClientCredentials(ctx, c.OIDC.Issuer, c.OIDC.ClientID, c.OIDC.ClientSecret, c.OIDC.Scopes)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithTokenSource(ts))
	}
	return opts, nil
}

// NewClient creates a client for the configured server and schema.
func (c *Config) NewClient(ctx context.Context, logger *zap.Logger) (*client.Client, error) {
	root, err := c.LoadSchema()
	if err != nil {
		return nil, err
	}
	opts, err := c.ClientOptions(ctx, logger)
	if err != nil {
		return nil, err
	}
	return client.New(c.Server, root, opts...), nil
}
