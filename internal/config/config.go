package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds the provisioning configuration loaded from environment variables.
// Command-line flags override these values in each binary.
type Config struct {
	// SecretsDir is the directory every default artifact path is derived from.
	SecretsDir string `env:"SECRETS_DIR" envDefault:"secrets"`
	// SwarmKeyPath is the pre-shared swarm key output (default <SecretsDir>/swarm.key).
	SwarmKeyPath string `env:"SWARM_KEY_PATH"`
	// ClusterSecretPath is the persisted cluster secret (default <SecretsDir>/cluster.secret).
	ClusterSecretPath string `env:"CLUSTER_SECRET_PATH"`
	// ClusterEnvPath is the env-file mirror of the secret (default <SecretsDir>/cluster.env).
	ClusterEnvPath string `env:"CLUSTER_ENV_PATH"`
	// ClusterEnvVar is the variable name written into the env file.
	ClusterEnvVar string `env:"CLUSTER_ENV_VAR" envDefault:"CLUSTER_SECRET"`
	// BootstrapPlaceholder is the literal token patch-bootstrap replaces.
	BootstrapPlaceholder string `env:"BOOTSTRAP_PLACEHOLDER" envDefault:"REPLACE_ME"`
	// BootstrapIdentityPath is the bootstrap peer private key (default <SecretsDir>/bootstrap.key).
	BootstrapIdentityPath string `env:"BOOTSTRAP_IDENTITY_PATH"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// StorageType selects where generated artifacts are mirrored: "local", "s3" or "" (disabled).
	StorageType string `env:"STORAGE_TYPE"`
	// LocalStoragePath is the backup directory for the local mirror.
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./secrets-backup"`
	// AWSRegion is the AWS region for S3 uploads.
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`
	// S3Bucket is the target S3 bucket name.
	S3Bucket string `env:"S3_BUCKET"`
	// S3Prefix is prepended to every object key.
	S3Prefix string `env:"S3_PREFIX"`
	// S3Endpoint is an optional custom endpoint (MinIO and other S3-compatible stores).
	S3Endpoint string `env:"S3_ENDPOINT"`
	// S3PathStyle enables path-style addressing.
	S3PathStyle bool `env:"S3_PATH_STYLE" envDefault:"false"`

	// AgeRecipients are age X25519 public keys the cluster secret is sealed to.
	AgeRecipients []string `env:"SECRETS_AGE_RECIPIENTS" envSeparator:","`
}

// Load parses the environment into a Config and fills derived paths.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.SwarmKeyPath = orDefault(c.SwarmKeyPath, filepath.Join(c.SecretsDir, "swarm.key"))
	c.ClusterSecretPath = orDefault(c.ClusterSecretPath, filepath.Join(c.SecretsDir, "cluster.secret"))
	c.ClusterEnvPath = orDefault(c.ClusterEnvPath, filepath.Join(c.SecretsDir, "cluster.env"))
	c.BootstrapIdentityPath = orDefault(c.BootstrapIdentityPath, filepath.Join(c.SecretsDir, "bootstrap.key"))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
