package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/cloudwarden/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration, used only while
// decoding. Durations go through timex.Duration so both "6h" and integer
// nanoseconds are accepted. Pointer fields distinguish "absent" from zero.
type FileConfig struct {
	DatabaseDSN             string          `json:"database_dsn" yaml:"database_dsn"`
	KeyEnvVar               string          `json:"key_env_var" yaml:"key_env_var"`
	LogLevel                string          `json:"log_level" yaml:"log_level"`
	LogFormat               string          `json:"log_format" yaml:"log_format"`
	HTTPAddr                string          `json:"http_addr" yaml:"http_addr"`
	ScanInterval            *timex.Duration `json:"scan_interval" yaml:"scan_interval"`
	TenantConcurrency       int             `json:"tenant_concurrency" yaml:"tenant_concurrency"`
	AccountConcurrency      int             `json:"account_concurrency" yaml:"account_concurrency"`
	DedupWindow             *timex.Duration `json:"dedup_window" yaml:"dedup_window"`
	ReportsEnabled          *bool           `json:"reports_enabled" yaml:"reports_enabled"`
	S3RootUser              string          `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword          string          `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                string          `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                string          `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint          string          `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	AzureAuthorityHost      string          `json:"azure_authority_host" yaml:"azure_authority_host"`
	AzureManagementEndpoint string          `json:"azure_management_endpoint" yaml:"azure_management_endpoint"`
}

// parseFile overlays values from a JSON or YAML file onto config. The format
// is picked by extension: .yaml and .yml are YAML, everything else JSON.
// Fields missing from the file keep their current value.
func parseFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return err
	}

	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.KeyEnvVar, c.KeyEnvVar)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.HTTPAddr, c.HTTPAddr)
	if c.ScanInterval != nil {
		config.ScanInterval = c.ScanInterval.Duration
	}
	if c.TenantConcurrency > 0 {
		config.TenantConcurrency = c.TenantConcurrency
	}
	if c.AccountConcurrency > 0 {
		config.AccountConcurrency = c.AccountConcurrency
	}
	if c.DedupWindow != nil {
		config.DedupWindow = c.DedupWindow.Duration
	}
	if c.ReportsEnabled != nil {
		config.ReportsEnabled = *c.ReportsEnabled
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.AzureAuthorityHost, c.AzureAuthorityHost)
	setString(&config.AzureManagementEndpoint, c.AzureManagementEndpoint)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
