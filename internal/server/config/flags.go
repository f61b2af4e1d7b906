package config

import (
	"flag"

	"github.com/dmitrijs2005/cloudwarden/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string     PostgreSQL DSN
//	-k string     name of the env var holding the credential key
//	-l string     log level
//	-a string     ops HTTP bind address
//	-i duration   scheduler interval (e.g. "6h", "0" disables)
//	-n int        tenants scanned in parallel by the scheduler
//	-m int        accounts scanned in parallel per tenant
//	-w duration   dedup window
//	-r bool       archive reports to S3
//	-u/-p string  S3 user / password
//	-b/-g/-e      S3 bucket / region / base endpoint
//
// args are filtered with flagx.FilterArgs first, so flags owned by other
// components never reach this FlagSet.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-k", "-l", "-a", "-i", "-n", "-m", "-w", "-r", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("cloudwarden", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.KeyEnvVar, "k", config.KeyEnvVar, "env var holding the credential encryption key")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "ops HTTP address")
	fs.DurationVar(&config.ScanInterval, "i", config.ScanInterval, "scheduler interval")
	fs.IntVar(&config.TenantConcurrency, "n", config.TenantConcurrency, "tenant concurrency")
	fs.IntVar(&config.AccountConcurrency, "m", config.AccountConcurrency, "account concurrency")
	fs.DurationVar(&config.DedupWindow, "w", config.DedupWindow, "dedup window")
	fs.BoolVar(&config.ReportsEnabled, "r", config.ReportsEnabled, "archive scan reports to S3")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	return fs.Parse(args)
}
