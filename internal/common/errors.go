// Package common defines shared constants and sentinel errors used across
// cloudwarden layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// Scan orchestration errors.
	ErrNoAccountsToScan    = errors.New("no accounts found to scan")
	ErrUnsupportedProvider = errors.New("unsupported cloud provider")
	ErrScanRunFinished     = errors.New("scan run already finished")

	// Credential payload errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
