// Package scanners defines the contract between the scan orchestrator and
// the per-provider security scanners, and the credential payloads those
// scanners are built from.
package scanners

import (
	"context"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

// CloudScanner runs every check a provider supports against one account.
type CloudScanner interface {
	ScanAll(ctx context.Context) ([]models.ProviderFinding, error)
}

// Factory builds a CloudScanner from decrypted credential material.
type Factory interface {
	Provider() models.Provider
	New(ctx context.Context, creds Credentials) (CloudScanner, error)
}

// Registry indexes factories by the provider they serve. A later factory
// for the same provider replaces an earlier one.
func Registry(factories ...Factory) map[models.Provider]Factory {
	m := make(map[models.Provider]Factory, len(factories))
	for _, f := range factories {
		m[f.Provider()] = f
	}
	return m
}
