package models

import (
	"time"

	"github.com/dmitrijs2005/cloudwarden/internal/cryptox"
)

// Provider tags the cloud a CloudAccount lives in.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderAWS, ProviderAzure:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// CloudAccount is a connected AWS account or Azure subscription.
// Credentials hold the sealed credential JSON; plaintext never leaves the
// stack frame that decrypts it.
type CloudAccount struct {
	ID            string
	TenantID      string
	Name          string
	Provider      Provider
	ExternalID    string
	Status        AccountStatus
	Credentials   cryptox.EncryptedBlob
	LastScannedAt *time.Time
	CreatedAt     time.Time
}
