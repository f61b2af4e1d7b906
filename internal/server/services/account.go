package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
)

type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      CredentialCipher
	logger      logging.Logger
	now         func() time.Time
}

func NewAccountService(db *sql.DB, repomanager repomanager.RepositoryManager, cipher CredentialCipher, logger logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: repomanager,
		cipher:      cipher,
		logger:      logger.With("module", "accounts"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type RegisterAccountInput struct {
	TenantID    string
	Name        string
	Provider    models.Provider
	ExternalID  string
	Credentials scanners.Credentials
}

// Register validates the credential payload for the provider, seals it and
// stores a new active account. The returned account carries only the sealed
// blob.
func (s *AccountService) Register(ctx context.Context, in RegisterAccountInput) (*models.CloudAccount, error) {
	if strings.TrimSpace(in.TenantID) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: tenant and name are required", common.ErrInvalidCredentials)
	}

	externalID := in.ExternalID
	switch in.Provider {
	case models.ProviderAWS:
		if _, err := in.Credentials.AWS(); err != nil {
			return nil, err
		}
	case models.ProviderAzure:
		c, err := in.Credentials.Azure()
		if err != nil {
			return nil, err
		}
		if externalID == "" {
			externalID = c.SubscriptionID
		}
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedProvider, in.Provider)
	}

	payload, err := json.Marshal(in.Credentials)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	blob, err := s.cipher.Encrypt(string(payload))
	if err != nil {
		return nil, err
	}

	acc := &models.CloudAccount{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		Name:        in.Name,
		Provider:    in.Provider,
		ExternalID:  externalID,
		Status:      models.AccountActive,
		Credentials: blob,
		CreatedAt:   s.now(),
	}
	if err := s.repomanager.Accounts(s.db).Create(ctx, acc); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info(ctx, "account registered", "tenant_id", acc.TenantID, "account_id", acc.ID, "provider", acc.Provider)
	return acc, nil
}

// Deactivate excludes the account from future scans.
func (s *AccountService) Deactivate(ctx context.Context, tenantID, accountID string) error {
	if err := s.repomanager.Accounts(s.db).SetStatus(ctx, tenantID, accountID, models.AccountInactive); err != nil {
		return err
	}
	s.logger.Info(ctx, "account deactivated", "tenant_id", tenantID, "account_id", accountID)
	return nil
}

// Tenants lists tenants with at least one active account.
func (s *AccountService) Tenants(ctx context.Context) ([]string, error) {
	return s.repomanager.Accounts(s.db).ListTenants(ctx)
}
