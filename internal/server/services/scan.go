package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/cryptox"
	"github.com/dmitrijs2005/cloudwarden/internal/dbx"
	"github.com/dmitrijs2005/cloudwarden/internal/events"
	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/metrics"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/reports"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
)

// DefaultDedupWindow is how far back an open finding counts as a duplicate.
const DefaultDedupWindow = 7 * 24 * time.Hour

// CredentialCipher seals and opens account credentials. *cryptox.Cipher
// implements it.
type CredentialCipher interface {
	Encrypt(plaintext string) (cryptox.EncryptedBlob, error)
	Decrypt(blob cryptox.EncryptedBlob) (string, error)
}

// ReportArchive stores the report of a successful account scan.
type ReportArchive interface {
	Store(ctx context.Context, r reports.Report) (string, error)
}

type ScanService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cipher      CredentialCipher
	scanners    map[models.Provider]scanners.Factory
	sink        events.Sink
	logger      logging.Logger

	archive     ReportArchive
	now         func() time.Time
	dedupWindow time.Duration
	concurrency int
	locks       *keyLock
}

type ScanOption func(*ScanService)

// WithArchive uploads a JSON report after every successful account scan.
func WithArchive(a ReportArchive) ScanOption {
	return func(s *ScanService) { s.archive = a }
}

func WithClock(now func() time.Time) ScanOption {
	return func(s *ScanService) { s.now = now }
}

func WithDedupWindow(d time.Duration) ScanOption {
	return func(s *ScanService) {
		if d > 0 {
			s.dedupWindow = d
		}
	}
}

// WithConcurrency bounds how many accounts of one fleet scan run at once.
// Values below 2 keep the scan sequential.
func WithConcurrency(n int) ScanOption {
	return func(s *ScanService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewScanService(
	db *sql.DB,
	repomanager repomanager.RepositoryManager,
	cipher CredentialCipher,
	factories map[models.Provider]scanners.Factory,
	sink events.Sink,
	logger logging.Logger,
	opts ...ScanOption,
) *ScanService {
	s := &ScanService{
		db:          db,
		repomanager: repomanager,
		cipher:      cipher,
		scanners:    factories,
		sink:        sink,
		logger:      logger.With("module", "scan"),
		now:         func() time.Time { return time.Now().UTC() },
		dedupWindow: DefaultDedupWindow,
		concurrency: 1,
		locks:       newKeyLock(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sink == nil {
		s.sink = events.Discard
	}
	return s
}

// RunScan scans one account of the tenant, or every active account when
// accountID is empty.
//
// A single-account scan returns the account's error. A fleet scan records a
// failed account in the result and carries on with the rest; it only fails
// when there is nothing to scan or the accounts cannot be loaded.
func (s *ScanService) RunScan(ctx context.Context, tenantID, accountID string) (*models.ScanResult, error) {
	started := time.Now()

	accounts, err := s.resolveAccounts(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	results := make([]models.AccountScanResult, len(accounts))

	if accountID != "" {
		res, err := s.scanAccount(ctx, accounts[0])
		if err != nil {
			return nil, fmt.Errorf("scan account %s: %w", accountID, err)
		}
		results[0] = res
	} else {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i, acc := range accounts {
			g.Go(func() error {
				res, err := s.scanAccount(ctx, acc)
				if err != nil {
					s.logger.Error(ctx, "account scan failed",
						"tenant_id", tenantID, "account_id", acc.ID, "provider", acc.Provider, "error", err)
					res = models.AccountScanResult{
						AccountID: acc.ID,
						ScanRunID: res.ScanRunID,
						Provider:  acc.Provider,
						Error:     err.Error(),
					}
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
	}

	out := &models.ScanResult{
		ScanID:          accountID,
		AccountsScanned: len(accounts),
		Accounts:        results,
	}
	if accountID == "" {
		out.ScanID = common.CombinedScanID
	}
	for _, r := range results {
		out.TotalFindings += r.FindingsCount
		out.SeverityCounts.Merge(r.SeverityCounts)
	}
	out.Duration = time.Since(started)

	s.logger.Info(ctx, "scan finished",
		"tenant_id", tenantID, "scan_id", out.ScanID, "accounts", out.AccountsScanned,
		"findings", out.TotalFindings, "critical", out.Critical, "high", out.High,
		"duration", out.Duration)
	return out, nil
}

func (s *ScanService) resolveAccounts(ctx context.Context, tenantID, accountID string) ([]*models.CloudAccount, error) {
	repo := s.repomanager.Accounts(s.db)

	if accountID != "" {
		acc, err := repo.GetActive(ctx, tenantID, accountID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoAccountsToScan
		}
		if err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
		return []*models.CloudAccount{acc}, nil
	}

	accounts, err := repo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, common.ErrNoAccountsToScan
	}
	return accounts, nil
}

// scanAccount runs the whole pipeline for one account. Once the ScanRun row
// exists it is finished exactly once, whatever happens below.
func (s *ScanService) scanAccount(ctx context.Context, acc *models.CloudAccount) (res models.AccountScanResult, err error) {
	res = models.AccountScanResult{AccountID: acc.ID, Provider: acc.Provider}
	log := s.logger.With("tenant_id", acc.TenantID, "account_id", acc.ID, "provider", acc.Provider)

	run := &models.ScanRun{
		ID:             uuid.NewString(),
		TenantID:       acc.TenantID,
		CloudAccountID: acc.ID,
		Provider:       acc.Provider,
		Status:         models.ScanRunning,
		StartedAt:      s.now(),
	}
	if err := s.repomanager.ScanRuns(s.db).Create(ctx, run); err != nil {
		return res, fmt.Errorf("create scan run: %w", err)
	}
	res.ScanRunID = run.ID

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, "account scan panicked", "panic", r)
			res.Success = false
			err = fmt.Errorf("panic during scan: %v", r)
		}
		s.finishRun(ctx, log, run, res, err)
	}()

	factory, ok := s.scanners[acc.Provider]
	if !ok {
		return res, fmt.Errorf("%w: %s", common.ErrUnsupportedProvider, acc.Provider)
	}

	plaintext, err := s.cipher.Decrypt(acc.Credentials)
	if err != nil {
		return res, fmt.Errorf("decrypt credentials: %w", err)
	}
	creds, err := scanners.ParseCredentials(plaintext)
	if err != nil {
		return res, err
	}

	scanner, err := factory.New(ctx, creds)
	if err != nil {
		return res, fmt.Errorf("build %s scanner: %w", acc.Provider, err)
	}
	raw, err := scanner.ScanAll(ctx)
	if err != nil {
		return res, fmt.Errorf("%s scan: %w", acc.Provider, err)
	}
	log.Debug(ctx, "provider scan returned", "raw_findings", len(raw))

	var fresh []models.SecurityFinding
	for _, pf := range raw {
		f := normalize(acc.Provider, pf, s.now())

		rec, created := s.storeFinding(ctx, log, acc, run.ID, f)
		if !created {
			continue
		}
		fresh = append(fresh, f)

		res.FindingsCount++
		res.SeverityCounts.Add(f.Severity)
		if f.Severity.Known() {
			metrics.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
		} else {
			metrics.FindingsTotal.WithLabelValues("unknown").Inc()
			log.Warn(ctx, "finding has unknown severity", "finding_id", f.FindingID, "severity", f.Severity)
		}

		if f.Severity.Alerting() {
			s.alert(ctx, rec)
		}
	}
	res.Success = true

	s.archiveReport(ctx, log, acc, run.ID, fresh)
	return res, nil
}

// storeFinding deduplicates f and persists it when it is new. Lookup and
// insert run under a per (tenant, title, resource) lock so concurrent
// accounts cannot both insert the same finding.
func (s *ScanService) storeFinding(ctx context.Context, log logging.Logger, acc *models.CloudAccount, runID string, f models.SecurityFinding) (*models.FindingRecord, bool) {
	unlock := s.locks.Lock(acc.TenantID + "\x00" + f.Title + "\x00" + f.ResourceID)
	defer unlock()

	repo := s.repomanager.Findings(s.db)
	now := s.now()

	dup, err := repo.FindOpenDuplicate(ctx, acc.TenantID, f.Title, f.ResourceID, now.Add(-s.dedupWindow))
	switch {
	case err == nil:
		if err := repo.TouchDetectedAt(ctx, dup.ID, now); err != nil {
			log.Warn(ctx, "refresh duplicate failed", "finding_id", dup.ID, "error", err)
		}
		metrics.FindingsDeduplicatedTotal.Inc()
		return nil, false
	case errors.Is(err, common.ErrorNotFound):
	default:
		log.Warn(ctx, "duplicate lookup failed, storing finding as new", "title", f.Title, "resource_id", f.ResourceID, "error", err)
	}

	rec := toRecord(acc, runID, f, now)
	if err := repo.Create(ctx, rec); err != nil {
		metrics.FindingPersistErrorsTotal.Inc()
		log.Error(ctx, "store finding failed", "title", f.Title, "resource_id", f.ResourceID, "error", err)
		return nil, false
	}
	return rec, true
}

func (s *ScanService) alert(ctx context.Context, rec *models.FindingRecord) {
	s.sink.Publish(ctx, events.Event{
		Name:       common.FindingCreatedEvent,
		TenantID:   rec.TenantID,
		OccurredAt: rec.DetectedAt,
		Payload: map[string]any{
			"tenantId":       rec.TenantID,
			"findingId":      rec.ID,
			"cloudAccountId": rec.CloudAccountID,
			"severity":       string(rec.Severity),
			"title":          rec.Title,
			"resourceId":     rec.ResourceID(),
			"category":       rec.Category,
		},
	})
	metrics.AlertsPublishedTotal.Inc()
}

func (s *ScanService) archiveReport(ctx context.Context, log logging.Logger, acc *models.CloudAccount, runID string, fresh []models.SecurityFinding) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Store(ctx, reports.Report{
		TenantID:    acc.TenantID,
		AccountID:   acc.ID,
		ScanRunID:   runID,
		Provider:    acc.Provider,
		GeneratedAt: s.now(),
		Counts:      models.CountSeverities(fresh),
		Findings:    fresh,
	})
	if err != nil {
		log.Warn(ctx, "archive report failed", "scan_run_id", runID, "error", err)
		return
	}
	log.Debug(ctx, "report archived", "key", key)
}

// finishRun moves run to its terminal state and, on success, stamps the
// account's LastScannedAt in the same transaction. It runs on a context
// that survives cancellation of ctx so an aborted scan is still recorded.
func (s *ScanService) finishRun(ctx context.Context, log logging.Logger, run *models.ScanRun, res models.AccountScanResult, scanErr error) {
	ctx = context.WithoutCancel(ctx)

	completed := s.now()
	run.CompletedAt = &completed
	if scanErr != nil {
		run.Status = models.ScanFailed
		run.ErrorMessage = scanErr.Error()
	} else {
		run.Status = models.ScanCompleted
		run.FindingsCount = res.FindingsCount
		run.SeverityCounts = res.SeverityCounts
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.ScanRuns(tx).Finish(ctx, run); err != nil {
			return fmt.Errorf("finish scan run: %w", err)
		}
		if run.Status == models.ScanCompleted {
			if err := s.repomanager.Accounts(tx).MarkScanned(ctx, run.CloudAccountID, completed); err != nil {
				return fmt.Errorf("mark account scanned: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error(ctx, "record scan run failed", "scan_run_id", run.ID, "error", err)
	}

	metrics.ScansTotal.WithLabelValues(string(run.Provider), string(run.Status)).Inc()
	metrics.ScanDurationSeconds.WithLabelValues(string(run.Provider)).Observe(completed.Sub(run.StartedAt).Seconds())
	log.Info(ctx, "account scan finished", "scan_run_id", run.ID, "status", run.Status, "findings", run.FindingsCount)
}

// RecentRuns lists the newest scan runs of a tenant, optionally for one
// account.
func (s *ScanService) RecentRuns(ctx context.Context, tenantID, accountID string, limit int) ([]*models.ScanRun, error) {
	return s.repomanager.ScanRuns(s.db).ListRecent(ctx, tenantID, accountID, limit)
}

// OpenFindings lists open findings of a tenant, newest first.
func (s *ScanService) OpenFindings(ctx context.Context, tenantID, accountID string, limit int) ([]*models.FindingRecord, error) {
	return s.repomanager.Findings(s.db).ListOpen(ctx, tenantID, accountID, limit)
}
