package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/cryptox"
	"github.com/dmitrijs2005/cloudwarden/internal/dbx"
	"github.com/dmitrijs2005/cloudwarden/internal/events"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/reports"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/findings"
	"github.com/dmitrijs2005/cloudwarden/internal/server/repositories/scanruns"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
)

// --- accounts ---

type fakeAccountsRepo struct {
	mu       sync.Mutex
	accounts []*models.CloudAccount
	listErr  error
	getErr   error
	created  []*models.CloudAccount
	scanned  map[string]time.Time
	statuses map[string]models.AccountStatus
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *models.CloudAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAccountsRepo) GetActive(_ context.Context, tenantID, accountID string) (*models.CloudAccount, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.accounts {
		if a.TenantID == tenantID && a.ID == accountID && a.Status == models.AccountActive {
			return a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) ListActive(_ context.Context, tenantID string) ([]*models.CloudAccount, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.CloudAccount
	for _, a := range f.accounts {
		if a.TenantID == tenantID && a.Status == models.AccountActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountsRepo) ListTenants(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, a := range f.accounts {
		if a.Status == models.AccountActive && !seen[a.TenantID] {
			seen[a.TenantID] = true
			out = append(out, a.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAccountsRepo) SetStatus(_ context.Context, tenantID, accountID string, status models.AccountStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.TenantID == tenantID && a.ID == accountID {
			if f.statuses == nil {
				f.statuses = map[string]models.AccountStatus{}
			}
			f.statuses[accountID] = status
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeAccountsRepo) MarkScanned(_ context.Context, accountID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanned == nil {
		f.scanned = map[string]time.Time{}
	}
	f.scanned[accountID] = at
	return nil
}

// --- scan runs ---

type fakeScanRunsRepo struct {
	mu        sync.Mutex
	runs      map[string]*models.ScanRun
	finishes  map[string]int
	createErr error
	finishErr error
}

func (f *fakeScanRunsRepo) Create(_ context.Context, run *models.ScanRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runs == nil {
		f.runs = map[string]*models.ScanRun{}
	}
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeScanRunsRepo) Finish(_ context.Context, run *models.ScanRun) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishes == nil {
		f.finishes = map[string]int{}
	}
	f.finishes[run.ID]++
	stored, ok := f.runs[run.ID]
	if !ok || stored.Status != models.ScanRunning {
		return common.ErrScanRunFinished
	}
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeScanRunsRepo) ListRecent(_ context.Context, tenantID, accountID string, limit int) ([]*models.ScanRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ScanRun
	for _, r := range f.runs {
		if r.TenantID == tenantID && (accountID == "" || r.CloudAccountID == accountID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeScanRunsRepo) byAccount(accountID string) []*models.ScanRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ScanRun
	for _, r := range f.runs {
		if r.CloudAccountID == accountID {
			out = append(out, r)
		}
	}
	return out
}

// --- findings ---

type fakeFindingsRepo struct {
	mu         sync.Mutex
	records    []*models.FindingRecord
	lookupErr  error
	touchErr   error
	createErrs map[string]error // by title
	touched    map[string]time.Time
	lookups    int
}

func (f *fakeFindingsRepo) FindOpenDuplicate(_ context.Context, tenantID, title, resourceID string, since time.Time) (*models.FindingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var best *models.FindingRecord
	for _, r := range f.records {
		if r.TenantID != tenantID || r.Title != title || r.ResourceID() != resourceID ||
			r.Status != models.FindingOpen || r.DetectedAt.Before(since) {
			continue
		}
		if best == nil || r.DetectedAt.After(best.DetectedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	return best, nil
}

func (f *fakeFindingsRepo) TouchDetectedAt(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	if f.touched == nil {
		f.touched = map[string]time.Time{}
	}
	f.touched[id] = at
	for _, r := range f.records {
		if r.ID == id {
			r.DetectedAt = at
		}
	}
	return nil
}

func (f *fakeFindingsRepo) Create(_ context.Context, rec *models.FindingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErrs[rec.Title]; err != nil {
		return err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeFindingsRepo) ListOpen(_ context.Context, tenantID, accountID string, limit int) ([]*models.FindingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.FindingRecord
	for _, r := range f.records {
		if r.TenantID == tenantID && (accountID == "" || r.CloudAccountID == accountID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeFindingsRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeFindingsRepo) byTitle(title string) *models.FindingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Title == title {
			return r
		}
	}
	return nil
}

// --- repo manager ---

type fakeRepoManager struct {
	a *fakeAccountsRepo
	r *fakeScanRunsRepo
	f *fakeFindingsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{a: &fakeAccountsRepo{}, r: &fakeScanRunsRepo{}, f: &fakeFindingsRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return m.a }
func (m *fakeRepoManager) ScanRuns(dbx.DBTX) scanruns.Repository        { return m.r }
func (m *fakeRepoManager) Findings(dbx.DBTX) findings.Repository        { return m.f }

// --- scanners ---

type fakeScanner struct {
	findings []models.ProviderFinding
	err      error
	panics   bool
}

func (s *fakeScanner) ScanAll(ctx context.Context) ([]models.ProviderFinding, error) {
	if s.panics {
		var m map[string]int
		m["boom"]++
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.findings, nil
}

// fakeFactory hands out one scanner per external account id.
type fakeFactory struct {
	provider models.Provider
	mu       sync.Mutex
	byKey    map[string]*fakeScanner
	newErr   error
	seen     []scanners.Credentials
}

func (f *fakeFactory) Provider() models.Provider { return f.provider }

func (f *fakeFactory) New(_ context.Context, creds scanners.Credentials) (scanners.CloudScanner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, creds)
	if f.newErr != nil {
		return nil, f.newErr
	}
	key, _ := creds["accessKeyId"].(string)
	if key == "" {
		key, _ = creds["subscriptionId"].(string)
	}
	if sc, ok := f.byKey[key]; ok {
		return sc, nil
	}
	return &fakeScanner{}, nil
}

// --- sink and archive ---

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(_ context.Context, e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) all() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

type fakeArchive struct {
	mu      sync.Mutex
	stored  []reports.Report
	failErr error
}

func (a *fakeArchive) Store(_ context.Context, r reports.Report) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return "", a.failErr
	}
	a.stored = append(a.stored, r)
	return reports.Key(r.TenantID, r.AccountID, r.ScanRunID), nil
}

// --- helpers ---

func newCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	return cryptox.NewCipher(cryptox.StaticKeyProvider(key))
}

// newTxDB returns a sqlmock DB expecting n begin/commit pairs in any order.
func newTxDB(t *testing.T, n int) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func sealedAccount(t *testing.T, c *cryptox.Cipher, tenant, id string, p models.Provider, creds string) *models.CloudAccount {
	t.Helper()
	blob, err := c.Encrypt(creds)
	require.NoError(t, err)
	return &models.CloudAccount{
		ID: id, TenantID: tenant, Name: id, Provider: p,
		Status: models.AccountActive, Credentials: blob,
	}
}

func awsCreds(key string) string {
	return `{"accessKeyId":"` + key + `","secretAccessKey":"s","region":"eu-west-1"}`
}

func pf(title, severity, resource string, compliance ...string) models.ProviderFinding {
	return models.ProviderFinding{
		FindingID:    "aws-" + title,
		Title:        title,
		Description:  title + " description",
		Severity:     severity,
		Category:     "Identity",
		ResourceID:   resource,
		ResourceType: "AWS::IAM::User",
		Region:       "eu-west-1",
		Compliance:   compliance,
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
