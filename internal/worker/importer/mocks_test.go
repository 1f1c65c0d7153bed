package importer

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/africashands/platform/internal/model"
)

// --- モック ---

type mockSourceRepo struct {
	mu                 sync.Mutex
	listDueFn          func(ctx context.Context) ([]*model.OpportunitySource, error)
	updateFetchStateFn func(ctx context.Context, src *model.OpportunitySource) error
	updated            []model.OpportunitySource
}

func (m *mockSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.OpportunitySource, error) {
	return nil, nil
}
func (m *mockSourceRepo) Create(ctx context.Context, src *model.OpportunitySource) error { return nil }
func (m *mockSourceRepo) List(ctx context.Context) ([]*model.OpportunitySource, error) {
	return nil, nil
}
func (m *mockSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.OpportunitySource, error) {
	if m.listDueFn != nil {
		return m.listDueFn(ctx)
	}
	return nil, nil
}
func (m *mockSourceRepo) UpdateFetchState(ctx context.Context, src *model.OpportunitySource) error {
	m.mu.Lock()
	m.updated = append(m.updated, *src)
	m.mu.Unlock()
	if m.updateFetchStateFn != nil {
		return m.updateFetchStateFn(ctx, src)
	}
	return nil
}

type mockOpportunityRepo struct {
	byGUID  map[string]*model.Opportunity
	byLink  map[string]*model.Opportunity
	byHash  map[string]*model.Opportunity
	created []*model.Opportunity
	updated []*model.Opportunity
	findErr error
}

func (m *mockOpportunityRepo) FindByID(ctx context.Context, id string) (*model.Opportunity, error) {
	return nil, nil
}
func (m *mockOpportunityRepo) List(ctx context.Context, filter model.OpportunityFilter) ([]*model.Opportunity, error) {
	return nil, nil
}
func (m *mockOpportunityRepo) Create(ctx context.Context, opp *model.Opportunity) error {
	m.created = append(m.created, opp)
	return nil
}
func (m *mockOpportunityRepo) Update(ctx context.Context, opp *model.Opportunity) error {
	m.updated = append(m.updated, opp)
	return nil
}
func (m *mockOpportunityRepo) Delete(ctx context.Context, id string) (bool, error) { return false, nil }
func (m *mockOpportunityRepo) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	return nil
}
func (m *mockOpportunityRepo) FindBySourceAndGUID(ctx context.Context, sourceID, guid string) (*model.Opportunity, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.byGUID[guid], nil
}
func (m *mockOpportunityRepo) FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.Opportunity, error) {
	return m.byLink[link], nil
}
func (m *mockOpportunityRepo) FindBySourceAndHash(ctx context.Context, sourceID, hash string) (*model.Opportunity, error) {
	return m.byHash[hash], nil
}
func (m *mockOpportunityRepo) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type mockUpserter struct {
	result     UpsertResult
	err        error
	calledWith []model.ParsedEntry
}

func (m *mockUpserter) UpsertEntries(ctx context.Context, src *model.OpportunitySource, entries []model.ParsedEntry) (UpsertResult, error) {
	m.calledWith = entries
	return m.result, m.err
}

type mockGuard struct {
	validateErr error
}

func (m *mockGuard) ValidateURL(rawURL string) error { return m.validateErr }
func (m *mockGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

type recordingImport struct {
	mu       sync.Mutex
	failures []string
	parses   int
	success  int
	upserted int
}

func (r *recordingImport) RecordFetchSuccess(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success++
}
func (r *recordingImport) RecordFetchFailure(sourceID string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
}
func (r *recordingImport) RecordParseFailure(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parses++
}
func (r *recordingImport) RecordHTTPStatus(statusCode int)           {}
func (r *recordingImport) RecordFetchLatency(duration time.Duration) {}
func (r *recordingImport) RecordOpportunitiesUpserted(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted += count
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(rawHTML string) string { return rawHTML }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
