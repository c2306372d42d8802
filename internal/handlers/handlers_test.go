package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/manual"
	"github.com/ternarybob/leadwatch/internal/services/profiles"
)

// mockBatchHandler implements interfaces.BatchHandler for testing
type mockBatchHandler struct {
	loadedTab string
	loadedURL string
	result    *models.BatchResult
	err       error
}

func (m *mockBatchHandler) PageLoaded(ctx context.Context, tabID string, url string) error {
	m.loadedTab, m.loadedURL = tabID, url
	return m.err
}

func (m *mockBatchHandler) HandleBatchResult(ctx context.Context, tabID string, result *models.BatchResult) (*models.BatchAck, error) {
	m.result = result
	if m.err != nil {
		return nil, m.err
	}
	return &models.BatchAck{Success: true, NewLeadsCount: len(result.Leads), Outcome: "sent"}, nil
}

// mockExtractor implements Extractor for testing
type mockExtractor struct {
	extractFunc func(ctx context.Context, req manual.Request) (*manual.Result, error)
}

func (m *mockExtractor) Extract(ctx context.Context, req manual.Request) (*manual.Result, error) {
	return m.extractFunc(ctx, req)
}

// mockHistoryService implements HistoryService for testing
type mockHistoryService struct {
	counts map[string]int
}

func (m *mockHistoryService) Count(ctx context.Context, identity string) (int, error) {
	return m.counts[identity], nil
}

func (m *mockHistoryService) Reset(ctx context.Context, identity string) error {
	delete(m.counts, identity)
	return nil
}

type staticStatus struct{}

func (staticStatus) ActiveSessions() int  { return 2 }
func (staticStatus) ConnectedAgents() int { return 1 }

func TestAPIHandler_Health(t *testing.T) {
	h := NewAPIHandler(staticStatus{}, arbor.NewLogger())
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["active_sessions"])
	assert.Equal(t, float64(1), body["connected_agents"])
}

func TestAPIHandler_NotFound(t *testing.T) {
	h := NewAPIHandler(nil, arbor.NewLogger())
	rec := httptest.NewRecorder()
	h.NotFoundHandler(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/api/nope", decodeBody(t, rec)["path"])
}

func TestAgentHandler_PageLoaded(t *testing.T) {
	batches := &mockBatchHandler{}
	h := NewAgentHandler(batches, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.PageLoadedHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/page-loaded",
		strings.NewReader(`{"tabId":"tab-1","url":"https://www.linkedin.com/feed/"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tab-1", batches.loadedTab)
	assert.Equal(t, "https://www.linkedin.com/feed/", batches.loadedURL)

	rec = httptest.NewRecorder()
	h.PageLoadedHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/page-loaded", strings.NewReader(`{"url":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentHandler_BatchResult(t *testing.T) {
	batches := &mockBatchHandler{}
	h := NewAgentHandler(batches, arbor.NewLogger())

	body := `{"tabId":"tab-1","result":{"batchId":"b-1","totalScanned":4,"leads":[{"email":"jane@acme.io","postPreview":"We are hiring"}]}}`
	rec := httptest.NewRecorder()
	h.BatchResultHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/batch-result", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, batches.result)
	assert.Equal(t, 4, batches.result.TotalScanned)

	ack := decodeBody(t, rec)
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, float64(1), ack["newLeadsCount"])
}

func TestAgentHandler_BatchResultFailure(t *testing.T) {
	h := NewAgentHandler(&mockBatchHandler{err: errors.New("storage down")}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.BatchResultHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/batch-result",
		strings.NewReader(`{"tabId":"tab-1","result":{"leads":[]}}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	ack := decodeBody(t, rec)
	assert.Equal(t, false, ack["success"])
	assert.Equal(t, "storage down", ack["error"])
}

func TestAgentHandler_Ping(t *testing.T) {
	h := NewAgentHandler(&mockBatchHandler{}, arbor.NewLogger())
	rec := httptest.NewRecorder()
	h.PingHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestExtractHandler(t *testing.T) {
	var got manual.Request
	ext := &mockExtractor{extractFunc: func(ctx context.Context, req manual.Request) (*manual.Result, error) {
		got = req
		if req.HTML == "" && req.TabID == "" {
			return nil, manual.ErrNoSource
		}
		return &manual.Result{Outcome: manual.OutcomeExtracted, Message: "Extracted 1 new leads", TotalExtracted: 1}, nil
	}}
	h := NewExtractHandler(ext, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.ExtractHandler(rec, httptest.NewRequest(http.MethodPost, "/api/extract",
		strings.NewReader(`{"html":"<div>hi</div>","filters":{"keywords":["hiring"]}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hiring"}, got.Filters.Keywords)
	result := decodeBody(t, rec)["result"].(map[string]interface{})
	assert.Equal(t, manual.OutcomeExtracted, result["outcome"])

	rec = httptest.NewRecorder()
	h.ExtractHandler(rec, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandler(t *testing.T) {
	history := &mockHistoryService{counts: map[string]int{"alice": 12, "sales": 3}}
	h := NewHistoryHandler(history, &mockAccountService{username: "alice"}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "alice", body["profile"])
	assert.Equal(t, float64(12), body["count"])

	rec = httptest.NewRecorder()
	h.HistoryHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/history?profile=sales", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, history.counts, "sales")
	assert.Contains(t, history.counts, "alice")

	rec = httptest.NewRecorder()
	h.HistoryHandler(rec, httptest.NewRequest(http.MethodPost, "/api/history", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProfilesHandler_CRUD(t *testing.T) {
	svc := &mockProfileService{profiles: map[string]*models.Profile{}}
	h := NewProfilesHandler(svc, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.UpdateHandler(rec, httptest.NewRequest(http.MethodPut, "/api/profiles/sales",
		strings.NewReader(`{"name":"Sales","webhookUrl":"https://hooks.example.com/s","filters":{"keywords":["hiring"]}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, svc.profiles, "sales")
	assert.Equal(t, "Sales", svc.profiles["sales"].Name)

	rec = httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/profiles/sales", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.DeleteHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/profiles/sales", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/profiles/sales", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfilesHandler_InvalidProfile(t *testing.T) {
	svc := &mockProfileService{profiles: map[string]*models.Profile{}, saveErr: profiles.ErrInvalidProfile}
	h := NewProfilesHandler(svc, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.CreateHandler(rec, httptest.NewRequest(http.MethodPost, "/api/profiles", strings.NewReader(`{"id":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// mockTabs implements TabLister and TabOpener for testing
type mockTabs struct {
	open map[string]string
}

func (m *mockTabs) Tabs() []string {
	out := make([]string, 0, len(m.open))
	for id := range m.open {
		out = append(out, id)
	}
	return out
}

func (m *mockTabs) Open(ctx context.Context, tabID string, url string) error {
	if _, ok := m.open[tabID]; ok {
		return errors.New("tab already open")
	}
	m.open[tabID] = url
	return nil
}

func (m *mockTabs) CloseTab(tabID string) {
	delete(m.open, tabID)
}

func TestTabsHandler_BrowserMode(t *testing.T) {
	tabs := &mockTabs{open: map[string]string{}}
	h := NewTabsHandler(tabs, tabs, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.OpenHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/tabs",
		strings.NewReader(`{"tabId":"feed","url":"https://www.linkedin.com/feed/"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.OpenHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/tabs", strings.NewReader(`{"tabId":"feed"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/agent/tabs", nil))
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.CloseHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/agent/tabs/feed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, tabs.open)
}

func TestTabsHandler_ExtensionMode(t *testing.T) {
	h := NewTabsHandler(&mockTabs{open: map[string]string{}}, nil, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.OpenHandler(rec, httptest.NewRequest(http.MethodPost, "/api/agent/tabs", strings.NewReader(`{"tabId":"x"}`)))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
