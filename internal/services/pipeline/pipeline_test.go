package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
	"github.com/ternarybob/leadwatch/internal/services/dedup"
	"github.com/ternarybob/leadwatch/internal/services/delivery"
)

type memoryHistory struct {
	mu   sync.Mutex
	data map[string][]string
}

func (m *memoryHistory) LoadHistory(ctx context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.data[id]...), nil
}

func (m *memoryHistory) SaveHistory(ctx context.Context, id string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append([]string{}, keys...)
	return nil
}

func (m *memoryHistory) DeleteHistory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

type recordingSender struct {
	mu       sync.Mutex
	fail     bool
	payloads []models.WebhookPayload
}

func (r *recordingSender) Send(ctx context.Context, endpoint string, payload interface{}) delivery.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return delivery.Result{Error: "connection refused"}
	}
	r.payloads = append(r.payloads, payload.(models.WebhookPayload))
	return delivery.Result{Success: true}
}

func newTestPipeline(sender Sender) (*Pipeline, *dedup.Store) {
	store := dedup.NewStore(&memoryHistory{data: map[string][]string{}}, dedup.DefaultCapacity, arbor.NewLogger())
	return NewPipeline(store, sender, arbor.NewLogger()), store
}

func janeBatch() Batch {
	return Batch{
		Identity:     "default",
		WebhookURL:   "https://hooks.example.com/leads",
		SheetName:    "Leads",
		Keywords:     []string{"hiring"},
		Source:       "WATCH_MODE_AUTOPILOT",
		TotalScanned: 2,
		Leads:        []models.Lead{{Name: "Jane Doe", Email: "jane@acme.co"}},
	}
}

func TestProcess_DeliversAndCommits(t *testing.T) {
	sender := &recordingSender{}
	p, store := newTestPipeline(sender)
	ctx := context.Background()

	report, err := p.Process(ctx, janeBatch())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, report.Outcome)
	assert.Equal(t, 1, report.Delivered)

	require.Len(t, sender.payloads, 1)
	meta := sender.payloads[0].Meta
	assert.Equal(t, "Leads", meta.SheetName)
	assert.Equal(t, 2, meta.TotalScanned)
	assert.Equal(t, 1, meta.TotalExtracted)
	assert.Equal(t, []string{"hiring"}, meta.Keywords)
	assert.Equal(t, "WATCH_MODE_AUTOPILOT", meta.Source)
	assert.NotEmpty(t, meta.Timestamp)

	dup, err := store.IsDuplicate(ctx, "default", "jane@acme.co")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestProcess_IdempotentSecondRun(t *testing.T) {
	sender := &recordingSender{}
	p, store := newTestPipeline(sender)
	ctx := context.Background()

	_, err := p.Process(ctx, janeBatch())
	require.NoError(t, err)
	before, err := store.History(ctx, "default")
	require.NoError(t, err)

	report, err := p.Process(ctx, janeBatch())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAllDuplicates, report.Outcome)
	assert.Zero(t, report.Delivered)
	assert.Equal(t, "Found 1 leads but all were duplicates", report.Message())

	// No webhook call for the repeat
	assert.Len(t, sender.payloads, 1)

	after, err := store.History(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, before.Keys(), after.Keys())
}

func TestProcess_SendFailureLeavesKeysUncommitted(t *testing.T) {
	sender := &recordingSender{fail: true}
	p, store := newTestPipeline(sender)
	ctx := context.Background()

	report, err := p.Process(ctx, janeBatch())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSendFailed, report.Outcome)
	assert.Contains(t, report.Message(), "connection refused")

	count, err := store.Count(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, count)

	// The lead is resent once the webhook recovers
	sender.fail = false
	report, err = p.Process(ctx, janeBatch())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, report.Outcome)
}

func TestProcess_NoMatches(t *testing.T) {
	sender := &recordingSender{}
	p, _ := newTestPipeline(sender)

	report, err := p.Process(context.Background(), Batch{Identity: "default"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatches, report.Outcome)
	assert.Equal(t, "No new leads found", report.Message())

	batch := janeBatch()
	batch.Leads = []models.Lead{{Name: "No key"}}
	report, err = p.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatches, report.Outcome)
	assert.Equal(t, 1, report.Keyless)
	assert.Empty(t, sender.payloads)
}

func TestProcess_WithinBatchDuplicatesSentOnce(t *testing.T) {
	sender := &recordingSender{}
	p, _ := newTestPipeline(sender)

	batch := janeBatch()
	batch.Leads = append(batch.Leads, models.Lead{Name: "Jane again", Email: "JANE@acme.co"})

	report, err := p.Process(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Duplicates)
	require.Len(t, sender.payloads, 1)
	assert.Len(t, sender.payloads[0].Leads, 1)
}

func TestProcess_SharedIdentityAcrossTabsSendsOnce(t *testing.T) {
	sender := &recordingSender{}
	p, _ := newTestPipeline(sender)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Process(context.Background(), janeBatch())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, sender.payloads, 1)
}
