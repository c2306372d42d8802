package models

import "time"

// Agent message types exchanged with in-page agents
const (
	MessageRunBatch    = "RUN_BATCH"
	MessageReload      = "RELOAD"
	MessageBadge       = "BADGE"
	MessageNotice      = "NOTICE"
	MessagePageLoaded  = "PAGE_LOADED"
	MessageBatchResult = "BATCH_RESULT"
	MessagePing        = "PING"
	MessageAck         = "ACK"
)

// ErrorKindContextInvalidated marks a result from an agent whose host context is gone
const ErrorKindContextInvalidated = "context_invalidated"

// Badge texts shown on a watched tab
const (
	BadgeActive   = "ON"
	BadgeNewLeads = "NEW"
	BadgeCleared  = ""
)

// BatchCommand asks an in-page agent to run one extraction batch
type BatchCommand struct {
	BatchID     string       `json:"batchId"`
	TabID       string       `json:"tabId"`
	Filters     FilterConfig `json:"filters"`
	ScrollCount int          `json:"scrollCount"`
}

// BatchResult is what an in-page agent reports after a batch
type BatchResult struct {
	BatchID      string         `json:"batchId,omitempty"`
	Leads        []Lead         `json:"leads"`
	TotalScanned int            `json:"totalScanned"`
	Rejected     map[string]int `json:"rejected,omitempty"`
	Fatal        bool           `json:"fatal,omitempty"`
	ErrorKind    string         `json:"errorKind,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// ContextInvalidated reports whether the agent lost its host context
func (r *BatchResult) ContextInvalidated() bool {
	return r.Fatal && r.ErrorKind == ErrorKindContextInvalidated
}

// BatchAck is the coordinator's reply to a BATCH_RESULT
type BatchAck struct {
	Success       bool   `json:"success"`
	NewLeadsCount int    `json:"newLeadsCount"`
	Outcome       string `json:"outcome,omitempty"`
	Warning       string `json:"warning,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WebhookPayload is the single JSON body posted per batch
type WebhookPayload struct {
	Leads []Lead      `json:"leads"`
	Meta  WebhookMeta `json:"meta"`
}

// WebhookMeta describes the batch a payload came from
type WebhookMeta struct {
	SheetName      string   `json:"sheetName"`
	TotalScanned   int      `json:"totalScanned"`
	TotalExtracted int      `json:"totalExtracted"`
	Keywords       []string `json:"keywords"`
	Source         string   `json:"source"`
	Timestamp      string   `json:"timestamp"`
}

// NewWebhookMeta stamps meta with an ISO-8601 UTC timestamp
func NewWebhookMeta(sheetName string, totalScanned, totalExtracted int, keywords []string, source string, now time.Time) WebhookMeta {
	if keywords == nil {
		keywords = []string{}
	}
	return WebhookMeta{
		SheetName:      sheetName,
		TotalScanned:   totalScanned,
		TotalExtracted: totalExtracted,
		Keywords:       keywords,
		Source:         source,
		Timestamp:      now.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}
