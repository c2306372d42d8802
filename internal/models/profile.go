package models

import "time"

// DefaultProfileID is the identity used when a request names none
const DefaultProfileID = "default"

// Profile is a named identity scope: its own filter rules, delivery target and dedup history
type Profile struct {
	ID         string       `json:"id" badgerhold:"key" toml:"id" yaml:"id" validate:"required,max=64"`
	Name       string       `json:"name" toml:"name" yaml:"name"`
	WebhookURL string       `json:"webhookUrl" toml:"webhook_url" yaml:"webhook_url" validate:"omitempty,url,startswith=http"`
	SheetName  string       `json:"sheetName" toml:"sheet_name" yaml:"sheet_name"`
	Filters    FilterConfig `json:"filters" toml:"filters" yaml:"filters"`
	CreatedAt  time.Time    `json:"createdAt" toml:"-" yaml:"-"`
	UpdatedAt  time.Time    `json:"updatedAt" toml:"-" yaml:"-"`
}

// HistoryRecord is the persisted form of one identity's dedup history
type HistoryRecord struct {
	ProfileID string    `json:"profileId" badgerhold:"key"`
	Keys      []string  `json:"keys"`
	UpdatedAt time.Time `json:"updatedAt"`
}
