// Package agents connects the coordinator to the pages it watches: extension
// content scripts over a websocket bridge, or tabs in a headless browser.
package agents

import "github.com/ternarybob/leadwatch/internal/models"

// Message is the envelope exchanged with in-page agents in both directions
type Message struct {
	Type    string               `json:"type"`
	TabID   string               `json:"tabId,omitempty"`
	BatchID string               `json:"batchId,omitempty"`
	URL     string               `json:"url,omitempty"`
	Text    string               `json:"text,omitempty"`
	Status  string               `json:"status,omitempty"`
	Command *models.BatchCommand `json:"command,omitempty"`
	Result  *models.BatchResult  `json:"result,omitempty"`
	Ack     *models.BatchAck     `json:"ack,omitempty"`
}

// StatusReady answers PING
const StatusReady = "ready"
