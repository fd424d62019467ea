// Package domain holds the telemetry event published for every recorded story.
package domain

import (
	"encoding/json"
	"time"
)

// StoryEvent is the JSON payload published to Kafka and emitted as an OTel log record.
type StoryEvent struct {
	StoryID   string          `json:"storyId"`
	MappingID int64           `json:"mappingId"`
	UserID    string          `json:"userId,omitempty"`
	EventName string          `json:"eventName"`
	Points    int             `json:"points"`
	Object    json.RawMessage `json:"object,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
