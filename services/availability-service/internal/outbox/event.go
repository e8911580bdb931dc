package outbox

import (
	"encoding/json"
	"time"
)

// TopicSettingsUpdated carries scheduling-settings change notifications. Every
// running instance consumes it to drop its cached settings.
const TopicSettingsUpdated = "scheduling.settings.updated.v1"

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// SettingsUpdatedPayload is the body of a settings-updated event.
type SettingsUpdatedPayload struct {
	BusinessID string    `json:"businessId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func SettingsUpdated(businessID string, updatedAt time.Time) Event {
	payload, _ := json.Marshal(SettingsUpdatedPayload{BusinessID: businessID, UpdatedAt: updatedAt.UTC()})
	return Event{
		AggregateType: "scheduling_settings",
		AggregateID:   businessID,
		EventType:     TopicSettingsUpdated,
		Payload:       payload,
	}
}
