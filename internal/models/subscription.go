package models

import "time"

// Subscription is a consumer's standing interest in a set of event types,
// held in-process only: it does not survive an engine restart.
type Subscription struct {
	ID          string    `json:"id"`
	EventTypes  []string  `json:"eventTypes"`
	CallbackURL string    `json:"callbackUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Matches reports whether the subscription is interested in eventType.
// An empty EventTypes list, or one containing "*", matches everything.
func (s *Subscription) Matches(eventType string) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == "*" || t == eventType {
			return true
		}
	}
	return false
}

// NotificationDelivery records the outcome of a single consumer-callback
// POST, kept in-process for diagnostics via /stats.
type NotificationDelivery struct {
	SubscriptionID string    `json:"subscriptionId"`
	GlobalID       string    `json:"globalId"`
	CallbackURL    string    `json:"callbackUrl"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

// AdapterDescriptor identifies one registered ledger adapter.
type AdapterDescriptor struct {
	Name          string
	ChainID       string
	BaseURL       string
	PublishPath   string
	SubscribePath string
	HealthPath    string
}
