// Package subscription installs consumer-facing subscriptions on every
// adapter and dispatches consumer webhook notifications for events the
// adapters report back, with cache-backed dedup so a consumer is notified
// at most once per event.
package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ied/internal/adapterclient"
	"ied/internal/cache"
	"ied/internal/metrics"
	"ied/internal/models"
)

// Registry is the subset of *registry.Registry the subscription manager
// needs.
type Registry interface {
	All() []*adapterclient.Client
}

// Manager tracks installed subscriptions and dispatches consumer
// notifications for matching events.
type Manager struct {
	registry Registry
	cache    cache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger

	httpClient          *http.Client
	notificationTimeout time.Duration

	mu            sync.RWMutex
	subscriptions map[string]*models.Subscription

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker

	deliveriesMu sync.Mutex
	deliveries   []models.NotificationDelivery
}

// maxTrackedDeliveries bounds the in-memory delivery log surfaced at
// GET /stats; older entries are dropped first-in-first-out.
const maxTrackedDeliveries = 500

// New builds a Manager.
func New(reg Registry, c cache.Cache, m *metrics.Metrics, notificationTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:            reg,
		cache:               c,
		metrics:             m,
		logger:              logger,
		httpClient:          &http.Client{Timeout: notificationTimeout},
		notificationTimeout: notificationTimeout,
		subscriptions:       make(map[string]*models.Subscription),
		breakers:            make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Deliveries returns a snapshot of the most recently attempted consumer
// webhook deliveries, most recent last, for diagnostics at GET /stats.
func (m *Manager) Deliveries() []models.NotificationDelivery {
	m.deliveriesMu.Lock()
	defer m.deliveriesMu.Unlock()

	out := make([]models.NotificationDelivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

func (m *Manager) trackDelivery(d models.NotificationDelivery) {
	m.deliveriesMu.Lock()
	defer m.deliveriesMu.Unlock()

	m.deliveries = append(m.deliveries, d)
	if excess := len(m.deliveries) - maxTrackedDeliveries; excess > 0 {
		m.deliveries = m.deliveries[excess:]
	}
}

// Subscribe installs req on every registered adapter, using callbackURL as
// the adapter-facing notification endpoint (normally the engine's own
// internal webhook route). It records the subscription only if at least one
// adapter accepted it.
func (m *Manager) Subscribe(ctx context.Context, req models.SubscribeRequest, callbackURL string) models.SubscribeResponse {
	id := uuid.NewString()

	clients := m.registry.All()
	results := make([]models.AdapterResult, len(clients))

	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(i int, c *adapterclient.Client) {
			defer wg.Done()
			result := c.Subscribe(ctx, adapterclient.SubscribeRequest{
				EventTypes:           req.EventTypes,
				NotificationEndpoint: callbackURL,
			})
			results[i] = models.AdapterResult{
				Name:      c.Name(),
				Success:   result.Success,
				Timestamp: result.Timestamp,
				Error:     result.Error,
			}
		}(i, client)
	}
	wg.Wait()

	installed := false
	for _, r := range results {
		if r.Success {
			installed = true
			break
		}
	}

	message := "subscription installed"
	if !installed {
		message = "subscription failed on all adapters"
	} else {
		sub := &models.Subscription{
			ID:          id,
			EventTypes:  req.EventTypes,
			CallbackURL: req.NotificationEndpoint,
			CreatedAt:   time.Now(),
		}
		m.mu.Lock()
		m.subscriptions[id] = sub
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SetSubscriptionsActive(m.Count())
		}
	}

	return models.SubscribeResponse{
		SubscriptionID: id,
		Message:        message,
		Adapters:       results,
	}
}

// InstallOn installs a single internal subscription on one adapter client,
// used by bootstrap to wire each adapter's own event-notification callback.
// It records the subscription under its own id and reports whether the
// install succeeded.
func (m *Manager) InstallOn(ctx context.Context, client *adapterclient.Client, eventTypes []string, callbackURL string) models.AdapterResult {
	result := client.Subscribe(ctx, adapterclient.SubscribeRequest{
		EventTypes:           eventTypes,
		NotificationEndpoint: callbackURL,
	})

	if result.Success {
		id := uuid.NewString()
		sub := &models.Subscription{
			ID:          id,
			EventTypes:  eventTypes,
			CallbackURL: callbackURL,
			CreatedAt:   time.Now(),
		}
		m.mu.Lock()
		m.subscriptions[id] = sub
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SetSubscriptionsActive(m.Count())
		}
	}

	return models.AdapterResult{
		Name:      client.Name(),
		Success:   result.Success,
		Timestamp: result.Timestamp,
		Error:     result.Error,
	}
}

// Count returns the number of currently installed subscriptions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// HandleConsumerNotification is invoked when an adapter reports an event
// matching an installed subscription. It dedups via the cache's
// notified-events set, then concurrently POSTs the stripped event to every
// matching subscription's callback URL within the notification timeout,
// marking the event notified once every attempt has completed regardless of
// individual outcome.
func (m *Manager) HandleConsumerNotification(ctx context.Context, event models.Event) error {
	globalID, err := models.ExtractGlobalID(event.DataLocation)
	if err != nil {
		return fmt.Errorf("consumer notification: extracting global id: %w", err)
	}

	notified, err := m.cache.IsNotified(ctx, globalID)
	if err != nil {
		return fmt.Errorf("consumer notification: checking dedup cache: %w", err)
	}
	if notified {
		m.logger.Debug("consumer notification: already notified, skipping", zap.String("globalId", globalID))
		return nil
	}

	matching := m.matchingSubscriptions(event.EventType)
	if len(matching) == 0 {
		m.logger.Debug("consumer notification: no matching subscriptions, not marking notified", zap.String("globalId", globalID))
		return nil
	}
	stripped := models.StripNetwork(event)

	var wg sync.WaitGroup
	for _, sub := range matching {
		wg.Add(1)
		go func(s *models.Subscription) {
			defer wg.Done()
			m.deliver(ctx, s, stripped, globalID)
		}(sub)
	}
	wg.Wait()

	if err := m.cache.MarkNotified(ctx, globalID); err != nil {
		return fmt.Errorf("consumer notification: marking notified: %w", err)
	}
	return nil
}

func (m *Manager) matchingSubscriptions(eventType string) []*models.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Subscription
	for _, sub := range m.subscriptions {
		if sub.Matches(eventType) {
			out = append(out, sub)
		}
	}
	return out
}

func (m *Manager) deliver(ctx context.Context, sub *models.Subscription, event models.Event, globalID string) {
	start := time.Now()
	breaker := m.breakerFor(sub.CallbackURL)

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, m.postEvent(ctx, sub.CallbackURL, event)
	})

	delivery := models.NotificationDelivery{
		SubscriptionID: sub.ID,
		GlobalID:       globalID,
		CallbackURL:    sub.CallbackURL,
		Success:        err == nil,
		AttemptedAt:    start,
	}

	status := "success"
	if err != nil {
		status = "failure"
		delivery.Error = err.Error()
		m.logger.Warn("consumer webhook delivery failed",
			zap.String("subscriptionId", sub.ID), zap.String("callbackUrl", sub.CallbackURL), zap.Error(err))
	}
	m.trackDelivery(delivery)
	if m.metrics != nil {
		m.metrics.RecordNotification(status, time.Since(start).Seconds())
	}
}

func (m *Manager) postEvent(ctx context.Context, url string, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.notificationTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) breakerFor(callbackURL string) *gobreaker.CircuitBreaker {
	m.breakersMu.Lock()
	defer m.breakersMu.Unlock()

	if b, ok := m.breakers[callbackURL]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        callbackURL,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Info("consumer webhook circuit breaker state changed",
				zap.String("callbackUrl", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if m.metrics != nil {
				m.metrics.SetCircuitBreakerState(name, int(to))
			}
		},
	})
	m.breakers[callbackURL] = b
	return b
}
