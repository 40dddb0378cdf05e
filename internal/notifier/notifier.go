package notifier

import (
	"fmt"
	"sync"

	"github.com/containrrr/shoutrrr"

	"github.com/pbelyaev/kinoscribe/internal/db"
	"github.com/pbelyaev/kinoscribe/internal/domain"
	"github.com/pbelyaev/kinoscribe/internal/eventbus"
	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// lastErrorKey is the settings row used to suppress repeated failure
// notifications for the same error across scan cycles.
const lastErrorKey = "last_error_message"

// Notifier pushes scan results to a single messaging channel via a
// shoutrrr URL. New-film summaries go out after every productive scan;
// scan failures are deduplicated so a persistent outage produces one
// message, not one per cycle.
type Notifier struct {
	repo *db.Repository
	bus  eventbus.Publisher
	url  string

	// send is swappable in tests; defaults to shoutrrr.Send.
	send func(url, message string) error

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewNotifier(repo *db.Repository, bus eventbus.Publisher, notifyURL string) *Notifier {
	return &Notifier{
		repo: repo,
		bus:  bus,
		url:  notifyURL,
		send: shoutrrr.Send,
	}
}

// Start subscribes to the scan lifecycle events that drive outbound
// messages.
func (n *Notifier) Start() error {
	if _, err := shoutrrr.CreateSender(n.url); err != nil {
		return fmt.Errorf("invalid notification URL: %w", err)
	}

	n.bus.Subscribe(domain.ScanCompleted, func(ev domain.Event) {
		data, ok := ev.ParseScanCompletedEventData()
		if !ok {
			logger.Errorf("Notifier: malformed ScanCompleted event")
			return
		}
		n.handleScanCompleted(data)
	})
	n.bus.Subscribe(domain.ScanFailed, func(ev domain.Event) {
		reason := ev.GetStringOr("reason", "unknown error")
		n.handleScanFailed(reason)
	})

	logger.Infof("Notifier started")
	return nil
}

// Stop waits for in-flight sends to finish.
func (n *Notifier) Stop() {
	n.wg.Wait()
}

// handleScanCompleted sends the new-film summary. Scans that found
// nothing new stay silent.
func (n *Notifier) handleScanCompleted(data domain.ScanCompletedEventData) {
	if data.Summary == "" {
		return
	}

	// A productive scan proves the pipeline recovered, so the next
	// failure is news again.
	n.mu.Lock()
	if err := n.repo.SetSetting(lastErrorKey, ""); err != nil {
		logger.Errorf("Notifier: failed to clear last error: %v", err)
	}
	n.mu.Unlock()

	n.deliver(data.Summary)
}

// handleScanFailed sends the failure reason unless the previous cycle
// already reported the identical error.
func (n *Notifier) handleScanFailed(reason string) {
	n.mu.Lock()
	last, _, err := n.repo.GetSetting(lastErrorKey)
	if err != nil {
		logger.Errorf("Notifier: failed to read last error: %v", err)
	}
	if last == reason {
		n.mu.Unlock()
		logger.Debugf("Notifier: suppressing repeated error: %s", reason)
		return
	}
	if err := n.repo.SetSetting(lastErrorKey, reason); err != nil {
		logger.Errorf("Notifier: failed to store last error: %v", err)
	}
	n.mu.Unlock()

	n.deliver(fmt.Sprintf("Scan failed: %s", reason))
}

// deliver sends the message in the background and records the result
// as a notification event.
func (n *Notifier) deliver(message string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		if err := n.send(n.url, message); err != nil {
			logger.Errorf("Notifier: failed to send message: %v", err)
			n.publish(domain.NotificationFailed, map[string]interface{}{
				"message": message,
				"reason":  err.Error(),
			})
			return
		}
		logger.Debugf("Notifier: message sent (%d bytes)", len(message))
		n.publish(domain.NotificationSent, map[string]interface{}{
			"message": message,
		})
	}()
}

func (n *Notifier) publish(eventType domain.EventType, data map[string]interface{}) {
	err := n.bus.Publish(domain.Event{
		AggregateType: domain.AggregateNotification,
		AggregateID:   string(eventType),
		EventType:     eventType,
		EventData:     data,
	})
	if err != nil {
		logger.Errorf("Notifier: failed to publish %s event: %v", eventType, err)
	}
}
