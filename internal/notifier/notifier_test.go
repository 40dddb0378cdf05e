package notifier

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pbelyaev/kinoscribe/internal/db"
	"github.com/pbelyaev/kinoscribe/internal/domain"
	"github.com/pbelyaev/kinoscribe/internal/testutil"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeSender) send(_, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newTestNotifier(t *testing.T) (*Notifier, *fakeSender, *testutil.MockEventBus, *db.Repository) {
	t.Helper()
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	bus := testutil.NewMockEventBus()
	sender := &fakeSender{}

	// logger:// is a valid no-op shoutrrr target for URL validation
	n := NewNotifier(repo, bus, "logger://")
	n.send = sender.send
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return n, sender, bus, repo
}

func TestNotifier_InvalidURL(t *testing.T) {
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}
	defer repo.Close()

	n := NewNotifier(repo, testutil.NewMockEventBus(), "definitely-not-a-service://")
	if err := n.Start(); err == nil {
		t.Error("Expected error for invalid notification URL")
	}
}

func TestNotifier_SendsScanSummary(t *testing.T) {
	n, sender, bus, _ := newTestNotifier(t)

	summary := "New films in the library - 2.\n\n**** Начало (2010):\n- sidecar file created\n\n"
	bus.Publish(testutil.NewScanCompletedEvent("scan-1", 2, summary))
	n.Stop()

	messages := sender.sent()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0] != summary {
		t.Errorf("Message = %q", messages[0])
	}
	if bus.EventCount(domain.NotificationSent) != 1 {
		t.Error("Expected a NotificationSent event")
	}
}

func TestNotifier_SilentWhenNothingNew(t *testing.T) {
	n, sender, bus, _ := newTestNotifier(t)

	bus.Publish(testutil.NewScanCompletedEvent("scan-1", 0, ""))
	n.Stop()

	if len(sender.sent()) != 0 {
		t.Errorf("Expected no messages for an empty summary, got %v", sender.sent())
	}
}

func TestNotifier_SendsScanFailure(t *testing.T) {
	n, sender, bus, repo := newTestNotifier(t)

	bus.Publish(testutil.NewScanFailedEvent("scan-1", "catalog: request quota exceeded"))
	n.Stop()

	messages := sender.sent()
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if !strings.Contains(messages[0], "quota exceeded") {
		t.Errorf("Message = %q", messages[0])
	}

	stored, ok, err := repo.GetSetting("last_error_message")
	if err != nil || !ok {
		t.Fatalf("Expected last error to be stored: %v", err)
	}
	if stored != "catalog: request quota exceeded" {
		t.Errorf("Stored error = %q", stored)
	}
}

func TestNotifier_DeduplicatesRepeatedFailures(t *testing.T) {
	n, sender, bus, _ := newTestNotifier(t)

	for i := 0; i < 3; i++ {
		bus.Publish(testutil.NewScanFailedEvent("scan-1", "catalog: invalid API credentials"))
	}
	n.Stop()

	if len(sender.sent()) != 1 {
		t.Errorf("Repeated identical failures must send once, got %d messages", len(sender.sent()))
	}
}

func TestNotifier_NewFailureReasonIsSent(t *testing.T) {
	n, sender, bus, _ := newTestNotifier(t)

	bus.Publish(testutil.NewScanFailedEvent("scan-1", "catalog: invalid API credentials"))
	bus.Publish(testutil.NewScanFailedEvent("scan-2", "catalog: request quota exceeded"))
	n.Stop()

	if len(sender.sent()) != 2 {
		t.Errorf("Distinct failure reasons must both be sent, got %d messages", len(sender.sent()))
	}
}

func TestNotifier_ProductiveScanResetsDedupe(t *testing.T) {
	n, sender, bus, _ := newTestNotifier(t)

	bus.Publish(testutil.NewScanFailedEvent("scan-1", "catalog: API unreachable"))
	bus.Publish(testutil.NewScanCompletedEvent("scan-2", 1, "New films in the library - 1.\n"))
	bus.Publish(testutil.NewScanFailedEvent("scan-3", "catalog: API unreachable"))
	n.Stop()

	// failure, summary, then the same failure again after recovery
	if len(sender.sent()) != 3 {
		t.Errorf("Expected 3 messages, got %d: %v", len(sender.sent()), sender.sent())
	}
}

func TestNotifier_SendFailurePublishesEvent(t *testing.T) {
	n, sender, bus, _ := newTestNotifier(t)
	sender.mu.Lock()
	sender.err = errors.New("telegram unreachable")
	sender.mu.Unlock()

	bus.Publish(testutil.NewScanCompletedEvent("scan-1", 1, "New films in the library - 1.\n"))
	n.Stop()

	if bus.EventCount(domain.NotificationFailed) != 1 {
		t.Error("Expected a NotificationFailed event")
	}
	if bus.EventCount(domain.NotificationSent) != 0 {
		t.Error("Expected no NotificationSent event")
	}

	failed := bus.GetEvents(domain.NotificationFailed)[0]
	if reason := failed.GetStringOr("reason", ""); !strings.Contains(reason, "telegram unreachable") {
		t.Errorf("Failure reason = %q", reason)
	}
}
