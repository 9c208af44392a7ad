package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func testNotifier(senders []Sender, events []string) *Notifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewNotifier(senders, events, logger)
}

func TestNotifyDeliversToAllSenders(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	dc := &recordingSender{name: "discord"}
	n := testNotifier([]Sender{tg, dc}, nil)

	err := n.Notify(context.Background(), EventRingDetected, "Fraud ring ring-ab", "details")
	require.NoError(t, err)

	assert.Equal(t, []string{"Fraud ring ring-ab"}, tg.titles)
	assert.Equal(t, []string{"Fraud ring ring-ab"}, dc.titles)
}

func TestNotifyFiltersUnallowedEvents(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	n := testNotifier([]Sender{tg}, []string{EventAlertCritical})

	require.NoError(t, n.Notify(context.Background(), EventRingDetected, "ring", "body"))
	assert.Empty(t, tg.titles)

	require.NoError(t, n.Notify(context.Background(), EventAlertCritical, "alert", "body"))
	assert.Equal(t, []string{"alert"}, tg.titles)
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	n := testNotifier([]Sender{tg}, []string{EventAlertCritical})

	require.NoError(t, n.NotifyAll(context.Background(), "anything", "body"))
	assert.Equal(t, []string{"anything"}, tg.titles)
}

func TestNotifyPartialSenderFailure(t *testing.T) {
	broken := &recordingSender{name: "telegram", err: errors.New("chat not found")}
	working := &recordingSender{name: "discord"}
	n := testNotifier([]Sender{broken, working}, nil)

	err := n.Notify(context.Background(), EventRingDetected, "ring", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, []string{"ring"}, working.titles)
}

func TestNotifyNoSenders(t *testing.T) {
	n := testNotifier(nil, nil)
	assert.NoError(t, n.Notify(context.Background(), EventRingDetected, "ring", "body"))
}

func TestFormatAlert(t *testing.T) {
	title, message := FormatAlert(domain.LunarAlert{
		Severity:    domain.SeverityCritical,
		Title:       "fraud ring ring-ab",
		Description: "2 accounts trading in lockstep",
		EntityIDs:   []string{"cl-1", "cl-2"},
		RingID:      "ring-1",
	})

	assert.Equal(t, "[CRITICAL] fraud ring ring-ab", title)
	assert.Contains(t, message, "2 accounts trading in lockstep")
	assert.Contains(t, message, "Accounts: cl-1, cl-2")
	assert.Contains(t, message, "Ring: ring-1")
}

func TestFormatAlertMinimal(t *testing.T) {
	title, message := FormatAlert(domain.LunarAlert{
		Severity:    domain.SeverityWarning,
		Title:       "correlation spike",
		Description: "pair crossed the suspicious threshold",
	})

	assert.Equal(t, "[WARNING] correlation spike", title)
	assert.NotContains(t, message, "Accounts:")
	assert.NotContains(t, message, "Ring:")
}

func TestFormatRing(t *testing.T) {
	title, message := FormatRing(domain.FraudRing{
		Name:       "ring-deadbeef",
		Severity:   4,
		AccountIDs: []string{"cl-1", "cl-2", "cl-3"},
		Confidence: 0.875,
		Exposure:   1250.5,
		AISummary:  "Cluster of mirrored trades under one referrer.",
	})

	assert.Equal(t, "Fraud ring ring-deadbeef (severity 4)", title)
	assert.Contains(t, message, "Members: cl-1, cl-2, cl-3")
	assert.Contains(t, message, "Confidence: 0.88")
	assert.Contains(t, message, "Exposure: $1250.50")
	assert.Contains(t, message, "Cluster of mirrored trades under one referrer.")
}
