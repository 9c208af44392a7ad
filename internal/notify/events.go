package notify

import (
	"fmt"
	"strings"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Event names understood by the notifier filter.
const (
	EventAlertCritical  = "alert_critical"
	EventRingDetected   = "ring_detected"
	EventAnalysisFailed = "analysis_failed"
)

// FormatAlert renders one alert as a notification title and body.
func FormatAlert(a domain.LunarAlert) (title, message string) {
	title = fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Severity)), a.Title)

	var b strings.Builder
	b.WriteString(a.Description)
	if len(a.EntityIDs) > 0 {
		b.WriteString("\nAccounts: ")
		b.WriteString(strings.Join(a.EntityIDs, ", "))
	}
	if a.RingID != "" {
		b.WriteString("\nRing: ")
		b.WriteString(a.RingID)
	}
	return title, b.String()
}

// FormatRing renders a detected or updated ring as a notification.
func FormatRing(r domain.FraudRing) (title, message string) {
	title = fmt.Sprintf("Fraud ring %s (severity %d)", r.Name, r.Severity)

	var b strings.Builder
	fmt.Fprintf(&b, "Members: %s\n", strings.Join(r.AccountIDs, ", "))
	fmt.Fprintf(&b, "Confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(&b, "Exposure: $%.2f", r.Exposure)
	if r.AISummary != "" {
		b.WriteString("\n")
		b.WriteString(r.AISummary)
	}
	return title, b.String()
}
