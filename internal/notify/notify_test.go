package notify

import (
	"strings"
	"testing"
)

func TestFormatAlertMessage(t *testing.T) {
	msg := FormatAlertMessage(ReportSummary{
		TypeName:    "Blocked driveway & illegal parking",
		Address:     "61 Chattanooga St",
		Description: "Silver sedan blocking the driveway",
		ReportID:    "17338240",
		CreatedAt:   "2026-08-30T14:05:00Z",
	})

	for _, want := range []string{
		"New Blocked driveway & illegal parking report",
		"61 Chattanooga St",
		"Silver sedan blocking the driveway",
		"2026-08-30T14:05:00Z",
		"Report ID: 17338240",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatAlertMessage_OmitsEmptyLines(t *testing.T) {
	msg := FormatAlertMessage(ReportSummary{})

	if !strings.Contains(msg, "New Unknown report") {
		t.Errorf("missing type fallback:\n%s", msg)
	}
	if !strings.Contains(msg, "Unknown location") {
		t.Errorf("missing address fallback:\n%s", msg)
	}
	if !strings.Contains(msg, "No description") {
		t.Errorf("missing description fallback:\n%s", msg)
	}
	if strings.Contains(msg, "Report ID:") {
		t.Errorf("empty report ID line rendered:\n%s", msg)
	}
	if strings.Contains(msg, "🕐") {
		t.Errorf("empty timestamp line rendered:\n%s", msg)
	}
}
