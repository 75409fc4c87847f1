package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// csvColumns defines the export column order once, so the header and the
// rows cannot drift apart.
var csvColumns = []struct {
	name  string
	value func(*AuditEvent) string
}{
	{"ID", func(e *AuditEvent) string { return strconv.FormatInt(e.ID, 10) }},
	{"Timestamp", func(e *AuditEvent) string { return e.Timestamp.Format("2006-01-02 15:04:05") }},
	{"EventType", func(e *AuditEvent) string { return string(e.EventType) }},
	{"Status", func(e *AuditEvent) string { return string(e.Status) }},
	{"UserID", func(e *AuditEvent) string { return e.UserID }},
	{"UserEmail", func(e *AuditEvent) string { return e.UserEmail }},
	{"Role", func(e *AuditEvent) string { return e.Role }},
	{"StoreID", func(e *AuditEvent) string { return e.StoreID }},
	{"ResourceType", func(e *AuditEvent) string { return string(e.ResourceType) }},
	{"ResourceID", func(e *AuditEvent) string { return e.ResourceID }},
	{"ResourceName", func(e *AuditEvent) string { return e.ResourceName }},
	{"IPAddress", func(e *AuditEvent) string { return e.IPAddress }},
	{"UserAgent", func(e *AuditEvent) string { return e.UserAgent }},
	{"RequestID", func(e *AuditEvent) string { return e.RequestID }},
	{"Method", func(e *AuditEvent) string { return e.Method }},
	{"Path", func(e *AuditEvent) string { return e.Path }},
	{"StatusCode", func(e *AuditEvent) string { return strconv.Itoa(e.StatusCode) }},
	{"Message", func(e *AuditEvent) string { return e.Message }},
	{"ErrorMessage", func(e *AuditEvent) string { return e.ErrorMessage }},
}

func exportJSON(events []*AuditEvent) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

func exportNDJSON(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(events []*AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	row := make([]string, len(csvColumns))
	for i, col := range csvColumns {
		row[i] = col.name
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		for i, col := range csvColumns {
			row[i] = col.value(event)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
