package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"fencetrack/pkg/logging"
)

// key=value or key="value with spaces"
var logfmtPair = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// maxStatusValue drops long values (ids, wrapped errors) from the status line.
const maxStatusValue = 20

// logRecord is a parsed logfmt line. Head is the msg or event value.
type logRecord struct {
	At    time.Time
	Head  string
	Attrs map[string]string
}

func parseLogfmt(raw string, headKey string) (logRecord, bool) {
	rec := logRecord{Attrs: map[string]string{}}
	for _, m := range logfmtPair.FindAllStringSubmatch(raw, -1) {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				rec.At = t
			}
		case "level":
		case headKey:
			rec.Head = val
		default:
			rec.Attrs[key] = val
		}
	}
	return rec, rec.Head != ""
}

// EventLine is the last tracking event.
type EventLine struct {
	Event  string            `json:"event"`
	At     *time.Time        `json:"at,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Raw    string            `json:"raw"`
}

func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"log": formatLogLine(logging.LastLogLine())})
}

func handleLatestEvent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, parseEventLine(logging.LastEvent()))
}

func parseEventLine(raw string) EventLine {
	line := EventLine{Raw: raw}
	rec, ok := parseLogfmt(raw, "event")
	if !ok {
		return line
	}
	line.Event = rec.Head
	if !rec.At.IsZero() {
		line.At = &rec.At
	}
	if len(rec.Attrs) > 0 {
		line.Fields = rec.Attrs
	}
	return line
}

// formatLogLine condenses a server log record for the status bar:
// "HH:MM:SS msg (key=value, ...)" with keys sorted and long values dropped.
// Unparseable lines pass through.
func formatLogLine(raw string) string {
	rec, ok := parseLogfmt(raw, "msg")
	if !ok {
		return raw
	}

	params := make([]string, 0, len(rec.Attrs))
	for k, v := range rec.Attrs {
		if len(v) > maxStatusValue {
			continue
		}
		params = append(params, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(params)

	out := rec.Head
	if !rec.At.IsZero() {
		out = rec.At.Format("15:04:05") + " " + out
	}
	if len(params) > 0 {
		out += " (" + strings.Join(params, ", ") + ")"
	}
	return out
}
