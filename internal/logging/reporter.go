package logging

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ReportFunc delivers a formatted error report somewhere users can see it.
type ReportFunc func(text string)

// Reporter is a zerolog.LevelWriter that forwards error level entries, with
// their fields, to a ReportFunc. The target is set once the Discord session
// is ready; until then reports are dropped.
type Reporter struct {
	mu     sync.RWMutex
	report ReportFunc
}

// SetTarget installs the report destination. nil disables reporting.
func (r *Reporter) SetTarget(fn ReportFunc) {
	r.mu.Lock()
	r.report = fn
	r.mu.Unlock()
}

// Write ignores entries without a level.
func (r *Reporter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter.
func (r *Reporter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel {
		return len(p), nil
	}

	r.mu.RLock()
	fn := r.report
	r.mu.RUnlock()
	if fn == nil {
		return len(p), nil
	}

	// p is reused by zerolog once Write returns
	text := formatReport(level, p)
	go fn(text)
	return len(p), nil
}

var reportSkip = map[string]bool{
	zerolog.TimestampFieldName: true,
	zerolog.LevelFieldName:     true,
	zerolog.MessageFieldName:   true,
}

// formatReport renders an entry as "**level**: message" followed by one
// "key: value" line per field, err first.
func formatReport(level zerolog.Level, p []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		return fmt.Sprintf("**%s**: %s", level, strings.TrimSpace(string(p)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: %v", level, fields[zerolog.MessageFieldName])

	if v, ok := fields[zerolog.ErrorFieldName]; ok {
		fmt.Fprintf(&b, "\n%s: %v", zerolog.ErrorFieldName, v)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !reportSkip[k] && k != zerolog.ErrorFieldName {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, fields[k])
	}
	return b.String()
}
