// Package output renders CLI results as JSON, key=value text, or colored
// human-readable text.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/matthewjhunter/crier/internal/storage"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer

	ok   *color.Color
	bad  *color.Color
	warn *color.Color
	dim  *color.Color
	bold *color.Color
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return NewFormatterWithWriters(format, os.Stdout, os.Stderr)
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
		ok:     color.New(color.FgGreen),
		bad:    color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
		dim:    color.New(color.Faint),
		bold:   color.New(color.Bold),
	}
}

// TickSummary is the result of one scheduler tick.
type TickSummary struct {
	Kind     string        `json:"kind"`
	Due      int           `json:"due,omitempty"`
	Tenants  int           `json:"tenants,omitempty"`
	Posted   int           `json:"posted"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Updated  int           `json:"updated,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Errors   []string      `json:"errors,omitempty"`
}

// OutputTickSummary outputs a tick result in the configured format
func (f *Formatter) OutputTickSummary(s *TickSummary) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(s)
	case FormatText:
		fmt.Fprintf(f.out, "kind=%s\n", s.Kind)
		fmt.Fprintf(f.out, "posted=%d\n", s.Posted)
		fmt.Fprintf(f.out, "failed=%d\n", s.Failed)
		fmt.Fprintf(f.out, "skipped=%d\n", s.Skipped)
		if s.Updated > 0 {
			fmt.Fprintf(f.out, "updated=%d\n", s.Updated)
		}
		return nil
	case FormatHuman:
		f.bold.Fprintf(f.out, "Tick %s", s.Kind)
		fmt.Fprintf(f.out, " finished in %s\n", s.Duration.Round(time.Millisecond))
		if s.Due > 0 {
			fmt.Fprintf(f.out, "  %d due items\n", s.Due)
		}
		if s.Tenants > 0 {
			fmt.Fprintf(f.out, "  %d tenants\n", s.Tenants)
		}
		f.ok.Fprintf(f.out, "  %d posted\n", s.Posted)
		if s.Updated > 0 {
			f.ok.Fprintf(f.out, "  %d metrics updated\n", s.Updated)
		}
		if s.Failed > 0 {
			f.bad.Fprintf(f.out, "  %d failed\n", s.Failed)
		}
		if s.Skipped > 0 {
			f.dim.Fprintf(f.out, "  %d skipped\n", s.Skipped)
		}
		for _, e := range s.Errors {
			f.bad.Fprintf(f.out, "  ! %s\n", e)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputQueue outputs a list of queue items
func (f *Formatter) OutputQueue(items []storage.QueueItem) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(items)
	case FormatText:
		for _, it := range items {
			fmt.Fprintf(f.out, "id=%d\tstatus=%s\tplatform=%s\ttype=%s\tcreated=%s\ttext=%s\n",
				it.ID, it.Status, it.Platform, it.ContentType, it.CreatedAt.Format(time.RFC3339), oneLine(it.Text))
		}
		return nil
	case FormatHuman:
		if len(items) == 0 {
			fmt.Fprintln(f.out, "Queue is empty")
			return nil
		}
		fmt.Fprintf(f.out, "Queue (%d):\n\n", len(items))
		for _, it := range items {
			fmt.Fprintf(f.out, "#%d ", it.ID)
			f.statusColor(it.Status).Fprintf(f.out, "[%s]", it.Status)
			fmt.Fprintf(f.out, " %s / %s\n", it.Platform, it.ContentType)
			fmt.Fprintf(f.out, "  %s\n", truncate(oneLine(it.Text), 200))
			if it.ScheduledFor != nil {
				f.dim.Fprintf(f.out, "  scheduled for %s\n", it.ScheduledFor.Format("2006-01-02 15:04"))
			}
			if it.LastError != "" {
				f.bad.Fprintf(f.out, "  error: %s\n", it.LastError)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPosted outputs posted content
func (f *Formatter) OutputPosted(posts []storage.PostedContent) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(posts)
	case FormatText:
		for _, p := range posts {
			fmt.Fprintf(f.out, "id=%d\tplatform=%s\tpost_id=%s\turl=%s\tposted=%s\n",
				p.ID, p.Platform, p.PlatformPostID, p.PostURL, p.PostedAt.Format(time.RFC3339))
		}
		return nil
	case FormatHuman:
		if len(posts) == 0 {
			fmt.Fprintln(f.out, "Nothing posted yet")
			return nil
		}
		for _, p := range posts {
			f.ok.Fprintf(f.out, "✓ %s", p.Platform)
			fmt.Fprintf(f.out, " %s\n", p.PostedAt.Format("2006-01-02 15:04"))
			fmt.Fprintf(f.out, "  %s\n", truncate(oneLine(p.Text), 200))
			if p.PostURL != "" {
				f.dim.Fprintf(f.out, "  %s\n", p.PostURL)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputKnowledge outputs knowledge entries
func (f *Formatter) OutputKnowledge(entries []storage.KnowledgeEntry) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(entries)
	case FormatText:
		for _, e := range entries {
			fmt.Fprintf(f.out, "id=%d\tcategory=%s\tkey=%s\tpriority=%d\tactive=%t\tvalue=%s\n",
				e.ID, e.Category, e.Key, e.Priority, e.Active, oneLine(e.Value))
		}
		return nil
	case FormatHuman:
		if len(entries) == 0 {
			fmt.Fprintln(f.out, "No knowledge entries")
			return nil
		}
		category := ""
		for _, e := range entries {
			if e.Category != category {
				category = e.Category
				f.bold.Fprintf(f.out, "%s\n", category)
			}
			line := fmt.Sprintf("  %s: %s (priority %d)\n", e.Key, truncate(oneLine(e.Value), 120), e.Priority)
			if e.Active {
				fmt.Fprint(f.out, line)
			} else {
				f.dim.Fprint(f.out, line)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputLogs outputs audit log entries
func (f *Formatter) OutputLogs(entries []storage.LogEntry) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(entries)
	case FormatText:
		for _, e := range entries {
			fmt.Fprintf(f.out, "at=%s\taction=%s\tstatus=%s\terror=%s\n",
				e.CreatedAt.Format(time.RFC3339), e.ActionType, e.Status, oneLine(e.ErrorMessage))
		}
		return nil
	case FormatHuman:
		for _, e := range entries {
			fmt.Fprintf(f.out, "%s %-16s ", e.CreatedAt.Format("2006-01-02 15:04"), e.ActionType)
			switch e.Status {
			case storage.LogSuccess:
				f.ok.Fprintln(f.out, e.Status)
			case storage.LogFailed:
				f.bad.Fprintf(f.out, "%s: %s\n", e.Status, truncate(e.ErrorMessage, 160))
			default:
				f.dim.Fprintln(f.out, e.Status)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDashboard outputs a tenant dashboard
func (f *Formatter) OutputDashboard(d *storage.Dashboard) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(d)
	case FormatText:
		for _, s := range sortedStatuses(d.Queue) {
			fmt.Fprintf(f.out, "queue_%s=%d\n", s, d.Queue[s])
		}
		fmt.Fprintf(f.out, "posted_today=%d\n", d.PostedToday)
		fmt.Fprintf(f.out, "posted_week=%d\n", d.PostedWeek)
		fmt.Fprintf(f.out, "failures_today=%d\n", d.FailuresToday)
		fmt.Fprintf(f.out, "platforms=%s\n", strings.Join(d.EnabledPlatforms, ","))
		fmt.Fprintf(f.out, "avg_engagement_rate=%.4f\n", d.AvgEngagementRate)
		fmt.Fprintf(f.out, "knowledge_entries=%d\n", d.KnowledgeEntries)
		return nil
	case FormatHuman:
		f.bold.Fprintln(f.out, "Queue")
		for _, s := range sortedStatuses(d.Queue) {
			fmt.Fprintf(f.out, "  %-9s %d\n", s, d.Queue[s])
		}
		f.bold.Fprintln(f.out, "Posting")
		fmt.Fprintf(f.out, "  today     %d\n", d.PostedToday)
		fmt.Fprintf(f.out, "  this week %d\n", d.PostedWeek)
		if d.FailuresToday > 0 {
			f.bad.Fprintf(f.out, "  failures  %d\n", d.FailuresToday)
		}
		platforms := "none"
		if len(d.EnabledPlatforms) > 0 {
			platforms = strings.Join(d.EnabledPlatforms, ", ")
		}
		fmt.Fprintf(f.out, "  platforms %s\n", platforms)
		fmt.Fprintf(f.out, "Engagement rate %.2f%%\n", d.AvgEngagementRate*100)
		fmt.Fprintf(f.out, "Knowledge entries %d\n", d.KnowledgeEntries)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputGenerated outputs a freshly generated queue item
func (f *Formatter) OutputGenerated(item *storage.QueueItem) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(item)
	case FormatText:
		fmt.Fprintf(f.out, "id=%d\tstatus=%s\tplatform=%s\ttext=%s\n", item.ID, item.Status, item.Platform, oneLine(item.Text))
		return nil
	case FormatHuman:
		f.ok.Fprintf(f.out, "Queued #%d", item.ID)
		fmt.Fprintf(f.out, " for %s (%s)\n\n%s\n", item.Platform, item.Status, item.Text)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputValue outputs any value as JSON regardless of format; used for
// results without a dedicated layout.
func (f *Formatter) OutputValue(v any) error {
	enc := json.NewEncoder(f.out)
	if f.format == FormatHuman {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Success outputs a confirmation line
func (f *Formatter) Success(format string, args ...interface{}) {
	if f.format == FormatJSON {
		return
	}
	f.ok.Fprintf(f.out, format+"\n", args...)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	f.bad.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	f.warn.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

func (f *Formatter) statusColor(s storage.QueueStatus) *color.Color {
	switch s {
	case storage.StatusPosted:
		return f.ok
	case storage.StatusFailed:
		return f.bad
	case storage.StatusApproved:
		return f.warn
	default:
		return f.dim
	}
}

func sortedStatuses(m map[storage.QueueStatus]int) []storage.QueueStatus {
	out := make([]storage.QueueStatus, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
