package history

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/tuimer/internal/countdown"
	"github.com/verte-zerg/tuimer/internal/model"
	"github.com/verte-zerg/tuimer/internal/store"
)

const firedLayout = "2006-01-02 15:04:05"

// Report contains the alarm history for rendering.
type Report struct {
	Alarms    []model.AlarmRecord
	Summaries []model.LabelSummary
}

// BuildReport loads alarms matching cfg and the per-label summary.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	alarms, err := st.ListAlarms(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list alarms: %w", err)
	}
	sums, err := st.SummarizeByLabel(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to summarize alarms: %w", err)
	}
	if cfg.Label != "" {
		filtered := sums[:0]
		for _, s := range sums {
			if s.Label == cfg.Label {
				filtered = append(filtered, s)
			}
		}
		sums = filtered
	}
	return Report{Alarms: alarms, Summaries: sums}, nil
}

// Lines renders the report as plain text lines in the given location.
func (r Report) Lines(loc *time.Location) []string {
	if len(r.Alarms) == 0 {
		return []string{"No alarms recorded yet."}
	}
	if loc == nil {
		loc = time.Local
	}

	alarms := newTable(
		column{title: "Fired"},
		column{title: "Timer"},
		column{title: "Length", align: alignRight},
		column{title: "Sound"},
		column{title: "Notified"},
	)
	for _, a := range r.Alarms {
		alarms.add(
			a.FiredAt.In(loc).Format(firedLayout),
			a.Label,
			countdown.FormatTime(a.InitialSeconds),
			yesNo(a.Sounded),
			yesNo(a.Notified),
		)
	}
	lines := alarms.lines()

	if len(r.Summaries) > 0 {
		sums := newTable(
			column{title: "Timer"},
			column{title: "Alarms", align: alignRight},
			column{title: "Sounded", align: alignRight},
			column{title: "Notified", align: alignRight},
			column{title: "Last"},
		)
		for _, s := range r.Summaries {
			sums.add(
				s.Label,
				strconv.Itoa(s.Alarms),
				strconv.Itoa(s.Sounded),
				strconv.Itoa(s.Notified),
				s.LastFired.In(loc).Format(firedLayout),
			)
		}
		lines = append(lines, "")
		lines = append(lines, sums.lines()...)
	}
	return lines
}

// Write renders the report to w.
func (r Report) Write(w io.Writer, loc *time.Location) error {
	if _, err := io.WriteString(w, strings.Join(r.Lines(loc), "\n")+"\n"); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
