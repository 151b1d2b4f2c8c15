package cmd

import (
	"testing"

	"github.com/theirongolddev/oburn/internal/overview"
	"github.com/theirongolddev/oburn/internal/stats"
)

func TestTotalsRowsCountsDistinctSessions(t *testing.T) {
	s := stats.NewStats()
	s.Totals.Sessions["ses_1"] = true
	s.Totals.Sessions["ses_2"] = true
	s.Totals.Sessions["ses_3"] = true
	s.Totals.Messages = 42

	rows := totalsRows(s, overview.Overview{})

	if rows[0][0] != "Sessions" || rows[0][1] != "3" {
		t.Errorf("sessions row = %v, want [Sessions 3]", rows[0])
	}
	if rows[1][0] != "Messages" || rows[1][1] != "42" {
		t.Errorf("messages row = %v, want [Messages 42]", rows[1])
	}
}
