package ingest

import (
	"fmt"
	"time"
)

const (
	slotLayout   = "02.01.2006 15:04"
	sqliteLayout = "2006-01-02 15:04:05"
)

// parseSlotTime joins a DD.MM.YYYY date and an HH:MM time into a sortable
// YYYY-MM-DD HH:MM:SS timestamp. It returns nil without error when either part
// is missing.
func parseSlotTime(date, clock *string) (*string, error) {
	if date == nil || clock == nil || *date == "" || *clock == "" {
		return nil, nil
	}
	raw := *date + " " + *clock
	t, err := time.Parse(slotLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}
	s := t.Format(sqliteLayout)
	return &s, nil
}
