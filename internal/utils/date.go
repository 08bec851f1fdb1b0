package utils

import "time"

// ISODate is the wire and storage format for calendar dates. Invoice periods
// and decision timestamps are stored as TEXT in this layout so the same rows
// read identically on Postgres and SQLite.
const ISODate = "2006-01-02"

func ParseISODate(s string) (time.Time, error) {
	return time.Parse(ISODate, s)
}

func FormatISODate(t time.Time) string {
	return t.UTC().Format(ISODate)
}

// MonthKey buckets a date into its calendar month, e.g. "2026-03". Reports
// group invoice periods by this key.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
