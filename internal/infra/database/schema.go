package database

import (
	"database/sql"
	"fmt"
	"time"
)

const sqliteLeadsTable = `
CREATE TABLE IF NOT EXISTS leads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	company TEXT NOT NULL,
	contact_name TEXT NOT NULL DEFAULT '',
	job_title TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	linkedin TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	company_size TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	interest TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_contacted_at TEXT
)`

const postgresLeadsTable = `
CREATE TABLE IF NOT EXISTS leads (
	id BIGSERIAL PRIMARY KEY,
	company TEXT NOT NULL,
	contact_name TEXT NOT NULL DEFAULT '',
	job_title TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	linkedin TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	company_size TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	interest TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_contacted_at TEXT
)`

var leadIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_leads_updated_at ON leads(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_interest ON leads(interest)`,
}

func schemaStatements(dialect Dialect) []string {
	table := sqliteLeadsTable
	if dialect == DialectPostgres {
		table = postgresLeadsTable
	}
	return append([]string{table}, leadIndexes...)
}

// Text columns are coalesced so databases written by older versions of the
// tool, which stored NULL for missing values, still scan into strings.
const leadSelectColumns = `id, company,
	COALESCE(contact_name, ''), COALESCE(job_title, ''), COALESCE(email, ''),
	COALESCE(phone, ''), COALESCE(linkedin, ''), COALESCE(location, ''),
	COALESCE(company_size, ''), COALESCE(industry, ''), COALESCE(interest, ''),
	stage, COALESCE(notes, ''), created_at, updated_at, last_contacted_at`

// Timestamps are stored as fixed-width UTC text so that ordering by the
// column is chronological on every dialect.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

var legacyTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatNullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// canonicalTimestamp reports the stored form of s and whether it differs
// from s. Unparseable values come back unchanged.
func canonicalTimestamp(s string) (string, bool) {
	t, err := parseTimestamp(s)
	if err != nil {
		return s, false
	}
	out := formatTimestamp(t)
	return out, out != s
}
