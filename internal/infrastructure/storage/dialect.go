package storage

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PDUFAScanner/internal/domain"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name        string
	DriverName  string
	Placeholder sq.PlaceholderFormat
	Schema      []string
}

// Postgres targets lib/pq.
var Postgres = Dialect{
	Name:        "postgres",
	DriverName:  "postgres",
	Placeholder: sq.Dollar,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS pdufa_records (
			company_key  TEXT NOT NULL,
			drug_key     TEXT NOT NULL,
			ticker       TEXT NOT NULL DEFAULT '',
			company      TEXT NOT NULL,
			drug         TEXT NOT NULL,
			pdufa_date   DATE NOT NULL,
			indication   TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			sources      TEXT NOT NULL DEFAULT '[]',
			last_updated TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (company_key, drug_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pdufa_records_date ON pdufa_records (pdufa_date)`,
		`CREATE TABLE IF NOT EXISTS pdufa_revisions (
			id            BIGSERIAL PRIMARY KEY,
			company_key   TEXT NOT NULL,
			drug_key      TEXT NOT NULL,
			company       TEXT NOT NULL,
			drug          TEXT NOT NULL,
			previous_date DATE NOT NULL,
			new_date      DATE NOT NULL,
			revised_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pdufa_revisions_key ON pdufa_revisions (company_key, drug_key)`,
		`CREATE TABLE IF NOT EXISTS alert_ledger (
			event_key  TEXT PRIMARY KEY,
			alerted_at TIMESTAMPTZ NOT NULL
		)`,
	},
}

// SQLite targets mattn/go-sqlite3. Dates and timestamps are stored as ISO text.
var SQLite = Dialect{
	Name:        "sqlite",
	DriverName:  "sqlite3",
	Placeholder: sq.Question,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS pdufa_records (
			company_key  TEXT NOT NULL,
			drug_key     TEXT NOT NULL,
			ticker       TEXT NOT NULL DEFAULT '',
			company      TEXT NOT NULL,
			drug         TEXT NOT NULL,
			pdufa_date   TEXT NOT NULL,
			indication   TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			sources      TEXT NOT NULL DEFAULT '[]',
			last_updated TEXT NOT NULL,
			PRIMARY KEY (company_key, drug_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pdufa_records_date ON pdufa_records (pdufa_date)`,
		`CREATE TABLE IF NOT EXISTS pdufa_revisions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			company_key   TEXT NOT NULL,
			drug_key      TEXT NOT NULL,
			company       TEXT NOT NULL,
			drug          TEXT NOT NULL,
			previous_date TEXT NOT NULL,
			new_date      TEXT NOT NULL,
			revised_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pdufa_revisions_key ON pdufa_revisions (company_key, drug_key)`,
		`CREATE TABLE IF NOT EXISTS alert_ledger (
			event_key  TEXT PRIMARY KEY,
			alerted_at TEXT NOT NULL
		)`,
	},
}

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timeColumn scans DATE/TIMESTAMP values regardless of whether the driver
// hands back time.Time or text.
type timeColumn struct {
	time.Time
}

func (c *timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.Time = time.Time{}
		return nil
	case time.Time:
		c.Time = v.UTC()
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("unsupported time column type %T", src)
	}
}

func (c *timeColumn) parse(value string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			c.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time column %q", value)
}

func (c timeColumn) Day() domain.Date {
	return domain.DateOf(c.Time)
}
