package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/ports"
)

var recordColumns = []string{
	"ticker", "company", "drug", "pdufa_date", "indication", "description", "sources", "last_updated",
}

// SQLRepository persists records, revisions and the alert ledger through
// database/sql. Every call runs behind a circuit breaker.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time
}

var _ ports.Store = (*SQLRepository)(nil)

// NewSQLRepository wires an open database and creates the schema if needed.
func NewSQLRepository(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named(dialect.Name)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store-" + dialect.Name,
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	r := &SQLRepository{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		cb:      cb,
		logger:  log,
		now:     time.Now,
	}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	log.Info("sql store initialized")
	return r, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, stmt := range r.dialect.Schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return &domain.PersistenceError{Op: "migrate", Err: err}
		}
	}
	return nil
}

// guard runs fn behind the breaker and wraps failures as PersistenceError.
func (r *SQLRepository) guard(op string, fn func() error) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return &domain.PersistenceError{Op: op, Err: err}
	}
	return nil
}

// Upsert applies every record inside one transaction.
func (r *SQLRepository) Upsert(ctx context.Context, records []domain.PDUFARecord) (domain.UpsertResult, error) {
	var result domain.UpsertResult
	err := r.guard("upsert", func() error {
		result = domain.UpsertResult{}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := r.now().UTC()
		for _, incoming := range records {
			if err := r.upsertOne(ctx, tx, incoming, now, &result); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return result, nil
}

func (r *SQLRepository) upsertOne(ctx context.Context, tx *sql.Tx, incoming domain.PDUFARecord, now time.Time, result *domain.UpsertResult) error {
	key := incoming.Key()

	query, args, err := r.builder.Select(recordColumns...).
		From("pdufa_records").
		Where(sq.Eq{"company_key": key.Company, "drug_key": key.Drug}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	stored, err := scanRecord(tx.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec := incoming.Clone()
		if rec.LastUpdated.IsZero() {
			rec.LastUpdated = now
		}
		if err := r.write(ctx, tx, key, rec); err != nil {
			return err
		}
		result.Inserted++
		return nil
	case err != nil:
		return fmt.Errorf("load %s: %w", key, err)
	}

	merged, changed, revised := domain.ApplyUpdate(stored, incoming)
	if !changed {
		result.Unchanged++
		return nil
	}
	if revised {
		query, args, err := r.builder.Insert("pdufa_revisions").
			Columns("company_key", "drug_key", "company", "drug", "previous_date", "new_date", "revised_at").
			Values(key.Company, key.Drug, merged.Company, merged.Drug,
				stored.PDUFADate.String(), merged.PDUFADate.String(), formatTimestamp(now)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build revision insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert revision %s: %w", key, err)
		}
		result.Revised++
	}
	if err := r.write(ctx, tx, key, merged); err != nil {
		return err
	}
	result.Updated++
	return nil
}

func (r *SQLRepository) write(ctx context.Context, tx *sql.Tx, key domain.RecordKey, rec domain.PDUFARecord) error {
	sources, err := json.Marshal(nonNilSources(rec.Sources))
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	query, args, err := r.builder.Insert("pdufa_records").
		Columns(append([]string{"company_key", "drug_key"}, recordColumns...)...).
		Values(key.Company, key.Drug, rec.Ticker, rec.Company, rec.Drug, rec.PDUFADate.String(),
			rec.Indication, rec.Description, string(sources), formatTimestamp(rec.LastUpdated)).
		Suffix(`ON CONFLICT (company_key, drug_key) DO UPDATE SET
			ticker = excluded.ticker,
			company = excluded.company,
			drug = excluded.drug,
			pdufa_date = excluded.pdufa_date,
			indication = excluded.indication,
			description = excluded.description,
			sources = excluded.sources,
			last_updated = excluded.last_updated`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// QueryAll returns one page of all records ordered by date.
func (r *SQLRepository) QueryAll(ctx context.Context, page, limit int) (domain.Page, error) {
	page, limit = normalizePaging(page, limit)
	var out domain.Page
	err := r.guard("query all", func() error {
		var total int
		query, args, err := r.builder.Select("COUNT(*)").From("pdufa_records").ToSql()
		if err != nil {
			return fmt.Errorf("build count: %w", err)
		}
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
			return fmt.Errorf("count records: %w", err)
		}

		records, err := r.selectRecords(ctx, r.orderedSelect().
			Limit(uint64(limit)).
			Offset(uint64((page-1)*limit)))
		if err != nil {
			return err
		}
		out = domain.Page{
			Records:    records,
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: domain.TotalPages(total, limit),
		}
		return nil
	})
	return out, err
}

// QueryUpcoming returns records dated within [from, from+days].
func (r *SQLRepository) QueryUpcoming(ctx context.Context, from domain.Date, days int) ([]domain.PDUFARecord, error) {
	if days < 0 {
		return []domain.PDUFARecord{}, nil
	}
	return r.query(ctx, "query upcoming", sq.And{
		sq.GtOrEq{"pdufa_date": from.String()},
		sq.LtOrEq{"pdufa_date": from.AddDays(days).String()},
	})
}

// QueryByDate returns records dated exactly on date.
func (r *SQLRepository) QueryByDate(ctx context.Context, date domain.Date) ([]domain.PDUFARecord, error) {
	return r.query(ctx, "query by date", sq.Eq{"pdufa_date": date.String()})
}

// QueryByTicker matches the ticker case-insensitively.
func (r *SQLRepository) QueryByTicker(ctx context.Context, ticker string) ([]domain.PDUFARecord, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return []domain.PDUFARecord{}, nil
	}
	return r.query(ctx, "query by ticker", sq.Expr("LOWER(ticker) = ?", strings.ToLower(ticker)))
}

// QueryByCompany matches a case-insensitive company substring.
func (r *SQLRepository) QueryByCompany(ctx context.Context, company string) ([]domain.PDUFARecord, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return []domain.PDUFARecord{}, nil
	}
	return r.query(ctx, "query by company", likeFold("company", company))
}

// Search matches a case-insensitive substring of company, drug or ticker.
func (r *SQLRepository) Search(ctx context.Context, text string) ([]domain.PDUFARecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []domain.PDUFARecord{}, nil
	}
	return r.query(ctx, "search", sq.Or{
		likeFold("company", text),
		likeFold("drug", text),
		likeFold("ticker", text),
	})
}

// Stats aggregates the stored records.
func (r *SQLRepository) Stats(ctx context.Context, today domain.Date) (domain.Stats, error) {
	var stats domain.Stats
	err := r.guard("stats", func() error {
		records, err := r.selectRecords(ctx, r.orderedSelect())
		if err != nil {
			return err
		}
		var revisions int
		query, args, err := r.builder.Select("COUNT(*)").From("pdufa_revisions").ToSql()
		if err != nil {
			return fmt.Errorf("build revision count: %w", err)
		}
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(&revisions); err != nil {
			return fmt.Errorf("count revisions: %w", err)
		}
		stats = domain.ComputeStats(records, revisions, today)
		return nil
	})
	return stats, err
}

// Revisions lists superseded dates for one (company, drug) pair, or all of
// them when both are empty.
func (r *SQLRepository) Revisions(ctx context.Context, company, drug string) ([]domain.Revision, error) {
	builder := r.builder.
		Select("company_key", "drug_key", "company", "drug", "previous_date", "new_date", "revised_at").
		From("pdufa_revisions").
		OrderBy("revised_at", "id")
	if company != "" || drug != "" {
		builder = builder.Where(sq.Eq{
			"company_key": domain.NormalizeCompany(company),
			"drug_key":    domain.NormalizeDrug(drug),
		})
	}

	out := make([]domain.Revision, 0)
	err := r.guard("revisions", func() error {
		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("build revisions: %w", err)
		}
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query revisions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rev                     domain.Revision
				previous, next, revised timeColumn
			)
			if err := rows.Scan(&rev.Key.Company, &rev.Key.Drug, &rev.Company, &rev.Drug, &previous, &next, &revised); err != nil {
				return fmt.Errorf("scan revision: %w", err)
			}
			rev.PreviousDate = previous.Day()
			rev.NewDate = next.Day()
			rev.RevisedAt = revised.Time
			out = append(out, rev)
		}
		return rows.Err()
	})
	return out, err
}

// AlertedAt reports when the event was last alerted.
func (r *SQLRepository) AlertedAt(ctx context.Context, eventKey string) (time.Time, bool, error) {
	var (
		at    timeColumn
		found bool
	)
	err := r.guard("alert lookup", func() error {
		query, args, err := r.builder.Select("alerted_at").
			From("alert_ledger").
			Where(sq.Eq{"event_key": eventKey}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build ledger select: %w", err)
		}
		switch err := r.db.QueryRowContext(ctx, query, args...).Scan(&at); {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("load ledger entry: %w", err)
		}
		found = true
		return nil
	})
	return at.Time, found, err
}

// MarkAlerted records a successful alert for the event.
func (r *SQLRepository) MarkAlerted(ctx context.Context, eventKey string, at time.Time) error {
	return r.guard("mark alerted", func() error {
		query, args, err := r.builder.Insert("alert_ledger").
			Columns("event_key", "alerted_at").
			Values(eventKey, formatTimestamp(at)).
			Suffix("ON CONFLICT (event_key) DO UPDATE SET alerted_at = excluded.alerted_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build ledger upsert: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("write ledger entry: %w", err)
		}
		return nil
	})
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.guard("ping", func() error {
		return r.db.PingContext(ctx)
	})
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) orderedSelect() sq.SelectBuilder {
	return r.builder.Select(recordColumns...).
		From("pdufa_records").
		OrderBy("pdufa_date", "company", "drug")
}

func (r *SQLRepository) query(ctx context.Context, op string, where sq.Sqlizer) ([]domain.PDUFARecord, error) {
	var out []domain.PDUFARecord
	err := r.guard(op, func() error {
		records, err := r.selectRecords(ctx, r.orderedSelect().Where(where))
		out = records
		return err
	})
	return out, err
}

func (r *SQLRepository) selectRecords(ctx context.Context, builder sq.SelectBuilder) ([]domain.PDUFARecord, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.PDUFARecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	domain.SortRecords(records)
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.PDUFARecord, error) {
	var (
		rec         domain.PDUFARecord
		date, stamp timeColumn
		sources     string
	)
	if err := row.Scan(&rec.Ticker, &rec.Company, &rec.Drug, &date, &rec.Indication, &rec.Description, &sources, &stamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan record: %w", err)
	}
	if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
		return rec, fmt.Errorf("decode sources: %w", err)
	}
	rec.PDUFADate = date.Day()
	rec.LastUpdated = stamp.Time
	return rec, nil
}

func likeFold(column, needle string) sq.Sqlizer {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(needle))
	return sq.Expr("LOWER("+column+`) LIKE ? ESCAPE '\'`, "%"+escaped+"%")
}

func nonNilSources(sources []string) []string {
	if sources == nil {
		return []string{}
	}
	return sources
}
