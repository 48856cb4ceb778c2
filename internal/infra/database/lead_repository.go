package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xavierca1/leadflow/internal/entity"
)

type LeadRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func NewLeadRepository(db *sql.DB, dialect Dialect) *LeadRepository {
	return &LeadRepository{DB: db, Dialect: dialect}
}

// Init creates the leads table and its indexes when missing and rewrites
// timestamps left in older layouts. Safe to call on every start.
func (r *LeadRepository) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements(r.Dialect) {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return r.normalizeTimestamps(ctx)
}

type timestampFix struct {
	id        int64
	createdAt string
	updatedAt string
	contacted sql.NullString
}

// normalizeTimestamps stores every timestamp in the UTC layout, so ordering
// by the text column stays chronological after restoring an older database.
// Values that cannot be parsed are left alone.
func (r *LeadRepository) normalizeTimestamps(ctx context.Context) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, created_at, updated_at, last_contacted_at FROM leads`)
	if err != nil {
		return fmt.Errorf("scan timestamps: %w", err)
	}

	var fixes []timestampFix
	for rows.Next() {
		var f timestampFix
		if err := rows.Scan(&f.id, &f.createdAt, &f.updatedAt, &f.contacted); err != nil {
			rows.Close()
			return fmt.Errorf("scan timestamps: %w", err)
		}

		var c1, c2, c3 bool
		f.createdAt, c1 = canonicalTimestamp(f.createdAt)
		f.updatedAt, c2 = canonicalTimestamp(f.updatedAt)
		if f.contacted.Valid {
			f.contacted.String, c3 = canonicalTimestamp(f.contacted.String)
		}
		if c1 || c2 || c3 {
			fixes = append(fixes, f)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("scan timestamps: %w", err)
	}
	if len(fixes) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("normalize timestamps: %w", err)
	}
	defer tx.Rollback()

	query := rebind(r.Dialect, `UPDATE leads SET created_at = ?, updated_at = ?, last_contacted_at = ? WHERE id = ?`)
	for _, f := range fixes {
		if _, err := tx.ExecContext(ctx, query, f.createdAt, f.updatedAt, f.contacted, f.id); err != nil {
			return fmt.Errorf("normalize timestamps of lead %d: %w", f.id, err)
		}
	}
	return tx.Commit()
}

func (r *LeadRepository) Create(ctx context.Context, lead *entity.Lead) error {
	query := `
		INSERT INTO leads (
			company, contact_name, job_title, email, phone, linkedin, location,
			company_size, industry, interest, stage, notes,
			created_at, updated_at, last_contacted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.DB.QueryRowContext(ctx, rebind(r.Dialect, query),
		lead.Company,
		lead.ContactName,
		lead.JobTitle,
		lead.Email,
		lead.Phone,
		lead.LinkedIn,
		lead.Location,
		lead.CompanySize,
		lead.Industry,
		lead.Interest,
		string(lead.Stage),
		lead.Notes,
		formatTimestamp(lead.CreatedAt),
		formatTimestamp(lead.UpdatedAt),
		formatNullTimestamp(lead.LastContactedAt),
	).Scan(&lead.ID)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}

	return nil
}

// Update overwrites every mutable column of the row. created_at is never
// written after insert.
func (r *LeadRepository) Update(ctx context.Context, lead *entity.Lead) error {
	query := `
		UPDATE leads
		SET
			company = ?,
			contact_name = ?,
			job_title = ?,
			email = ?,
			phone = ?,
			linkedin = ?,
			location = ?,
			company_size = ?,
			industry = ?,
			interest = ?,
			stage = ?,
			notes = ?,
			updated_at = ?,
			last_contacted_at = ?
		WHERE id = ?
	`

	res, err := r.DB.ExecContext(ctx, rebind(r.Dialect, query),
		lead.Company,
		lead.ContactName,
		lead.JobTitle,
		lead.Email,
		lead.Phone,
		lead.LinkedIn,
		lead.Location,
		lead.CompanySize,
		lead.Industry,
		lead.Interest,
		string(lead.Stage),
		lead.Notes,
		formatTimestamp(lead.UpdatedAt),
		formatNullTimestamp(lead.LastContactedAt),
		lead.ID,
	)
	if err != nil {
		return fmt.Errorf("update lead %d: %w", lead.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lead %d: %w", lead.ID, err)
	}
	if n == 0 {
		return entity.ErrLeadNotFound
	}
	return nil
}

// Delete reports whether a row was removed.
func (r *LeadRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, rebind(r.Dialect, `DELETE FROM leads WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete lead %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lead %d: %w", id, err)
	}
	return n > 0, nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id int64) (*entity.Lead, error) {
	query := `SELECT ` + leadSelectColumns + ` FROM leads WHERE id = ?`

	lead, err := scanLead(r.DB.QueryRowContext(ctx, rebind(r.Dialect, query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead %d: %w", id, err)
	}
	return lead, nil
}

// FindByEmail matches case-insensitively and returns the oldest match.
func (r *LeadRepository) FindByEmail(ctx context.Context, email string) (*entity.Lead, error) {
	query := `SELECT ` + leadSelectColumns + ` FROM leads WHERE LOWER(email) = LOWER(?) ORDER BY id LIMIT 1`

	lead, err := scanLead(r.DB.QueryRowContext(ctx, rebind(r.Dialect, query), strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find lead by email: %w", err)
	}
	return lead, nil
}

func (r *LeadRepository) List(ctx context.Context, filter entity.LeadFilter) ([]entity.Lead, error) {
	query := `SELECT ` + leadSelectColumns + ` FROM leads WHERE 1=1`
	var args []any

	if term := strings.TrimSpace(filter.Search); term != "" {
		query += `
			AND (
				LOWER(company) LIKE ? ESCAPE '\' OR
				LOWER(contact_name) LIKE ? ESCAPE '\' OR
				LOWER(email) LIKE ? ESCAPE '\' OR
				LOWER(interest) LIKE ? ESCAPE '\'
			)`
		pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if !entity.Unrestricted(filter.Stage) {
		query += ` AND stage = ?`
		args = append(args, strings.TrimSpace(filter.Stage))
	}

	if !entity.Unrestricted(filter.Interest) {
		query += ` AND interest = ?`
		args = append(args, strings.TrimSpace(filter.Interest))
	}

	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := r.DB.QueryContext(ctx, rebind(r.Dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []entity.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

func (r *LeadRepository) DistinctInterests(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT interest FROM leads WHERE COALESCE(TRIM(interest), '') <> ''`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct interests: %w", err)
	}
	defer rows.Close()

	interests := []string{}
	for rows.Next() {
		var interest string
		if err := rows.Scan(&interest); err != nil {
			return nil, fmt.Errorf("scan interest: %w", err)
		}
		interests = append(interests, interest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distinct interests: %w", err)
	}

	// byte order, independent of the database collation
	sort.Strings(interests)
	return interests, nil
}

// CountByStage always returns every stage of the fixed set. Rows holding an
// unknown stage value are not counted.
func (r *LeadRepository) CountByStage(ctx context.Context) (map[entity.Stage]int, error) {
	counts := make(map[entity.Stage]int)
	for _, stage := range entity.Stages() {
		counts[stage] = 0
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT stage, COUNT(*) FROM leads GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("count by stage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stage string
		var total int
		if err := rows.Scan(&stage, &total); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		if _, ok := counts[entity.Stage(stage)]; ok {
			counts[entity.Stage(stage)] = total
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by stage: %w", err)
	}
	return counts, nil
}

func (r *LeadRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return total, nil
}

// TopInterests orders by count descending, then interest ascending.
func (r *LeadRepository) TopInterests(ctx context.Context, limit int) ([]entity.InterestCount, error) {
	if limit <= 0 {
		return []entity.InterestCount{}, nil
	}

	query := `
		SELECT interest, COUNT(*) AS total
		FROM leads
		WHERE COALESCE(TRIM(interest), '') <> ''
		GROUP BY interest
	`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("top interests: %w", err)
	}
	defer rows.Close()

	out := []entity.InterestCount{}
	for rows.Next() {
		var ic entity.InterestCount
		if err := rows.Scan(&ic.Interest, &ic.Count); err != nil {
			return nil, fmt.Errorf("scan interest count: %w", err)
		}
		out = append(out, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top interests: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Interest < out[j].Interest
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *LeadRepository) Recent(ctx context.Context, limit int) ([]entity.RecentUpdate, error) {
	if limit <= 0 {
		return []entity.RecentUpdate{}, nil
	}

	query := `SELECT id, company, stage, updated_at FROM leads ORDER BY updated_at DESC, id DESC LIMIT ?`

	rows, err := r.DB.QueryContext(ctx, rebind(r.Dialect, query), limit)
	if err != nil {
		return nil, fmt.Errorf("recent leads: %w", err)
	}
	defer rows.Close()

	out := []entity.RecentUpdate{}
	for rows.Next() {
		var ru entity.RecentUpdate
		var stage, updatedAt string
		if err := rows.Scan(&ru.ID, &ru.Company, &stage, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan recent lead: %w", err)
		}
		ru.Stage = entity.Stage(stage)
		if ru.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, ru)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent leads: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*entity.Lead, error) {
	var lead entity.Lead
	var stage, createdAt, updatedAt string
	var lastContactedAt sql.NullString

	err := row.Scan(
		&lead.ID,
		&lead.Company,
		&lead.ContactName,
		&lead.JobTitle,
		&lead.Email,
		&lead.Phone,
		&lead.LinkedIn,
		&lead.Location,
		&lead.CompanySize,
		&lead.Industry,
		&lead.Interest,
		&stage,
		&lead.Notes,
		&createdAt,
		&updatedAt,
		&lastContactedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.Stage = entity.Stage(stage)
	if lead.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if lead.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	if lastContactedAt.Valid && lastContactedAt.String != "" {
		t, err := parseTimestamp(lastContactedAt.String)
		if err != nil {
			return nil, err
		}
		lead.LastContactedAt = &t
	}
	return &lead, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
