package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postflow/internal/models"
	"postflow/internal/secrets"
)

type AccountRepository struct {
	db  *sql.DB
	box *secrets.Box
}

// NewAccountRepository creates an account repository. Passwords and session
// cookies are sealed with box before they touch the database.
func NewAccountRepository(db *sql.DB, box *secrets.Box) *AccountRepository {
	return &AccountRepository{db: db, box: box}
}

// Create creates a new account
func (r *AccountRepository) Create(a *models.Account) error {
	a.ID = uuid.New().String()
	if a.Status == "" {
		a.Status = models.AccountActive
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	password, err := r.box.Seal(a.Password)
	if err != nil {
		return fmt.Errorf("failed to seal password: %w", err)
	}
	cookies, err := r.box.Seal(a.Cookies)
	if err != nil {
		return fmt.Errorf("failed to seal cookies: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO accounts (id, email, password, cookies, status, proxy_id, profile_id,
			consecutive_failures, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, password, cookies, a.Status,
		nullable(a.ProxyID), nullable(a.ProfileID), a.ConsecutiveFailures, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

const selectAccountSQL = `
	SELECT id, email, password, cookies, status, proxy_id, profile_id,
		consecutive_failures, last_used, created_at, updated_at
	FROM accounts`

// GetByID returns an account by ID with credentials opened, or nil
func (r *AccountRepository) GetByID(id string) (*models.Account, error) {
	row := r.db.QueryRow(selectAccountSQL+" WHERE id = ?", id)
	return r.scanAccount(row)
}

// List returns accounts with optional filtering in insertion order
func (r *AccountRepository) List(filter models.AccountListFilter) ([]models.Account, error) {
	query := selectAccountSQL + " WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.ProxyID != "" {
		query += " AND proxy_id = ?"
		args = append(args, filter.ProxyID)
	}
	if filter.ProfileID != "" {
		query += " AND profile_id = ?"
		args = append(args, filter.ProfileID)
	}

	query += " ORDER BY created_at, id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	return r.queryAccounts(query, args...)
}

// SelectEligible returns active accounts matching the selection filters,
// ordered for the given strategy:
//
//	all, random    stable insertion order (created_at, id)
//	round_robin    least recently used first (never-used accounts lead)
//	least_used     fewest total jobs first
func (r *AccountRepository) SelectEligible(filters models.SelectionFilters, strategy models.SelectionStrategy) ([]models.Account, error) {
	query := selectAccountSQL + " WHERE status = ?"
	args := []any{models.AccountActive}

	if filters.ProxyID != "" {
		query += " AND proxy_id = ?"
		args = append(args, filters.ProxyID)
	}
	if filters.ProfileID != "" {
		query += " AND profile_id = ?"
		args = append(args, filters.ProfileID)
	}

	switch strategy {
	case models.StrategyRoundRobin:
		query += " ORDER BY last_used IS NOT NULL, last_used, created_at, id"
	case models.StrategyLeastUsed:
		query += ` ORDER BY (SELECT COUNT(*) FROM jobs j WHERE j.account_id = accounts.id), created_at, id`
	default:
		query += " ORDER BY created_at, id"
	}

	return r.queryAccounts(query, args...)
}

// Update updates account fields including re-sealed credentials
func (r *AccountRepository) Update(a *models.Account) error {
	a.UpdatedAt = time.Now()

	password, err := r.box.Seal(a.Password)
	if err != nil {
		return fmt.Errorf("failed to seal password: %w", err)
	}
	cookies, err := r.box.Seal(a.Cookies)
	if err != nil {
		return fmt.Errorf("failed to seal cookies: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE accounts SET email = ?, password = ?, cookies = ?, status = ?,
			proxy_id = ?, profile_id = ?, updated_at = ?
		WHERE id = ?`,
		a.Email, password, cookies, a.Status,
		nullable(a.ProxyID), nullable(a.ProfileID), a.UpdatedAt, a.ID,
	)
	return err
}

// Delete deletes an account
func (r *AccountRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM accounts WHERE id = ?", id)
	return err
}

// UpdateStatus sets the account status
func (r *AccountRepository) UpdateStatus(id string, status models.AccountStatus) error {
	_, err := r.db.Exec("UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id)
	return err
}

// Touch records a successful use: last_used is stamped and the consecutive
// failure counter reset.
func (r *AccountRepository) Touch(id string) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE accounts SET last_used = ?, consecutive_failures = 0, updated_at = ?
		WHERE id = ?`, now, now, id)
	return err
}

// RecordAuthFailure increments the consecutive failure counter and flips the
// account to inactive once the limit is reached. Returns the new counter.
func (r *AccountRepository) RecordAuthFailure(id string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE accounts SET consecutive_failures = consecutive_failures + 1, updated_at = ?
		WHERE id = ?`, time.Now(), id); err != nil {
		return 0, err
	}

	var failures int
	if err := tx.QueryRow("SELECT consecutive_failures FROM accounts WHERE id = ?", id).Scan(&failures); err != nil {
		return 0, err
	}

	if failures >= models.AuthFailureLimit {
		if _, err := tx.Exec("UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?",
			models.AccountInactive, time.Now(), id); err != nil {
			return 0, err
		}
	}

	return failures, tx.Commit()
}

// CountByStatus returns account counts grouped by status
func (r *AccountRepository) CountByStatus() (map[models.AccountStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM accounts GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.AccountStatus]int{}
	for rows.Next() {
		var status models.AccountStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *AccountRepository) queryAccounts(query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var password, cookies, proxyID, profileID sql.NullString
	var lastUsed sql.NullTime

	err := row.Scan(&a.ID, &a.Email, &password, &cookies, &a.Status,
		&proxyID, &profileID, &a.ConsecutiveFailures, &lastUsed, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if password.Valid {
		if a.Password, err = r.box.Open(password.String); err != nil {
			return nil, fmt.Errorf("failed to open password for account %s: %w", a.ID, err)
		}
	}
	if cookies.Valid {
		if a.Cookies, err = r.box.Open(cookies.String); err != nil {
			return nil, fmt.Errorf("failed to open cookies for account %s: %w", a.ID, err)
		}
	}
	if proxyID.Valid {
		a.ProxyID = proxyID.String
	}
	if profileID.Valid {
		a.ProfileID = profileID.String
	}
	if lastUsed.Valid {
		a.LastUsed = &lastUsed.Time
	}
	return a, nil
}

// nullable maps empty strings to NULL so optional foreign keys stay clean
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
