package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postflow/internal/models"
	"postflow/internal/secrets"
)

type ProxyRepository struct {
	db  *sql.DB
	box *secrets.Box
}

func NewProxyRepository(db *sql.DB, box *secrets.Box) *ProxyRepository {
	return &ProxyRepository{db: db, box: box}
}

// Create creates a new proxy
func (r *ProxyRepository) Create(p *models.Proxy) error {
	p.ID = uuid.New().String()
	if p.Status == "" {
		p.Status = models.ProxyActive
	}
	if p.Type == "" {
		p.Type = models.ProxyResidential
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	password, err := r.box.Seal(p.Password)
	if err != nil {
		return fmt.Errorf("failed to seal proxy password: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO proxies (id, host, port, username, password, type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Host, p.Port, p.Username, password, p.Type, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create proxy: %w", err)
	}
	return nil
}

const selectProxySQL = `
	SELECT id, host, port, username, password, type, status, latency_ms, last_checked, created_at, updated_at
	FROM proxies`

// GetByID returns a proxy by ID, or nil if not found
func (r *ProxyRepository) GetByID(id string) (*models.Proxy, error) {
	row := r.db.QueryRow(selectProxySQL+" WHERE id = ?", id)
	return r.scanProxy(row)
}

// List returns proxies with optional filtering in insertion order
func (r *ProxyRepository) List(filter models.ProxyListFilter) ([]models.Proxy, error) {
	query := selectProxySQL + " WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
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

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	proxies := []models.Proxy{}
	for rows.Next() {
		p, err := r.scanProxy(rows)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, *p)
	}
	return proxies, rows.Err()
}

// Update updates proxy fields including the re-sealed password
func (r *ProxyRepository) Update(p *models.Proxy) error {
	p.UpdatedAt = time.Now()

	password, err := r.box.Seal(p.Password)
	if err != nil {
		return fmt.Errorf("failed to seal proxy password: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE proxies SET host = ?, port = ?, username = ?, password = ?, type = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		p.Host, p.Port, p.Username, password, p.Type, p.Status, p.UpdatedAt, p.ID,
	)
	return err
}

// Delete deletes a proxy
func (r *ProxyRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM proxies WHERE id = ?", id)
	return err
}

// RecordCheck stores a health check verdict: status, measured latency and
// the check timestamp.
func (r *ProxyRepository) RecordCheck(id string, status models.ProxyStatus, latencyMS int) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE proxies SET status = ?, latency_ms = ?, last_checked = ?, updated_at = ?
		WHERE id = ?`,
		status, latencyMS, now, now, id,
	)
	return err
}

// CountByStatus returns proxy counts grouped by status
func (r *ProxyRepository) CountByStatus() (map[models.ProxyStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM proxies GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.ProxyStatus]int{}
	for rows.Next() {
		var status models.ProxyStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *ProxyRepository) scanProxy(row rowScanner) (*models.Proxy, error) {
	p := &models.Proxy{}
	var username, password sql.NullString
	var latencyMS sql.NullInt64
	var lastChecked sql.NullTime

	err := row.Scan(&p.ID, &p.Host, &p.Port, &username, &password, &p.Type, &p.Status,
		&latencyMS, &lastChecked, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if username.Valid {
		p.Username = username.String
	}
	if password.Valid {
		if p.Password, err = r.box.Open(password.String); err != nil {
			return nil, fmt.Errorf("failed to open password for proxy %s: %w", p.ID, err)
		}
	}
	if latencyMS.Valid {
		p.LatencyMS = int(latencyMS.Int64)
	}
	if lastChecked.Valid {
		p.LastChecked = &lastChecked.Time
	}
	return p, nil
}
