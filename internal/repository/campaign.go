package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postflow/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign in draft status
func (r *CampaignRepository) Create(c *models.Campaign) error {
	if err := c.Selection.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}

	c.ID = uuid.New().String()
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	selection, err := json.Marshal(c.Selection)
	if err != nil {
		return fmt.Errorf("failed to marshal selection policy: %w", err)
	}
	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO campaigns (id, name, status, video_path, caption_template, selection, schedule, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Status, c.VideoPath, c.CaptionTemplate, string(selection), string(schedule), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil if not found
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow(`
		SELECT id, name, status, video_path, caption_template, selection, schedule,
			started_at, completed_at, created_at, updated_at
		FROM campaigns WHERE id = ?`, id)
	return scanCampaign(row)
}

// List returns campaigns with optional filtering, newest first
func (r *CampaignRepository) List(filter models.CampaignListFilter) ([]models.Campaign, error) {
	query := `
		SELECT id, name, status, video_path, caption_template, selection, schedule,
			started_at, completed_at, created_at, updated_at
		FROM campaigns WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC"

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

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// Update updates campaign payload and policies
func (r *CampaignRepository) Update(c *models.Campaign) error {
	if err := c.Selection.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}

	c.UpdatedAt = time.Now()

	selection, err := json.Marshal(c.Selection)
	if err != nil {
		return fmt.Errorf("failed to marshal selection policy: %w", err)
	}
	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE campaigns SET name = ?, video_path = ?, caption_template = ?, selection = ?, schedule = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.VideoPath, c.CaptionTemplate, string(selection), string(schedule), c.UpdatedAt, c.ID,
	)
	return err
}

// Delete deletes a campaign and its jobs (cascade)
func (r *CampaignRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM campaigns WHERE id = ?", id)
	return err
}

// MarkRunning transitions a campaign to running and stamps started_at once.
// Returns false if the campaign was already running.
func (r *CampaignRepository) MarkRunning(id string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE campaigns
		SET status = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ? AND status != ?`,
		models.CampaignRunning, now, now, id, models.CampaignRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkPaused transitions running -> paused. Returns false if not running.
func (r *CampaignRepository) MarkPaused(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.CampaignPaused, time.Now(), id, models.CampaignRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkResumed transitions paused -> running. Returns false if not paused.
func (r *CampaignRepository) MarkResumed(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.CampaignRunning, time.Now(), id, models.CampaignPaused,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkCancelled transitions running or paused -> cancelled and stamps
// completed_at. Returns false if the campaign was in neither state.
func (r *CampaignRepository) MarkCancelled(id string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.CampaignCancelled, now, now, id, models.CampaignRunning, models.CampaignPaused,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkCompleted transitions running -> completed and stamps completed_at.
// Returns false if the campaign was not running.
func (r *CampaignRepository) MarkCompleted(id string) (bool, error) {
	now := time.Now()
	res, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.CampaignCompleted, now, now, id, models.CampaignRunning,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CountByStatus returns campaign counts grouped by status
func (r *CampaignRepository) CountByStatus() (map[models.CampaignStatus]int, error) {
	rows, err := r.db.Query("SELECT status, COUNT(*) FROM campaigns GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[models.CampaignStatus]int{}
	for rows.Next() {
		var status models.CampaignStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var selection, schedule string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Name, &c.Status, &c.VideoPath, &c.CaptionTemplate,
		&selection, &schedule, &startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(selection), &c.Selection); err != nil {
		return nil, fmt.Errorf("failed to parse selection policy: %w", err)
	}
	if err := json.Unmarshal([]byte(schedule), &c.Schedule); err != nil {
		return nil, fmt.Errorf("failed to parse schedule: %w", err)
	}

	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return c, nil
}
