package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"postflow/internal/models"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new browser profile
func (r *ProfileRepository) Create(p *models.Profile) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO profiles (id, name, user_agent, viewport, timezone, locale, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.UserAgent, p.Viewport, p.Timezone, p.Locale, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID returns a profile by ID, or nil if not found
func (r *ProfileRepository) GetByID(id string) (*models.Profile, error) {
	row := r.db.QueryRow(`
		SELECT id, name, user_agent, viewport, timezone, locale, created_at, updated_at
		FROM profiles WHERE id = ?`, id)
	return scanProfile(row)
}

// List returns all profiles in insertion order
func (r *ProfileRepository) List() ([]models.Profile, error) {
	rows, err := r.db.Query(`
		SELECT id, name, user_agent, viewport, timezone, locale, created_at, updated_at
		FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// Update updates a profile
func (r *ProfileRepository) Update(p *models.Profile) error {
	p.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE profiles SET name = ?, user_agent = ?, viewport = ?, timezone = ?, locale = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.UserAgent, p.Viewport, p.Timezone, p.Locale, p.UpdatedAt, p.ID,
	)
	return err
}

// Delete deletes a profile
func (r *ProfileRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM profiles WHERE id = ?", id)
	return err
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	p := &models.Profile{}
	var viewport, timezone, locale sql.NullString

	err := row.Scan(&p.ID, &p.Name, &p.UserAgent, &viewport, &timezone, &locale, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if viewport.Valid {
		p.Viewport = viewport.String
	}
	if timezone.Valid {
		p.Timezone = timezone.String
	}
	if locale.Valid {
		p.Locale = locale.String
	}
	return p, nil
}
