package models

import (
	"database/sql"
	"strings"
	"time"
)

// RunModel persists one row per orchestrator run for auditing. A nil *sql.DB
// turns every method into a no-op so runs never depend on the database.
type RunModel struct {
	DB *sql.DB
}

func NewRunModel(db *sql.DB) *RunModel {
	return &RunModel{DB: db}
}

type RunRecord struct {
	ID           string    `json:"id"`
	JobURL       string    `json:"job_url"`
	Status       string    `json:"status"`
	Platform     string    `json:"platform"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	FilledFields string    `json:"filled_fields"`
	Issues       string    `json:"issues"`
	CreatedAt    time.Time `json:"created_at"`
}

func (m *RunModel) Insert(result *ApplicationResult, jobURL string) error {
	if m == nil || m.DB == nil {
		return nil
	}
	var filled, issues string
	if result.State != nil {
		filled = strings.Join(result.State.FilledFields, ",")
		issues = strings.Join(result.State.Issues, "; ")
	}
	_, err := m.DB.Exec(`
		INSERT INTO application_runs (id, job_url, status, platform, elapsed_ms, filled_fields, issues)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.RunID, jobURL, result.Status, result.Platform, result.ElapsedMS, filled, issues)
	return err
}

func (m *RunModel) GetByID(id string) (*RunRecord, error) {
	if m == nil || m.DB == nil {
		return nil, sql.ErrNoRows
	}
	row := m.DB.QueryRow(`
		SELECT id, job_url, status, platform, elapsed_ms, filled_fields, issues, created_at
		FROM application_runs WHERE id = $1`, id)

	var rec RunRecord
	err := row.Scan(&rec.ID, &rec.JobURL, &rec.Status, &rec.Platform,
		&rec.ElapsedMS, &rec.FilledFields, &rec.Issues, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
