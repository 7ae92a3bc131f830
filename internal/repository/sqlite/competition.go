package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garnizeh/contest/pkg/models"
)

const competitionColumns = `id, name, description, status, countdown_minutes, countdown_started_at, start_time, end_time, created`

func scanCompetition(row rowScanner) (*models.Competition, error) {
	var (
		c                   models.Competition
		status              string
		started, start, end sql.NullInt64
		created             int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &status, &c.CountdownMinutes, &started, &start, &end, &created); err != nil {
		return nil, err
	}
	c.Status = models.CompetitionStatus(status)
	c.CountdownStartedAt = timePtr(started)
	c.StartTime = timePtr(start)
	c.EndTime = timePtr(end)
	c.Created = fromMillis(created)
	return &c, nil
}

func (r *SQLiteRepo) CreateCompetition(ctx context.Context, c *models.Competition) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("competition is nil")
	}
	status := c.Status
	if status == "" {
		status = models.StatusDraft
	}

	res, err := r.q.ExecContext(ctx, `INSERT INTO competitions (name, description, status, countdown_minutes, countdown_started_at, start_time, end_time, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Description, string(status), c.CountdownMinutes, nullMillis(c.CountdownStartedAt), nullMillis(c.StartTime), nullMillis(c.EndTime), now())
	if err != nil {
		return 0, fmt.Errorf("insert competition: %w", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetCompetition(ctx context.Context, id int64) (*models.Competition, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+competitionColumns+` FROM competitions WHERE id = ?`, id)
	c, err := scanCompetition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get competition: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepo) ListCompetitions(ctx context.Context, visibleOnly bool) ([]models.Competition, error) {
	q := `SELECT ` + competitionColumns + ` FROM competitions`
	if visibleOnly {
		q += ` WHERE status IN ('running', 'paused')`
	}
	q += ` ORDER BY created DESC, id DESC`

	rows, err := r.q.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	defer rows.Close()

	var out []models.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competition: %w", err)
		}
		out = append(out, *c)
	}

	return out, rows.Err()
}

// UpdateCompetition writes the editable fields. Status and countdown start
// only change through SetCompetitionState.
func (r *SQLiteRepo) UpdateCompetition(ctx context.Context, c *models.Competition) error {
	if c == nil {
		return fmt.Errorf("competition is nil")
	}

	_, err := r.q.ExecContext(ctx, `UPDATE competitions SET name = ?, description = ?, countdown_minutes = ?, start_time = ?, end_time = ?,
		countdown_started_at = CASE WHEN ? > 0 THEN countdown_started_at ELSE NULL END WHERE id = ?`,
		c.Name, c.Description, c.CountdownMinutes, nullMillis(c.StartTime), nullMillis(c.EndTime), c.CountdownMinutes, c.ID)
	return err
}

func (r *SQLiteRepo) SetCompetitionState(ctx context.Context, id int64, status models.CompetitionStatus, countdownStartedAt *time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE competitions SET status = ?, countdown_started_at = ? WHERE id = ?`, string(status), nullMillis(countdownStartedAt), id)
	return err
}

func (r *SQLiteRepo) PauseIfRunning(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE competitions SET status = 'paused' WHERE id = ? AND status = 'running'`, id)
	if err != nil {
		return false, fmt.Errorf("pause competition: %w", err)
	}
	return affected(res)
}

func (r *SQLiteRepo) DeleteCompetition(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM competitions WHERE id = ?`, id)
	return err
}

func (r *SQLiteRepo) CountCompetitions(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM competitions`)
}
