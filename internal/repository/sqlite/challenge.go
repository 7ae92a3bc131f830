package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/contest/pkg/models"
)

const challengeColumns = `id, competition_id, title, description, points, category, is_active, order_index, created`

func scanChallenge(row rowScanner) (*models.Challenge, error) {
	var (
		c       models.Challenge
		active  int
		created int64
	)
	if err := row.Scan(&c.ID, &c.CompetitionID, &c.Title, &c.Description, &c.Points, &c.Category, &active, &c.OrderIndex, &created); err != nil {
		return nil, err
	}
	c.IsActive = active != 0
	c.Created = fromMillis(created)
	return &c, nil
}

func (r *SQLiteRepo) CreateChallenge(ctx context.Context, c *models.Challenge) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("challenge is nil")
	}

	res, err := r.q.ExecContext(ctx, `INSERT INTO challenges (competition_id, title, description, points, category, is_active, order_index, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CompetitionID, c.Title, c.Description, c.Points, c.Category, boolInt(c.IsActive), c.OrderIndex, now())
	if err != nil {
		return 0, fmt.Errorf("insert challenge: %w", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

// ListChallenges returns a competition's challenges in display order.
func (r *SQLiteRepo) ListChallenges(ctx context.Context, competitionID int64, activeOnly bool) ([]models.Challenge, error) {
	q := `SELECT ` + challengeColumns + ` FROM challenges WHERE competition_id = ?`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	q += ` ORDER BY order_index, id`

	rows, err := r.q.QueryContext(ctx, q, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var out []models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, *c)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateChallenge(ctx context.Context, c *models.Challenge) error {
	if c == nil {
		return fmt.Errorf("challenge is nil")
	}

	_, err := r.q.ExecContext(ctx, `UPDATE challenges SET title = ?, description = ?, points = ?, category = ?, is_active = ? WHERE id = ?`,
		c.Title, c.Description, c.Points, c.Category, boolInt(c.IsActive), c.ID)
	return err
}

func (r *SQLiteRepo) SetChallengeActive(ctx context.Context, id int64, active bool) error {
	_, err := r.q.ExecContext(ctx, `UPDATE challenges SET is_active = ? WHERE id = ?`, boolInt(active), id)
	return err
}

func (r *SQLiteRepo) SetChallengeOrder(ctx context.Context, id int64, orderIndex int) error {
	_, err := r.q.ExecContext(ctx, `UPDATE challenges SET order_index = ? WHERE id = ?`, orderIndex, id)
	return err
}

// NextChallengeOrder returns the order index that places a new challenge last.
func (r *SQLiteRepo) NextChallengeOrder(ctx context.Context, competitionID int64) (int, error) {
	return r.count(ctx, `SELECT COALESCE(MAX(order_index), -1) + 1 FROM challenges WHERE competition_id = ?`, competitionID)
}

func (r *SQLiteRepo) DeleteChallenge(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	return err
}

// CountChallenges counts challenges of one competition, or of all
// competitions when competitionID is zero.
func (r *SQLiteRepo) CountChallenges(ctx context.Context, competitionID int64, activeOnly bool) (int, error) {
	q := `SELECT COUNT(1) FROM challenges WHERE (? = 0 OR competition_id = ?)`
	if activeOnly {
		q += ` AND is_active = 1`
	}
	return r.count(ctx, q, competitionID, competitionID)
}
