package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garnizeh/contest/pkg/models"
)

const historyColumns = `id, original_submission_id, competition_id, user_id, challenge_id, answer_text, status, points_awarded, submitted_at, reviewed_at, reviewer_kind, reviewer_id, archived_at`

func scanHistory(row rowScanner) (*models.SubmissionHistory, error) {
	var (
		h          models.SubmissionHistory
		status     string
		submitted  int64
		reviewed   sql.NullInt64
		kind       sql.NullString
		reviewerID sql.NullInt64
		archived   int64
	)
	if err := row.Scan(&h.ID, &h.OriginalSubmissionID, &h.CompetitionID, &h.UserID, &h.ChallengeID, &h.AnswerText, &status, &h.PointsAwarded, &submitted, &reviewed, &kind, &reviewerID, &archived); err != nil {
		return nil, err
	}
	h.Status = models.SubmissionStatus(status)
	h.SubmittedAt = fromMillis(submitted)
	h.ReviewedAt = timePtr(reviewed)
	h.Reviewer = scanReviewer(kind, reviewerID)
	h.ArchivedAt = fromMillis(archived)
	return &h, nil
}

func (r *SQLiteRepo) ArchiveCompetition(ctx context.Context, competitionID int64, at time.Time) (int, error) {
	ts := toMillis(at)

	if _, err := r.q.ExecContext(ctx, `INSERT INTO submission_history
			(original_submission_id, competition_id, user_id, challenge_id, answer_text, status, points_awarded, submitted_at, reviewed_at, reviewer_kind, reviewer_id, archived_at)
		SELECT s.id, c.competition_id, s.user_id, s.challenge_id, s.answer_text, s.status, s.points_awarded, s.submitted_at, s.reviewed_at, s.reviewer_kind, s.reviewer_id, ?
		FROM submissions s JOIN challenges c ON c.id = s.challenge_id
		WHERE c.competition_id = ?
		ORDER BY s.id`, ts, competitionID); err != nil {
		return 0, fmt.Errorf("archive submissions: %w", err)
	}

	// submission ids are AUTOINCREMENT and never reused, so the original id
	// identifies the history row.
	if _, err := r.q.ExecContext(ctx, `INSERT INTO submission_file_history
			(original_file_id, submission_history_id, filename, storage_token, archived_at)
		SELECT f.id, h.id, f.filename, f.storage_token, ?
		FROM submission_files f
		JOIN submission_history h ON h.original_submission_id = f.submission_id
		JOIN challenges c ON c.id = h.challenge_id
		WHERE c.competition_id = ? AND h.archived_at = ?
		ORDER BY f.id`, ts, competitionID, ts); err != nil {
		return 0, fmt.Errorf("archive submission files: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM submissions WHERE challenge_id IN (SELECT id FROM challenges WHERE competition_id = ?)`, competitionID)
	if err != nil {
		return 0, fmt.Errorf("delete archived submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(n), nil
}

// ListHistory returns archived submissions, most recently archived first.
func (r *SQLiteRepo) ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.SubmissionHistory, error) {
	var (
		where []string
		args  []any
	)
	if f.CompetitionID != 0 {
		where = append(where, `competition_id = ?`)
		args = append(args, f.CompetitionID)
	}
	if f.UserID != 0 {
		where = append(where, `user_id = ?`)
		args = append(args, f.UserID)
	}

	q := `SELECT ` + historyColumns + ` FROM submission_history`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY archived_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []models.SubmissionHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, *h)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) GetHistory(ctx context.Context, id int64) (*models.SubmissionHistory, error) {
	h, err := scanHistory(r.q.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM submission_history WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get history: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, `SELECT id, original_file_id, submission_history_id, filename, storage_token, archived_at FROM submission_file_history WHERE submission_history_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list file history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fh       models.FileHistory
			archived int64
		)
		if err := rows.Scan(&fh.ID, &fh.OriginalFileID, &fh.SubmissionHistoryID, &fh.Filename, &fh.StorageToken, &archived); err != nil {
			return nil, fmt.Errorf("scan file history: %w", err)
		}
		fh.ArchivedAt = fromMillis(archived)
		h.Files = append(h.Files, fh)
	}

	return h, rows.Err()
}
