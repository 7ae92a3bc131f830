package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

const submissionColumns = `s.id, s.user_id, s.challenge_id, s.answer_text, s.status, s.points_awarded, s.submitted_at, s.reviewed_at, s.reviewer_kind, s.reviewer_id`

func scanReviewer(kind sql.NullString, id sql.NullInt64) *models.Reviewer {
	if !kind.Valid {
		return nil
	}
	rv := &models.Reviewer{Kind: models.ReviewerKind(kind.String)}
	if id.Valid {
		v := id.Int64
		rv.UserID = &v
	}
	return rv
}

func reviewerArgs(rv models.Reviewer) (kind string, id any) {
	if rv.Kind == models.ReviewerHuman && rv.UserID != nil {
		return string(rv.Kind), *rv.UserID
	}
	return string(rv.Kind), nil
}

func scanSubmission(row rowScanner, extra ...any) (*models.Submission, error) {
	var (
		s          models.Submission
		status     string
		submitted  int64
		reviewed   sql.NullInt64
		kind       sql.NullString
		reviewerID sql.NullInt64
	)
	dest := append([]any{&s.ID, &s.UserID, &s.ChallengeID, &s.AnswerText, &status, &s.PointsAwarded, &submitted, &reviewed, &kind, &reviewerID}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.Status = models.SubmissionStatus(status)
	s.SubmittedAt = fromMillis(submitted)
	s.ReviewedAt = timePtr(reviewed)
	s.Reviewer = scanReviewer(kind, reviewerID)
	return &s, nil
}

func (r *SQLiteRepo) CreateSubmission(ctx context.Context, s *models.Submission) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("submission is nil")
	}
	submitted := s.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}

	res, err := r.q.ExecContext(ctx, `INSERT INTO submissions (user_id, challenge_id, answer_text, status, points_awarded, submitted_at) VALUES (?, ?, ?, 'pending', 0, ?)`,
		s.UserID, s.ChallengeID, s.AnswerText, toMillis(submitted))
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) AddSubmissionFile(ctx context.Context, f *models.SubmissionFile) (int64, error) {
	if f == nil {
		return 0, fmt.Errorf("submission file is nil")
	}

	res, err := r.q.ExecContext(ctx, `INSERT INTO submission_files (submission_id, filename, storage_token, created) VALUES (?, ?, ?, ?)`,
		f.SubmissionID, f.Filename, f.StorageToken, now())
	if err != nil {
		return 0, fmt.Errorf("insert submission file: %w", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetSubmission(ctx context.Context, id int64) (*models.Submission, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions s WHERE s.id = ?`, id)
	s, err := scanSubmission(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}

	files, err := r.listSubmissionFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Files = files
	return s, nil
}

func (r *SQLiteRepo) listSubmissionFiles(ctx context.Context, submissionID int64) ([]models.SubmissionFile, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, submission_id, filename, storage_token, created FROM submission_files WHERE submission_id = ? ORDER BY id`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list submission files: %w", err)
	}
	defer rows.Close()

	var out []models.SubmissionFile
	for rows.Next() {
		var (
			f       models.SubmissionFile
			created int64
		)
		if err := rows.Scan(&f.ID, &f.SubmissionID, &f.Filename, &f.StorageToken, &created); err != nil {
			return nil, fmt.Errorf("scan submission file: %w", err)
		}
		f.Created = fromMillis(created)
		out = append(out, f)
	}

	return out, rows.Err()
}

// ListSubmissions returns newest submissions first.
func (r *SQLiteRepo) ListSubmissions(ctx context.Context, f repository.SubmissionFilter) ([]models.SubmissionView, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, `s.status = ?`)
		args = append(args, string(f.Status))
	}
	if f.CompetitionID != 0 {
		where = append(where, `c.competition_id = ?`)
		args = append(args, f.CompetitionID)
	}
	if f.ChallengeID != 0 {
		where = append(where, `s.challenge_id = ?`)
		args = append(args, f.ChallengeID)
	}
	if f.UserID != 0 {
		where = append(where, `s.user_id = ?`)
		args = append(args, f.UserID)
	}

	q := `SELECT ` + submissionColumns + `, u.username, c.title, c.competition_id FROM submissions s
		JOIN users u ON u.id = s.user_id
		JOIN challenges c ON c.id = s.challenge_id`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY s.submitted_at DESC, s.id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []models.SubmissionView
	for rows.Next() {
		var v models.SubmissionView
		s, err := scanSubmission(rows, &v.Username, &v.ChallengeTitle, &v.CompetitionID)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		v.Submission = *s
		out = append(out, v)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) LatestSubmissions(ctx context.Context, userID, competitionID int64) (map[int64]models.Submission, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions s
		JOIN challenges c ON c.id = s.challenge_id
		WHERE s.user_id = ? AND c.competition_id = ?
		ORDER BY s.submitted_at, s.id`, userID, competitionID)
	if err != nil {
		return nil, fmt.Errorf("latest submissions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]models.Submission)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out[s.ChallengeID] = *s
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) ReviewSubmission(ctx context.Context, id int64, approved bool, points *int, reviewer models.Reviewer, at time.Time) (bool, error) {
	status := models.SubmissionRejected
	if approved {
		status = models.SubmissionApproved
	}
	var pts any
	if points != nil {
		pts = *points
	}
	kind, reviewerID := reviewerArgs(reviewer)

	res, err := r.q.ExecContext(ctx, `UPDATE submissions SET
			status = ?,
			points_awarded = CASE WHEN ? = 1 THEN COALESCE(?, (SELECT points FROM challenges WHERE challenges.id = submissions.challenge_id)) ELSE 0 END,
			reviewed_at = ?,
			reviewer_kind = ?,
			reviewer_id = ?
		WHERE id = ?`,
		string(status), boolInt(approved), pts, toMillis(at), kind, reviewerID, id)
	if err != nil {
		return false, fmt.Errorf("review submission: %w", err)
	}
	return affected(res)
}

func (r *SQLiteRepo) ApplyAutomatedApproval(ctx context.Context, id int64, points int, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE submissions SET
			status = 'approved',
			points_awarded = ?,
			reviewed_at = ?,
			reviewer_kind = 'automated',
			reviewer_id = NULL
		WHERE id = ? AND NOT (status = 'approved' AND points_awarded = ? AND reviewer_kind IS 'automated')`,
		points, toMillis(at), id, points)
	if err != nil {
		return false, fmt.Errorf("apply automated approval: %w", err)
	}
	return affected(res)
}

// CountSubmissions counts every submission on the competition's challenges.
func (r *SQLiteRepo) CountSubmissions(ctx context.Context, competitionID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM submissions s JOIN challenges c ON c.id = s.challenge_id WHERE c.competition_id = ?`, competitionID)
}

func (r *SQLiteRepo) CountPending(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(1) FROM submissions WHERE status = 'pending'`)
}

// ListSolves reads every approved submission of a competition in one query.
func (r *SQLiteRepo) ListSolves(ctx context.Context, competitionID int64) ([]models.Solve, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT s.user_id, u.username, s.challenge_id, s.points_awarded, s.reviewed_at
		FROM submissions s
		JOIN challenges c ON c.id = s.challenge_id
		JOIN users u ON u.id = s.user_id
		WHERE c.competition_id = ? AND s.status = 'approved'
		ORDER BY s.user_id, s.challenge_id, s.reviewed_at, s.id`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list solves: %w", err)
	}
	defer rows.Close()

	var out []models.Solve
	for rows.Next() {
		var (
			sv       models.Solve
			reviewed int64
		)
		if err := rows.Scan(&sv.UserID, &sv.Username, &sv.ChallengeID, &sv.Points, &reviewed); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		sv.ReviewedAt = fromMillis(reviewed)
		out = append(out, sv)
	}

	return out, rows.Err()
}
