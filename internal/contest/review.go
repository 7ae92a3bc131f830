package contest

import (
	"context"
	"fmt"

	"github.com/garnizeh/contest/internal/grading"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// Decision is a manual review verdict. Points only matter on approval; nil
// awards the challenge's full points.
type Decision struct {
	Approved bool
	Points   *int
}

// Review records a human decision on a submission. Reviewing again
// overwrites the previous decision, including an automated one.
func (s *Service) Review(ctx context.Context, submissionID, reviewerID int64, d Decision) (*models.Submission, error) {
	if d.Points != nil && *d.Points < 0 {
		return nil, fmt.Errorf("%w: points must not be negative", ErrInvalidInput)
	}

	ok, err := s.store.ReviewSubmission(ctx, submissionID, d.Approved, d.Points, models.HumanReviewer(reviewerID), s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("submission %d: %w", submissionID, ErrNotFound)
	}

	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %d: %w", submissionID, ErrNotFound)
	}
	s.logger.Info("submission reviewed", "submission_id", submissionID, "reviewer_id", reviewerID, "status", sub.Status, "points", sub.PointsAwarded)
	return sub, nil
}

// ApplyGrade applies an automated verdict. Only a successful auto-approval
// with a score changes the submission; it reports whether a row changed.
func (s *Service) ApplyGrade(ctx context.Context, submissionID int64, res *grading.Result) (bool, error) {
	points, ok := res.Approval()
	if !ok {
		s.logger.Info("grader did not approve, submission left pending", "submission_id", submissionID)
		return false, nil
	}

	changed, err := s.store.ApplyAutomatedApproval(ctx, submissionID, points, s.now())
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("submission auto-approved", "submission_id", submissionID, "points", points)
	}
	return changed, nil
}

// Submissions lists submissions for reviewers, newest first.
func (s *Service) Submissions(ctx context.Context, f repository.SubmissionFilter) ([]models.SubmissionView, error) {
	if f.Status != "" {
		switch f.Status {
		case models.SubmissionPending, models.SubmissionApproved, models.SubmissionRejected:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
		}
	}
	return s.store.ListSubmissions(ctx, f)
}

// Submission returns one live submission with its files.
func (s *Service) Submission(ctx context.Context, id int64) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	return sub, nil
}

// History lists archived submissions.
func (s *Service) History(ctx context.Context, f models.HistoryFilter) ([]models.SubmissionHistory, error) {
	return s.store.ListHistory(ctx, f)
}

func (s *Service) HistoryEntry(ctx context.Context, id int64) (*models.SubmissionHistory, error) {
	h, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("history %d: %w", id, ErrNotFound)
	}
	return h, nil
}

// DeadLetters lists grading jobs that exhausted their attempts or failed
// permanently, newest first.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]models.DeadLetterJob, error) {
	return s.store.ListDeadLetters(ctx, limit)
}
