package contest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/garnizeh/contest/internal/grading"
	"github.com/garnizeh/contest/internal/jobs"
	"github.com/garnizeh/contest/internal/storage"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// Attachment is one uploaded file of a submission.
type Attachment struct {
	Filename string
	Body     io.Reader
}

type SubmitRequest struct {
	UserID      int64
	ChallengeID int64
	Answer      string
	Files       []Attachment
}

type gradePayload struct {
	SubmissionID int64 `json:"submission_id"`
}

// Submit records a pending submission if the challenge's competition is
// running and its countdown has time left. Attachments with a disallowed
// extension are dropped. When grading is enabled a grading job is committed
// together with the submission.
//
// Rejections return ErrCompetitionInactive or ErrCountdownExpired and write
// nothing except the auto-pause of an expired competition.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Submission, error) {
	if strings.TrimSpace(req.Answer) == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}

	ch, err := loadChallenge(ctx, s.store, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	c, err := loadCompetition(ctx, s.store, ch.CompetitionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOpen(ctx, s.store, c); err != nil {
		return nil, err
	}

	files, err := s.storeAttachments(ctx, req.Files)
	if err != nil {
		return nil, err
	}

	var (
		sub    *models.Submission
		reject error
	)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		c, err := loadCompetition(ctx, tx, ch.CompetitionID)
		if err != nil {
			return err
		}
		// the pause must commit even though the submission is refused
		if reject = s.ensureOpen(ctx, tx, c); reject != nil {
			if errors.Is(reject, ErrCountdownExpired) || errors.Is(reject, ErrCompetitionInactive) {
				return nil
			}
			return reject
		}

		at := s.now()
		id, err := tx.CreateSubmission(ctx, &models.Submission{UserID: req.UserID, ChallengeID: ch.ID, AnswerText: req.Answer, SubmittedAt: at})
		if err != nil {
			return err
		}
		for i := range files {
			files[i].SubmissionID = id
			fid, err := tx.AddSubmissionFile(ctx, &files[i])
			if err != nil {
				return err
			}
			files[i].ID = fid
			files[i].Created = at
		}
		if s.gradingEnabled {
			if _, err := jobs.Enqueue(ctx, tx, JobGradeSubmission, gradePayload{SubmissionID: id}, 0, s.maxAttempts); err != nil {
				return fmt.Errorf("enqueue grading: %w", err)
			}
		}

		sub = &models.Submission{ID: id, UserID: req.UserID, ChallengeID: ch.ID, AnswerText: req.Answer, Status: models.SubmissionPending, SubmittedAt: at, Files: files}
		return nil
	})
	if err == nil && reject != nil {
		err = reject
	}
	if err != nil {
		s.discard(ctx, files)
		return nil, err
	}

	s.logger.Info("submission received", "submission_id", sub.ID, "user_id", req.UserID, "challenge_id", ch.ID, "files", len(files))
	return sub, nil
}

func (s *Service) storeAttachments(ctx context.Context, in []Attachment) ([]models.SubmissionFile, error) {
	var out []models.SubmissionFile
	for _, a := range in {
		if a.Body == nil || a.Filename == "" {
			continue
		}
		if !storage.Allowed(a.Filename, s.allowed) {
			s.logger.Debug("attachment dropped", "filename", a.Filename)
			continue
		}
		if s.files == nil {
			s.discard(ctx, out)
			return nil, errors.New("attachments are not configured")
		}
		token, err := s.files.Save(ctx, a.Filename, a.Body)
		if err != nil {
			s.discard(ctx, out)
			return nil, fmt.Errorf("store attachment %s: %w", a.Filename, err)
		}
		out = append(out, models.SubmissionFile{Filename: storage.SanitizeFilename(filepath.Base(a.Filename)), StorageToken: token})
	}
	return out, nil
}

// discard removes blobs that ended up without a submission row.
func (s *Service) discard(ctx context.Context, files []models.SubmissionFile) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range files {
		if err := s.files.Delete(ctx, f.StorageToken); err != nil {
			s.logger.Warn("delete orphaned attachment", "token", f.StorageToken, "err", err)
		}
	}
}

// GradingHandler returns the job handler for JobGradeSubmission. It may run
// more than once for the same submission; applying the same verdict twice
// changes nothing. Verdicts that are malformed or refused are logged and the
// submission stays pending; transport failures are returned for retry.
func (s *Service) GradingHandler(g grading.Grader, userRefSalt string) jobs.Handler {
	return func(ctx context.Context, job *models.BackgroundJob) error {
		var p gradePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil || p.SubmissionID == 0 {
			return jobs.Permanent(fmt.Errorf("bad grading payload %q", string(job.Payload)))
		}

		sub, err := s.store.GetSubmission(ctx, p.SubmissionID)
		if err != nil {
			return err
		}
		if sub == nil {
			s.logger.Info("grading skipped, submission no longer live", "submission_id", p.SubmissionID)
			return nil
		}
		ch, err := s.store.GetChallenge(ctx, sub.ChallengeID)
		if err != nil {
			return err
		}
		if ch == nil {
			return nil
		}

		req := grading.Request{
			AnswerText:           sub.AnswerText,
			AttachmentURLs:       []string{},
			OpaqueUserRef:        grading.UserRef(userRefSalt, sub.UserID),
			ChallengeTitle:       ch.Title,
			ChallengeDescription: ch.Description,
			MaxPoints:            ch.Points,
		}
		for _, f := range sub.Files {
			if s.files == nil {
				break
			}
			u, err := s.files.URL(ctx, f.StorageToken)
			if err != nil {
				return fmt.Errorf("attachment url: %w", err)
			}
			req.AttachmentURLs = append(req.AttachmentURLs, u)
		}

		res, err := g.Grade(ctx, req)
		if errors.Is(err, grading.ErrMalformedResult) || errors.Is(err, grading.ErrRejected) {
			s.logger.Warn("grader verdict unusable, submission left pending", "submission_id", sub.ID, "err", err)
			return jobs.Permanent(err)
		}
		if err != nil {
			return err
		}

		_, err = s.ApplyGrade(ctx, sub.ID, res)
		return err
	}
}
