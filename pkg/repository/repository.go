package repository

import (
	"context"
	"time"

	"github.com/garnizeh/contest/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Lookups of a missing row return nil, nil.

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetAdmin(ctx context.Context, id int64, admin bool) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)
}

type CompetitionRepo interface {
	CreateCompetition(ctx context.Context, c *models.Competition) (int64, error)
	GetCompetition(ctx context.Context, id int64) (*models.Competition, error)
	ListCompetitions(ctx context.Context, visibleOnly bool) ([]models.Competition, error)
	UpdateCompetition(ctx context.Context, c *models.Competition) error
	// SetCompetitionState writes status and countdown start in one statement.
	SetCompetitionState(ctx context.Context, id int64, status models.CompetitionStatus, countdownStartedAt *time.Time) error
	// PauseIfRunning flips a running competition to paused and reports
	// whether this call made the change.
	PauseIfRunning(ctx context.Context, id int64) (bool, error)
	DeleteCompetition(ctx context.Context, id int64) error
	CountCompetitions(ctx context.Context) (int, error)
}

type ChallengeRepo interface {
	CreateChallenge(ctx context.Context, c *models.Challenge) (int64, error)
	GetChallenge(ctx context.Context, id int64) (*models.Challenge, error)
	ListChallenges(ctx context.Context, competitionID int64, activeOnly bool) ([]models.Challenge, error)
	UpdateChallenge(ctx context.Context, c *models.Challenge) error
	SetChallengeActive(ctx context.Context, id int64, active bool) error
	SetChallengeOrder(ctx context.Context, id int64, orderIndex int) error
	NextChallengeOrder(ctx context.Context, competitionID int64) (int, error)
	DeleteChallenge(ctx context.Context, id int64) error
	CountChallenges(ctx context.Context, competitionID int64, activeOnly bool) (int, error)
}

// SubmissionFilter narrows a submission listing; zero fields match everything.
type SubmissionFilter struct {
	Status        models.SubmissionStatus
	CompetitionID int64
	ChallengeID   int64
	UserID        int64
	Limit         int
	Offset        int
}

type SubmissionRepo interface {
	CreateSubmission(ctx context.Context, s *models.Submission) (int64, error)
	AddSubmissionFile(ctx context.Context, f *models.SubmissionFile) (int64, error)
	GetSubmission(ctx context.Context, id int64) (*models.Submission, error)
	ListSubmissions(ctx context.Context, f SubmissionFilter) ([]models.SubmissionView, error)
	// LatestSubmissions returns the newest submission per challenge of a
	// competition for one user, keyed by challenge id.
	LatestSubmissions(ctx context.Context, userID, competitionID int64) (map[int64]models.Submission, error)
	// ReviewSubmission applies a manual decision in one UPDATE. A nil points
	// on approval awards the challenge's points. Returns false when the
	// submission does not exist.
	ReviewSubmission(ctx context.Context, id int64, approved bool, points *int, reviewer models.Reviewer, at time.Time) (bool, error)
	// ApplyAutomatedApproval marks a submission approved by the automated
	// reviewer. Re-applying an identical approval changes nothing and
	// reports false.
	ApplyAutomatedApproval(ctx context.Context, id int64, points int, at time.Time) (bool, error)
	CountSubmissions(ctx context.Context, competitionID int64) (int, error)
	CountPending(ctx context.Context) (int, error)
	ListSolves(ctx context.Context, competitionID int64) ([]models.Solve, error)
}

type HistoryRepo interface {
	// ArchiveCompetition copies every live submission and file of the
	// competition into history and deletes the live rows. Returns the number
	// of submissions archived. Callers run it inside a transaction.
	ArchiveCompetition(ctx context.Context, competitionID int64, at time.Time) (int, error)
	ListHistory(ctx context.Context, f models.HistoryFilter) ([]models.SubmissionHistory, error)
	GetHistory(ctx context.Context, id int64) (*models.SubmissionHistory, error)
}

type SettingRepo interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	SetSetting(ctx context.Context, key, value string) error
}

type JobRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	// FetchNext claims the next due job, marking it running.
	FetchNext(ctx context.Context) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
	ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetterJob, error)
}

// Store groups every repository and can run a function inside one
// transaction with a Store bound to it.
type Store interface {
	UserRepo
	CompetitionRepo
	ChallengeRepo
	SubmissionRepo
	HistoryRepo
	SettingRepo
	JobRepo
	InTx(ctx context.Context, fn func(tx Store) error) error
}
