package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	Created      time.Time `json:"created"`
}

// CompetitionStatus is the lifecycle state of a competition.
type CompetitionStatus string

const (
	StatusDraft   CompetitionStatus = "draft"
	StatusRunning CompetitionStatus = "running"
	StatusPaused  CompetitionStatus = "paused"
	StatusStopped CompetitionStatus = "stopped"
)

// Valid reports whether s is one of the four known states.
func (s CompetitionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusStopped:
		return true
	}
	return false
}

type Competition struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Status             CompetitionStatus `json:"status"`
	CountdownMinutes   int               `json:"countdown_minutes"`
	CountdownStartedAt *time.Time        `json:"countdown_started_at,omitempty"`
	StartTime          *time.Time        `json:"start_time,omitempty"`
	EndTime            *time.Time        `json:"end_time,omitempty"`
	Created            time.Time         `json:"created"`
}

// IsRunning reports whether the competition accepts submissions by status.
func (c *Competition) IsRunning() bool { return c.Status == StatusRunning }

// IsVisible reports whether participants can see the competition.
func (c *Competition) IsVisible() bool {
	return c.Status == StatusRunning || c.Status == StatusPaused
}

// RemainingSeconds returns the whole seconds left on the countdown at now,
// floored at zero. ok is false when no countdown is configured or it was
// never started.
func (c *Competition) RemainingSeconds(now time.Time) (remaining int64, ok bool) {
	if c.CountdownMinutes <= 0 || c.CountdownStartedAt == nil {
		return 0, false
	}
	deadline := c.CountdownStartedAt.Add(time.Duration(c.CountdownMinutes) * time.Minute)
	left := deadline.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return int64(left / time.Second), true
}

// Expired reports whether a started countdown has run out at now.
func (c *Competition) Expired(now time.Time) bool {
	left, ok := c.RemainingSeconds(now)
	return ok && left <= 0
}

type Challenge struct {
	ID            int64     `json:"id"`
	CompetitionID int64     `json:"competition_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Points        int       `json:"points"`
	Category      string    `json:"category"`
	IsActive      bool      `json:"is_active"`
	OrderIndex    int       `json:"order_index"`
	Created       time.Time `json:"created"`
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// ReviewerKind tags who produced a review.
type ReviewerKind string

const (
	ReviewerHuman     ReviewerKind = "human"
	ReviewerAutomated ReviewerKind = "automated"
)

// Reviewer is either a human user or the automated grader. UserID is only
// meaningful for human reviewers and may be nil when that user was deleted.
type Reviewer struct {
	Kind   ReviewerKind `json:"kind"`
	UserID *int64       `json:"user_id,omitempty"`
}

// HumanReviewer builds a Reviewer for user id.
func HumanReviewer(id int64) Reviewer { return Reviewer{Kind: ReviewerHuman, UserID: &id} }

// AutomatedReviewer is the reviewer recorded for grader-approved submissions.
func AutomatedReviewer() Reviewer { return Reviewer{Kind: ReviewerAutomated} }

type Submission struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	ChallengeID   int64            `json:"challenge_id"`
	AnswerText    string           `json:"answer_text"`
	Status        SubmissionStatus `json:"status"`
	PointsAwarded int              `json:"points_awarded"`
	SubmittedAt   time.Time        `json:"submitted_at"`
	ReviewedAt    *time.Time       `json:"reviewed_at,omitempty"`
	Reviewer      *Reviewer        `json:"reviewer,omitempty"`
	Files         []SubmissionFile `json:"files,omitempty"`
}

type SubmissionFile struct {
	ID           int64     `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	Filename     string    `json:"filename"`
	StorageToken string    `json:"storage_token"`
	Created      time.Time `json:"created"`
}

// SubmissionView joins a submission with the names reviewers need to see.
type SubmissionView struct {
	Submission
	Username       string `json:"username"`
	ChallengeTitle string `json:"challenge_title"`
	CompetitionID  int64  `json:"competition_id"`
}

type SubmissionHistory struct {
	ID                   int64            `json:"id"`
	OriginalSubmissionID int64            `json:"original_submission_id"`
	CompetitionID        int64            `json:"competition_id"`
	UserID               int64            `json:"user_id"`
	ChallengeID          int64            `json:"challenge_id"`
	AnswerText           string           `json:"answer_text"`
	Status               SubmissionStatus `json:"status"`
	PointsAwarded        int              `json:"points_awarded"`
	SubmittedAt          time.Time        `json:"submitted_at"`
	ReviewedAt           *time.Time       `json:"reviewed_at,omitempty"`
	Reviewer             *Reviewer        `json:"reviewer,omitempty"`
	ArchivedAt           time.Time        `json:"archived_at"`
	Files                []FileHistory    `json:"files,omitempty"`
}

type FileHistory struct {
	ID                  int64     `json:"id"`
	OriginalFileID      int64     `json:"original_file_id"`
	SubmissionHistoryID int64     `json:"submission_history_id"`
	Filename            string    `json:"filename"`
	StorageToken        string    `json:"storage_token"`
	ArchivedAt          time.Time `json:"archived_at"`
}

// HistoryFilter narrows a history listing; zero fields match everything.
type HistoryFilter struct {
	CompetitionID int64
	UserID        int64
	Limit         int
	Offset        int
}

// Solve is one approved submission as read by the leaderboard.
type Solve struct {
	UserID      int64
	Username    string
	ChallengeID int64
	Points      int
	ReviewedAt  time.Time
}

// Settings is an immutable snapshot of platform settings.
type Settings map[string]string

func (s Settings) Get(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

type Stats struct {
	CompetitionID    int64 `json:"competition_id"`
	ChallengesCount  int   `json:"challenges_count"`
	SubmissionsCount int   `json:"submissions_count"`
	IsRunning        bool  `json:"is_running"`
}

type Dashboard struct {
	TotalUsers         int `json:"total_users"`
	TotalCompetitions  int `json:"total_competitions"`
	TotalChallenges    int `json:"total_challenges"`
	PendingSubmissions int `json:"pending_submissions"`
}

type BackgroundJob struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}

type DeadLetterJob struct {
	ID        int64           `json:"id"`
	JobID     int64           `json:"job_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	FailedAt  time.Time       `json:"failed_at"`
}
