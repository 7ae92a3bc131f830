// Package contest implements the competition engine: the lifecycle state
// machine, submission intake, review, the leaderboard and archival.
//
// Correctness under concurrency comes from the store's transactions, not
// from in-process locks. Every eligibility check that guards a write is
// repeated inside the transaction that performs the write.
package contest

import (
	"errors"
	"log/slog"
	"time"

	"github.com/garnizeh/contest/internal/schemas"
	"github.com/garnizeh/contest/internal/storage"
	"github.com/garnizeh/contest/pkg/repository"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrCompetitionInactive = errors.New("competition is not accepting submissions")
	ErrCountdownExpired    = errors.New("competition countdown has expired")
	ErrInvalidTransition   = errors.New("invalid competition state transition")
	ErrInvalidDocument     = errors.New("invalid competition document")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrSelfAdminChange     = errors.New("cannot change your own admin status")
)

// JobGradeSubmission is the job type carrying {submission_id}.
const JobGradeSubmission = "grading.request"

// Options configures a Service. Store is required.
type Options struct {
	Store             repository.Store
	Files             storage.Store
	Schemas           *schemas.Loader
	AllowedExtensions []string
	// GradingEnabled makes every accepted submission enqueue a grading job.
	GradingEnabled     bool
	GradingMaxAttempts int
	Logger             *slog.Logger
	Clock              func() time.Time
}

type Service struct {
	store          repository.Store
	files          storage.Store
	schemas        *schemas.Loader
	allowed        []string
	gradingEnabled bool
	maxAttempts    int
	logger         *slog.Logger
	clock          func() time.Time
}

func New(o Options) (*Service, error) {
	if o.Store == nil {
		return nil, errors.New("contest: store is required")
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.GradingMaxAttempts <= 0 {
		o.GradingMaxAttempts = 5
	}
	if o.Schemas == nil {
		l, err := schemas.NewLoader()
		if err != nil {
			return nil, err
		}
		o.Schemas = l
	}

	return &Service{
		store:          o.Store,
		files:          o.Files,
		schemas:        o.Schemas,
		allowed:        o.AllowedExtensions,
		gradingEnabled: o.GradingEnabled,
		maxAttempts:    o.GradingMaxAttempts,
		logger:         o.Logger,
		clock:          o.Clock,
	}, nil
}

// now is truncated to milliseconds, the precision timestamps are stored at.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}
