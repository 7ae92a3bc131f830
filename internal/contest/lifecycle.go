package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// Viewer identifies who is reading participant-facing data.
type Viewer struct {
	UserID  int64
	IsAdmin bool
}

// CompetitionView is a competition as shown to participants.
type CompetitionView struct {
	models.Competition
	// RemainingSeconds is nil when no countdown is configured or started.
	RemainingSeconds *int64          `json:"remaining_seconds"`
	Challenges       []ChallengeCard `json:"challenges,omitempty"`
}

// ChallengeCard pairs an active challenge with the viewer's newest
// submission for it.
type ChallengeCard struct {
	models.Challenge
	LatestSubmission *models.Submission `json:"latest_submission,omitempty"`
}

// ChallengeView is the challenge page: the challenge, its competition and the
// viewer's own submissions, newest first.
type ChallengeView struct {
	Challenge        models.Challenge        `json:"challenge"`
	Competition      models.Competition      `json:"competition"`
	RemainingSeconds *int64                  `json:"remaining_seconds"`
	Submissions      []models.SubmissionView `json:"submissions"`
}

func loadCompetition(ctx context.Context, r repository.CompetitionRepo, id int64) (*models.Competition, error) {
	c, err := r.GetCompetition(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("competition %d: %w", id, ErrNotFound)
	}
	return c, nil
}

func loadChallenge(ctx context.Context, r repository.ChallengeRepo, id int64) (*models.Challenge, error) {
	c, err := r.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("challenge %d: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *Service) remaining(c *models.Competition) *int64 {
	left, ok := c.RemainingSeconds(s.now())
	if !ok {
		return nil
	}
	return &left
}

// eligibility reports why c cannot take a submission right now, or nil.
func (s *Service) eligibility(c *models.Competition) error {
	if !c.IsRunning() {
		return ErrCompetitionInactive
	}
	if c.Expired(s.now()) {
		return ErrCountdownExpired
	}
	return nil
}

// ensureOpen is eligibility plus the expiry side effect: a running
// competition whose countdown ran out is paused through r before the caller
// is turned away.
func (s *Service) ensureOpen(ctx context.Context, r repository.CompetitionRepo, c *models.Competition) error {
	reason := s.eligibility(c)
	if !errors.Is(reason, ErrCountdownExpired) {
		return reason
	}

	paused, err := r.PauseIfRunning(ctx, c.ID)
	if err != nil {
		return err
	}
	if paused {
		c.Status = models.StatusPaused
		s.logger.Info("competition auto-paused on countdown expiry", "competition_id", c.ID)
	}
	return reason
}

// transition applies next to the competition inside one transaction. next
// returns the new status and countdown start, or an error to abort.
func (s *Service) transition(ctx context.Context, id int64, next func(tx repository.Store, c *models.Competition) (models.CompetitionStatus, *time.Time, error)) (*models.Competition, error) {
	var out *models.Competition
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		c, err := loadCompetition(ctx, tx, id)
		if err != nil {
			return err
		}
		from := c.Status
		status, started, err := next(tx, c)
		if err != nil {
			return err
		}
		if err := tx.SetCompetitionState(ctx, id, status, started); err != nil {
			return fmt.Errorf("set competition state: %w", err)
		}
		c.Status = status
		c.CountdownStartedAt = started
		out = c
		s.logger.Info("competition state changed", "competition_id", id, "from", from, "to", status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Start moves a draft competition to running and starts its countdown when
// one is configured.
func (s *Service) Start(ctx context.Context, id int64) (*models.Competition, error) {
	return s.transition(ctx, id, func(_ repository.Store, c *models.Competition) (models.CompetitionStatus, *time.Time, error) {
		if c.Status != models.StatusDraft {
			return "", nil, fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.Status)
		}
		if c.CountdownMinutes <= 0 {
			return models.StatusRunning, nil, nil
		}
		now := s.now()
		return models.StatusRunning, &now, nil
	})
}

// Pause toggles between running and paused. The countdown keeps running
// while paused.
func (s *Service) Pause(ctx context.Context, id int64) (*models.Competition, error) {
	return s.transition(ctx, id, func(_ repository.Store, c *models.Competition) (models.CompetitionStatus, *time.Time, error) {
		switch c.Status {
		case models.StatusRunning:
			return models.StatusPaused, c.CountdownStartedAt, nil
		case models.StatusPaused:
			return models.StatusRunning, c.CountdownStartedAt, nil
		}
		return "", nil, fmt.Errorf("%w: pause from %s", ErrInvalidTransition, c.Status)
	})
}

// Stop ends a competition from any state.
func (s *Service) Stop(ctx context.Context, id int64) (*models.Competition, error) {
	return s.transition(ctx, id, func(_ repository.Store, c *models.Competition) (models.CompetitionStatus, *time.Time, error) {
		return models.StatusStopped, c.CountdownStartedAt, nil
	})
}

// Reset archives every submission of the competition into history and
// returns it to draft, all in one transaction. It reports how many
// submissions were archived.
func (s *Service) Reset(ctx context.Context, id int64) (int, error) {
	var archived int
	_, err := s.transition(ctx, id, func(tx repository.Store, c *models.Competition) (models.CompetitionStatus, *time.Time, error) {
		n, err := tx.ArchiveCompetition(ctx, c.ID, s.now())
		if err != nil {
			return "", nil, fmt.Errorf("archive submissions: %w", err)
		}
		archived = n
		return models.StatusDraft, nil, nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("competition reset", "competition_id", id, "archived", archived)
	return archived, nil
}

// VisibleCompetitions lists running and paused competitions.
func (s *Service) VisibleCompetitions(ctx context.Context) ([]CompetitionView, error) {
	list, err := s.store.ListCompetitions(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]CompetitionView, 0, len(list))
	for i := range list {
		out = append(out, CompetitionView{Competition: list[i], RemainingSeconds: s.remaining(&list[i])})
	}
	return out, nil
}

// ViewCompetition returns a running competition with its active challenges in
// display order and the viewer's latest submission per challenge. Admins can
// also open paused competitions; anything else is hidden.
func (s *Service) ViewCompetition(ctx context.Context, id int64, v Viewer) (*CompetitionView, error) {
	c, err := loadCompetition(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	switch {
	case v.IsAdmin:
	case c.Status == models.StatusPaused:
		return nil, ErrCompetitionInactive
	case !c.IsRunning():
		return nil, fmt.Errorf("competition %d: %w", id, ErrNotFound)
	}

	challenges, err := s.store.ListChallenges(ctx, id, true)
	if err != nil {
		return nil, err
	}
	latest, err := s.store.LatestSubmissions(ctx, v.UserID, id)
	if err != nil {
		return nil, err
	}

	view := &CompetitionView{Competition: *c, RemainingSeconds: s.remaining(c), Challenges: make([]ChallengeCard, 0, len(challenges))}
	for _, ch := range challenges {
		card := ChallengeCard{Challenge: ch}
		if sub, ok := latest[ch.ID]; ok {
			card.LatestSubmission = &sub
		}
		view.Challenges = append(view.Challenges, card)
	}
	return view, nil
}

// ViewChallenge opens a challenge for submitting. Opening it observes the
// countdown: an expired running competition is paused here.
func (s *Service) ViewChallenge(ctx context.Context, challengeID int64, v Viewer) (*ChallengeView, error) {
	ch, err := loadChallenge(ctx, s.store, challengeID)
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

	subs, err := s.store.ListSubmissions(ctx, repository.SubmissionFilter{ChallengeID: ch.ID, UserID: v.UserID})
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []models.SubmissionView{}
	}

	return &ChallengeView{Challenge: *ch, Competition: *c, RemainingSeconds: s.remaining(c), Submissions: subs}, nil
}
