package contest

import (
	"context"
	"sort"
	"time"

	"github.com/garnizeh/contest/pkg/models"
)

// Standing is one leaderboard row.
type Standing struct {
	Rank          int        `json:"rank"`
	UserID        int64      `json:"-"`
	Username      string     `json:"username"`
	TotalPoints   int        `json:"total_points"`
	LastSolveTime *time.Time `json:"last_solve_time"`
}

type CompetitionRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsRunning bool   `json:"is_running"`
}

type Leaderboard struct {
	Competition CompetitionRef `json:"competition"`
	Standings   []Standing     `json:"leaderboard"`
}

// Rank turns approved submissions into standings. For every (user,
// challenge) only the best award counts, so resubmitting never adds up and a
// lower later score never lowers the total. The solve time of a pair is the
// earliest review that reached its best award; a user's last solve time is
// the latest of those. Rows are ordered by total descending, last solve time
// ascending, then user id.
func Rank(solves []models.Solve) []Standing {
	type pairKey struct{ user, challenge int64 }
	type best struct {
		points int
		at     time.Time
	}

	pairs := make(map[pairKey]best)
	names := make(map[int64]string)
	for _, sv := range solves {
		names[sv.UserID] = sv.Username
		k := pairKey{sv.UserID, sv.ChallengeID}
		b, ok := pairs[k]
		switch {
		case !ok, sv.Points > b.points:
			pairs[k] = best{points: sv.Points, at: sv.ReviewedAt}
		case sv.Points == b.points && sv.ReviewedAt.Before(b.at):
			pairs[k] = best{points: sv.Points, at: sv.ReviewedAt}
		}
	}

	byUser := make(map[int64]*Standing)
	for k, b := range pairs {
		st, ok := byUser[k.user]
		if !ok {
			at := b.at
			st = &Standing{UserID: k.user, Username: names[k.user], LastSolveTime: &at}
			byUser[k.user] = st
		}
		st.TotalPoints += b.points
		if b.at.After(*st.LastSolveTime) {
			at := b.at
			st.LastSolveTime = &at
		}
	}

	out := make([]Standing, 0, len(byUser))
	for _, st := range byUser {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if !a.LastSolveTime.Equal(*b.LastSolveTime) {
			return a.LastSolveTime.Before(*b.LastSolveTime)
		}
		return a.UserID < b.UserID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Leaderboard computes the standings of a competition from the live
// submissions.
func (s *Service) Leaderboard(ctx context.Context, competitionID int64) (*Leaderboard, error) {
	c, err := loadCompetition(ctx, s.store, competitionID)
	if err != nil {
		return nil, err
	}
	solves, err := s.store.ListSolves(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	return &Leaderboard{
		Competition: CompetitionRef{ID: c.ID, Name: c.Name, IsRunning: c.IsRunning()},
		Standings:   Rank(solves),
	}, nil
}

// Stats reports active challenges and all live submissions of a competition.
func (s *Service) Stats(ctx context.Context, competitionID int64) (*models.Stats, error) {
	c, err := loadCompetition(ctx, s.store, competitionID)
	if err != nil {
		return nil, err
	}
	challenges, err := s.store.CountChallenges(ctx, competitionID, true)
	if err != nil {
		return nil, err
	}
	submissions, err := s.store.CountSubmissions(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	return &models.Stats{CompetitionID: c.ID, ChallengesCount: challenges, SubmissionsCount: submissions, IsRunning: c.IsRunning()}, nil
}

// Dashboard returns the admin overview counts.
func (s *Service) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	var (
		d   models.Dashboard
		err error
	)
	if d.TotalUsers, err = s.store.CountUsers(ctx); err != nil {
		return nil, err
	}
	if d.TotalCompetitions, err = s.store.CountCompetitions(ctx); err != nil {
		return nil, err
	}
	if d.TotalChallenges, err = s.store.CountChallenges(ctx, 0, false); err != nil {
		return nil, err
	}
	if d.PendingSubmissions, err = s.store.CountPending(ctx); err != nil {
		return nil, err
	}
	return &d, nil
}
