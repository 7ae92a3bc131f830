package contest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/garnizeh/contest/internal/storage"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// ImageExtensions are accepted by UploadImage.
var ImageExtensions = []string{"png", "jpg", "jpeg", "gif", "webp"}

type CompetitionInput struct {
	Name             string
	Description      string
	CountdownMinutes int
	StartTime        *time.Time
	EndTime          *time.Time
}

func (in CompetitionInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.CountdownMinutes < 0 {
		return fmt.Errorf("%w: countdown_minutes must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *Service) Competitions(ctx context.Context) ([]models.Competition, error) {
	return s.store.ListCompetitions(ctx, false)
}

func (s *Service) Competition(ctx context.Context, id int64) (*models.Competition, error) {
	return loadCompetition(ctx, s.store, id)
}

// CreateCompetition adds a draft competition.
func (s *Service) CreateCompetition(ctx context.Context, in CompetitionInput) (*models.Competition, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	id, err := s.store.CreateCompetition(ctx, &models.Competition{
		Name:             strings.TrimSpace(in.Name),
		Description:      in.Description,
		Status:           models.StatusDraft,
		CountdownMinutes: in.CountdownMinutes,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
	})
	if err != nil {
		return nil, err
	}
	return loadCompetition(ctx, s.store, id)
}

// UpdateCompetition edits the descriptive fields. Setting the countdown to
// zero clears a started countdown.
func (s *Service) UpdateCompetition(ctx context.Context, id int64, in CompetitionInput) (*models.Competition, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		c, err := loadCompetition(ctx, tx, id)
		if err != nil {
			return err
		}
		c.Name = strings.TrimSpace(in.Name)
		c.Description = in.Description
		c.CountdownMinutes = in.CountdownMinutes
		c.StartTime = in.StartTime
		c.EndTime = in.EndTime
		return tx.UpdateCompetition(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return loadCompetition(ctx, s.store, id)
}

// DeleteCompetition removes a competition with its challenges and live
// submissions. Archived history is kept.
func (s *Service) DeleteCompetition(ctx context.Context, id int64) error {
	return s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := loadCompetition(ctx, tx, id); err != nil {
			return err
		}
		return tx.DeleteCompetition(ctx, id)
	})
}

type ChallengeInput struct {
	CompetitionID int64
	Title         string
	Description   string
	// Points defaults to 100.
	Points   *int
	Category string
	// IsActive defaults to true.
	IsActive *bool
}

func (in ChallengeInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Points != nil && *in.Points < 0 {
		return fmt.Errorf("%w: points must not be negative", ErrInvalidInput)
	}
	return nil
}

// Challenges lists every challenge of a competition in display order.
func (s *Service) Challenges(ctx context.Context, competitionID int64) ([]models.Challenge, error) {
	if _, err := loadCompetition(ctx, s.store, competitionID); err != nil {
		return nil, err
	}
	return s.store.ListChallenges(ctx, competitionID, false)
}

func (s *Service) Challenge(ctx context.Context, id int64) (*models.Challenge, error) {
	return loadChallenge(ctx, s.store, id)
}

// CreateChallenge appends a challenge to the end of its competition's order.
func (s *Service) CreateChallenge(ctx context.Context, in ChallengeInput) (*models.Challenge, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var id int64
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := loadCompetition(ctx, tx, in.CompetitionID); err != nil {
			return err
		}
		order, err := tx.NextChallengeOrder(ctx, in.CompetitionID)
		if err != nil {
			return err
		}
		id, err = tx.CreateChallenge(ctx, &models.Challenge{
			CompetitionID: in.CompetitionID,
			Title:         strings.TrimSpace(in.Title),
			Description:   in.Description,
			Points:        deref(in.Points, 100),
			Category:      in.Category,
			IsActive:      deref(in.IsActive, true),
			OrderIndex:    order,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return loadChallenge(ctx, s.store, id)
}

func (s *Service) UpdateChallenge(ctx context.Context, id int64, in ChallengeInput) (*models.Challenge, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ch, err := loadChallenge(ctx, tx, id)
		if err != nil {
			return err
		}
		ch.Title = strings.TrimSpace(in.Title)
		ch.Description = in.Description
		ch.Points = deref(in.Points, ch.Points)
		ch.Category = in.Category
		ch.IsActive = deref(in.IsActive, ch.IsActive)
		return tx.UpdateChallenge(ctx, ch)
	})
	if err != nil {
		return nil, err
	}
	return loadChallenge(ctx, s.store, id)
}

func (s *Service) DeleteChallenge(ctx context.Context, id int64) error {
	return s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := loadChallenge(ctx, tx, id); err != nil {
			return err
		}
		return tx.DeleteChallenge(ctx, id)
	})
}

// ToggleChallenge flips is_active and returns the updated challenge.
func (s *Service) ToggleChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	var out *models.Challenge
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ch, err := loadChallenge(ctx, tx, id)
		if err != nil {
			return err
		}
		ch.IsActive = !ch.IsActive
		out = ch
		return tx.SetChallengeActive(ctx, id, ch.IsActive)
	})
	return out, err
}

// CopyChallenge adds an inactive copy titled "<title> (Copy N)" to the same
// competition, N being the first number not already used there.
func (s *Service) CopyChallenge(ctx context.Context, id int64) (*models.Challenge, error) {
	var newID int64
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		orig, err := loadChallenge(ctx, tx, id)
		if err != nil {
			return err
		}
		siblings, err := tx.ListChallenges(ctx, orig.CompetitionID, false)
		if err != nil {
			return err
		}
		taken := make(map[string]bool, len(siblings))
		for _, c := range siblings {
			taken[c.Title] = true
		}
		title := ""
		for n := 1; ; n++ {
			title = fmt.Sprintf("%s (Copy %d)", orig.Title, n)
			if !taken[title] {
				break
			}
		}
		order, err := tx.NextChallengeOrder(ctx, orig.CompetitionID)
		if err != nil {
			return err
		}

		cp := *orig
		cp.ID = 0
		cp.Title = title
		cp.IsActive = false
		cp.OrderIndex = order
		newID, err = tx.CreateChallenge(ctx, &cp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loadChallenge(ctx, s.store, newID)
}

// MoveChallenge swaps a challenge with its neighbour in display order. Moving
// past either end is a no-op. Order indexes are renumbered densely.
func (s *Service) MoveChallenge(ctx context.Context, id int64, up bool) ([]models.Challenge, error) {
	var out []models.Challenge
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ch, err := loadChallenge(ctx, tx, id)
		if err != nil {
			return err
		}
		list, err := tx.ListChallenges(ctx, ch.CompetitionID, false)
		if err != nil {
			return err
		}

		i := -1
		for k := range list {
			if list[k].ID == id {
				i = k
				break
			}
		}
		j := i + 1
		if up {
			j = i - 1
		}
		if i >= 0 && j >= 0 && j < len(list) {
			list[i], list[j] = list[j], list[i]
		}

		for k := range list {
			if list[k].OrderIndex == k {
				continue
			}
			if err := tx.SetChallengeOrder(ctx, list[k].ID, k); err != nil {
				return err
			}
			list[k].OrderIndex = k
		}
		out = list
		return nil
	})
	return out, err
}

// UploadImage stores an image for challenge descriptions and returns its URL.
func (s *Service) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !storage.Allowed(filename, ImageExtensions) {
		return "", fmt.Errorf("%w: unsupported image type", ErrInvalidInput)
	}
	if s.files == nil {
		return "", fmt.Errorf("uploads are not configured")
	}
	token, err := s.files.Save(ctx, filename, r)
	if err != nil {
		return "", err
	}
	return s.files.URL(ctx, token)
}
