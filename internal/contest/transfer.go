package contest

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/garnizeh/contest/internal/schemas"
	"github.com/garnizeh/contest/internal/storage"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// Document is the portable form of a competition and its challenges.
type Document struct {
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	CountdownMinutes int                 `json:"countdown_minutes"`
	ExportDate       time.Time           `json:"export_date"`
	Challenges       []DocumentChallenge `json:"challenges"`
}

type DocumentChallenge struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Points      int    `json:"points"`
	Category    string `json:"category"`
	IsActive    bool   `json:"is_active"`
}

// ChallengeDocument is the export of a single challenge.
type ChallengeDocument struct {
	DocumentChallenge
	CompetitionName string    `json:"competition_name"`
	ExportDate      time.Time `json:"export_date"`
}

// importDocument mirrors Document with optional fields.
type importDocument struct {
	Name             string  `json:"name"`
	Description      *string `json:"description"`
	CountdownMinutes *int    `json:"countdown_minutes"`
	Challenges       []struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Points      *int    `json:"points"`
		Category    *string `json:"category"`
		IsActive    *bool   `json:"is_active"`
	} `json:"challenges"`
}

// Duplicate copies a competition and its challenges into a new draft named
// "<name> (Copy)". Submissions are not copied.
func (s *Service) Duplicate(ctx context.Context, id int64) (*models.Competition, error) {
	var out *models.Competition
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		orig, err := loadCompetition(ctx, tx, id)
		if err != nil {
			return err
		}
		challenges, err := tx.ListChallenges(ctx, id, false)
		if err != nil {
			return err
		}

		c := &models.Competition{
			Name:             orig.Name + " (Copy)",
			Description:      orig.Description,
			Status:           models.StatusDraft,
			CountdownMinutes: orig.CountdownMinutes,
		}
		if c.ID, err = tx.CreateCompetition(ctx, c); err != nil {
			return err
		}
		for _, ch := range challenges {
			ch.ID = 0
			ch.CompetitionID = c.ID
			if _, err := tx.CreateChallenge(ctx, &ch); err != nil {
				return fmt.Errorf("copy challenge %q: %w", ch.Title, err)
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loadCompetition(ctx, s.store, out.ID)
}

// Export builds the document of one competition, challenges in display order.
func (s *Service) Export(ctx context.Context, id int64) (*Document, error) {
	c, err := loadCompetition(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return s.document(ctx, c)
}

func (s *Service) document(ctx context.Context, c *models.Competition) (*Document, error) {
	challenges, err := s.store.ListChallenges(ctx, c.ID, false)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Name:             c.Name,
		Description:      c.Description,
		CountdownMinutes: c.CountdownMinutes,
		ExportDate:       s.now(),
		Challenges:       make([]DocumentChallenge, 0, len(challenges)),
	}
	for _, ch := range challenges {
		doc.Challenges = append(doc.Challenges, documentChallenge(ch))
	}
	return doc, nil
}

func documentChallenge(ch models.Challenge) DocumentChallenge {
	return DocumentChallenge{Title: ch.Title, Description: ch.Description, Points: ch.Points, Category: ch.Category, IsActive: ch.IsActive}
}

// ExportChallenge builds the document of a single challenge.
func (s *Service) ExportChallenge(ctx context.Context, id int64) (*ChallengeDocument, error) {
	ch, err := loadChallenge(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	c, err := loadCompetition(ctx, s.store, ch.CompetitionID)
	if err != nil {
		return nil, err
	}
	return &ChallengeDocument{DocumentChallenge: documentChallenge(*ch), CompetitionName: c.Name, ExportDate: s.now()}, nil
}

// ExportAll writes a ZIP archive holding one document per competition.
func (s *Service) ExportAll(ctx context.Context, w io.Writer) error {
	list, err := s.store.ListCompetitions(ctx, false)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("no competitions to export: %w", ErrNotFound)
	}

	zw := zip.NewWriter(w)
	used := make(map[string]int)
	for i := range list {
		doc, err := s.document(ctx, &list[i])
		if err != nil {
			return err
		}
		name := storage.SanitizeFilename(list[i].Name)
		used[name]++
		if n := used[name]; n > 1 {
			name += "_" + strconv.Itoa(n)
		}

		f, err := zw.Create(name + ".json")
		if err != nil {
			return fmt.Errorf("zip entry: %w", err)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
	}
	return zw.Close()
}

// ExportFilename names a download for a competition or challenge export.
func ExportFilename(name, ext string, at time.Time) string {
	return fmt.Sprintf("%s_export_%s.%s", storage.SanitizeFilename(name), at.UTC().Format("20060102_150405"), strings.TrimPrefix(ext, "."))
}

// Import creates a draft competition from a document. Documents that do not
// match the import schema return ErrInvalidDocument and create nothing; any
// failure while creating challenges rolls the whole import back.
func (s *Service) Import(ctx context.Context, data []byte) (*models.Competition, error) {
	if err := s.schemas.Validate(ctx, schemas.CompetitionImport, data); err != nil {
		var verr *schemas.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(verr.Messages, "; "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var doc importDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var id int64
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		c := &models.Competition{Name: doc.Name, Description: deref(doc.Description, ""), Status: models.StatusDraft, CountdownMinutes: deref(doc.CountdownMinutes, 0)}
		var err error
		if id, err = tx.CreateCompetition(ctx, c); err != nil {
			return err
		}
		for i, in := range doc.Challenges {
			ch := &models.Challenge{
				CompetitionID: id,
				Title:         in.Title,
				Description:   deref(in.Description, ""),
				Points:        deref(in.Points, 100),
				Category:      deref(in.Category, ""),
				IsActive:      deref(in.IsActive, true),
				OrderIndex:    i,
			}
			if _, err := tx.CreateChallenge(ctx, ch); err != nil {
				return fmt.Errorf("import challenge %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("competition imported", "competition_id", id, "challenges", len(doc.Challenges))
	return loadCompetition(ctx, s.store, id)
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
