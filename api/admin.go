package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/garnizeh/contest/internal/contest"
	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// maxImportBytes bounds an uploaded competition document.
const maxImportBytes = 8 << 20

// AdminHandler serves everything under /v1/admin.
type AdminHandler struct {
	svc      *contest.Service
	maxBytes int64
}

func NewAdminHandler(svc *contest.Service, maxUploadBytes int64) *AdminHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 16 << 20
	}
	return &AdminHandler{svc: svc, maxBytes: maxUploadBytes}
}

type competitionRequest struct {
	Name             string     `json:"name" validate:"required,max=200"`
	Description      string     `json:"description"`
	CountdownMinutes int        `json:"countdown_minutes" validate:"gte=0"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
}

func (c competitionRequest) input() contest.CompetitionInput {
	return contest.CompetitionInput{
		Name:             c.Name,
		Description:      c.Description,
		CountdownMinutes: c.CountdownMinutes,
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
	}
}

type challengeRequest struct {
	CompetitionID int64  `json:"competition_id" validate:"required,gt=0"`
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description"`
	Points        *int   `json:"points" validate:"omitempty,gte=0"`
	Category      string `json:"category" validate:"max=50"`
	IsActive      *bool  `json:"is_active"`
}

func (c challengeRequest) input() contest.ChallengeInput {
	return contest.ChallengeInput{
		CompetitionID: c.CompetitionID,
		Title:         c.Title,
		Description:   c.Description,
		Points:        c.Points,
		Category:      c.Category,
		IsActive:      c.IsActive,
	}
}

type reviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Points   *int   `json:"points" validate:"omitempty,gte=0"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type resetResponse struct {
	Competition *models.Competition `json:"competition"`
	Archived    int                 `json:"archived"`
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Competitions

func (h *AdminHandler) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Competitions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	h.competitionResult(w, r, h.svc.Competition)
}

func (h *AdminHandler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req competitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.CreateCompetition(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) UpdateCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req competitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateCompetition(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) DeleteCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteCompetition(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) StartCompetition(w http.ResponseWriter, r *http.Request) {
	h.competitionResult(w, r, h.svc.Start)
}

func (h *AdminHandler) PauseCompetition(w http.ResponseWriter, r *http.Request) {
	h.competitionResult(w, r, h.svc.Pause)
}

func (h *AdminHandler) StopCompetition(w http.ResponseWriter, r *http.Request) {
	h.competitionResult(w, r, h.svc.Stop)
}

func (h *AdminHandler) DuplicateCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Duplicate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) ResetCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.svc.Reset(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.Competition(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Competition: c, Archived: n})
}

func (h *AdminHandler) competitionResult(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*models.Competition, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := op(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) ExportCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.Export(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	attachment(w, contest.ExportFilename(doc.Name, "json", time.Now()))
	writeJSON(w, http.StatusOK, doc)
}

func (h *AdminHandler) ExportAll(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.ExportAll(r.Context(), &buf); err != nil {
		writeServiceError(w, r, err)
		return
	}
	attachment(w, contest.ExportFilename("all_competitions", "zip", time.Now()))
	w.Header().Set("Content-Type", "application/zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ImportCompetition accepts either a multipart upload in field "file" or
// the raw JSON document as the body.
func (h *AdminHandler) ImportCompetition(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, fh, ferr := r.FormFile("file")
		if ferr != nil {
			if tooLarge(ferr) {
				writeError(w, http.StatusRequestEntityTooLarge, "too_large", "document exceeds the size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_request", "no file selected")
			return
		}
		defer f.Close()
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".json") {
			writeError(w, http.StatusBadRequest, "invalid_request", "file must be a JSON document")
			return
		}
		data, err = io.ReadAll(f)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "document exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "unreadable document")
		return
	}

	c, err := h.svc.Import(r.Context(), data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Challenges

func (h *AdminHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.Challenges(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	h.challengeResult(w, r, h.svc.Challenge)
}

func (h *AdminHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ch, err := h.svc.CreateChallenge(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *AdminHandler) UpdateChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ch, err := h.svc.UpdateChallenge(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *AdminHandler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteChallenge(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ToggleChallenge(w http.ResponseWriter, r *http.Request) {
	h.challengeResult(w, r, h.svc.ToggleChallenge)
}

func (h *AdminHandler) CopyChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ch, err := h.svc.CopyChallenge(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *AdminHandler) MoveChallengeUp(w http.ResponseWriter, r *http.Request) {
	h.moveChallenge(w, r, true)
}

func (h *AdminHandler) MoveChallengeDown(w http.ResponseWriter, r *http.Request) {
	h.moveChallenge(w, r, false)
}

func (h *AdminHandler) moveChallenge(w http.ResponseWriter, r *http.Request, up bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.svc.MoveChallenge(r.Context(), id, up)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) ExportChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.svc.ExportChallenge(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	attachment(w, contest.ExportFilename(doc.Title, "json", time.Now()))
	writeJSON(w, http.StatusOK, doc)
}

func (h *AdminHandler) challengeResult(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*models.Challenge, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ch, err := op(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// Review

func (h *AdminHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	f := repository.SubmissionFilter{Status: models.SubmissionStatus(r.URL.Query().Get("status"))}
	var err error
	if f.CompetitionID, err = queryInt(r, "competition_id"); err == nil {
		if f.ChallengeID, err = queryInt(r, "challenge_id"); err == nil {
			f.UserID, err = queryInt(r, "user_id")
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	f.Limit, f.Offset = limit, offset

	list, err := h.svc.Submissions(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.svc.Submission(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *AdminHandler) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.svc.Review(r.Context(), id, UserID(r.Context()), contest.Decision{
		Approved: req.Decision == "approved",
		Points:   req.Points,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *AdminHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	var (
		f   models.HistoryFilter
		err error
	)
	if f.CompetitionID, err = queryInt(r, "competition_id"); err == nil {
		f.UserID, err = queryInt(r, "user_id")
	}
	if err == nil {
		f.Limit, f.Offset, err = page(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	list, err := h.svc.History(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.HistoryEntry(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *AdminHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, _, err := page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	list, err := h.svc.DeadLetters(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Users

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Users(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.ToggleAdmin(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), id, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(r.Context(), UserID(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Settings

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SettingsFrom(r.Context()))
}

func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if !decodeJSON(w, r, &values) {
		return
	}
	s, err := h.svc.UpdateSettings(r.Context(), values)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UploadImage stores an image from multipart field "file" and returns its URL.
func (h *AdminHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	f, fh, err := r.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "no file selected")
		return
	}
	defer f.Close()

	url, err := h.svc.UploadImage(r.Context(), fh.Filename, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func attachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// page reads limit and offset query parameters.
func page(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	return int(limit), int(offset), nil
}
