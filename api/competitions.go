package api

import (
	"net/http"

	"github.com/garnizeh/contest/internal/contest"
)

// CompetitionHandler serves the participant and public competition reads.
type CompetitionHandler struct {
	svc *contest.Service
}

func NewCompetitionHandler(svc *contest.Service) *CompetitionHandler {
	return &CompetitionHandler{svc: svc}
}

type platformResponse struct {
	Name   string `json:"platform_name"`
	Logo   string `json:"platform_logo"`
	Footer string `json:"footer_text"`
}

// Platform returns the branding settings from the request's snapshot.
func (h *CompetitionHandler) Platform(w http.ResponseWriter, r *http.Request) {
	s := SettingsFrom(r.Context())
	writeJSON(w, http.StatusOK, platformResponse{
		Name:   s.Get(contest.SettingPlatformName, "CTF Platform"),
		Logo:   s.Get(contest.SettingPlatformLogo, ""),
		Footer: s.Get(contest.SettingFooterText, ""),
	})
}

func (h *CompetitionHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.VisibleCompetitions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CompetitionHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.ViewCompetition(r.Context(), id, contest.Viewer{UserID: UserID(r.Context()), IsAdmin: IsAdmin(r.Context())})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CompetitionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	lb, err := h.svc.Leaderboard(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *CompetitionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
