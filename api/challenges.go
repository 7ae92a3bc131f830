package api

import (
	"mime/multipart"
	"net/http"

	"github.com/garnizeh/contest/internal/contest"
	"github.com/garnizeh/contest/pkg/repository"
)

// ChallengeHandler serves challenge pages and submission intake.
type ChallengeHandler struct {
	svc      *contest.Service
	maxBytes int64
}

func NewChallengeHandler(svc *contest.Service, maxUploadBytes int64) *ChallengeHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 16 << 20
	}
	return &ChallengeHandler{svc: svc, maxBytes: maxUploadBytes}
}

func (h *ChallengeHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.ViewChallenge(r.Context(), id, contest.Viewer{UserID: UserID(r.Context()), IsAdmin: IsAdmin(r.Context())})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Submit accepts a multipart form with answer_text and any number of files.
func (h *ChallengeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var (
		files  []contest.Attachment
		opened []multipart.File
	)
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unreadable file "+fh.Filename)
			return
		}
		opened = append(opened, f)
		files = append(files, contest.Attachment{Filename: fh.Filename, Body: f})
	}

	sub, err := h.svc.Submit(r.Context(), contest.SubmitRequest{
		UserID:      UserID(r.Context()),
		ChallengeID: id,
		Answer:      r.FormValue("answer_text"),
		Files:       files,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// MySubmissions lists the caller's live submissions, newest first.
func (h *ChallengeHandler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	compID, err := queryInt(r, "competition_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	list, err := h.svc.Submissions(r.Context(), repository.SubmissionFilter{UserID: UserID(r.Context()), CompetitionID: compID})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
