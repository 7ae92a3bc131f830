package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/garnizeh/contest/internal/storage"
)

// fileOpener is satisfied by storage.LocalStore.
type fileOpener interface {
	Open(token string) (*os.File, error)
}

// UploadsHandler serves blobs written by the local store under /uploads/{token}.
func UploadsHandler(files fileOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := files.Open(mux.Vars(r)["token"])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logger.Error("open upload", "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeContent(w, r, st.Name(), st.ModTime(), f)
	}
}
