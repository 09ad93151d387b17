package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examprep/internal/model"
)

// AdminUser is the basic-auth user name accepted by BasicAuthGuard.
const AdminUser = "admin"

// BasicAuthGuard returns middleware that admits requests carrying HTTP basic
// credentials for AdminUser whose password matches passwordHash (bcrypt).
func BasicAuthGuard(passwordHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(AdminUser)) != 1 ||
				bcrypt.CompareHashAndPassword(passwordHash, []byte(pass)) != nil {
				if ok {
					slog.Warn("admin login failed", "user", user, "remote", r.RemoteAddr)
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="examprep admin"`)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) handleAdminReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Store.ListAllReports()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []model.ScoredReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.Store.ExportAll()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="examprep-export.json"`)
	writeJSON(w, http.StatusOK, export)
}
