package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/server/auth"
	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// PublishHook is posted by a publish workflow that wants a release approved.
type PublishHook struct {
	Version string `json:"version" validate:"required,max=64"`
	Tag     string `json:"tag,omitempty" validate:"omitempty,max=64"`
	Title   string `json:"title,omitempty" validate:"omitempty,max=500"`
}

func (h PublishHook) title() string {
	if h.Title != "" {
		return h.Title
	}
	if h.Tag != "" {
		return fmt.Sprintf("publish %s (%s)", h.Version, h.Tag)
	}
	return "publish " + h.Version
}

type requestView struct {
	ID        int64      `json:"id"`
	PackageID int64      `json:"package_id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

func viewOf(r *models.ApprovalRequest) requestView {
	return requestView{
		ID:        r.ID,
		PackageID: r.PackageID,
		Title:     r.Title,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt,
		DecidedAt: r.DecidedAt,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{common.ErrorForbidden, http.StatusForbidden},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrorConflict, http.StatusConflict},
	{common.ErrRequestClosed, http.StatusConflict},
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.err.Error())
			return
		}
	}
	s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		p, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func (s *Server) publishHook(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	packageID, err := pathID(r, "packageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var hook PublishHook
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.validate.Struct(hook); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, verrs.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := s.requests.Create(r.Context(), p.UserID, packageID, hook.title())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/requests/%d", req.ID))
	writeJSON(w, http.StatusCreated, viewOf(req))
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	requestID, err := pathID(r, "requestID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := s.requests.Get(r.Context(), requestID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.packages.RequireMember(r.Context(), req.PackageID, p.UserID); err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(req))
}
