package httpapi

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/convert"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, invalidf("bad %s", name)
	}
	return id, nil
}

// handleLogin authenticates and returns an access token with the user.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.fail(w, r, invalidf("empty username/password"))
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Username, req.Password, remoteIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "login successful", convert.ToLogin(tok, &u))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromCtx(r.Context())
	if !ok {
		s.fail(w, r, errs.ErrUnauthorized)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToUser(u))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromCtx(r.Context())
	if !ok {
		s.fail(w, r, errs.ErrUnauthorized)
		return
	}
	tok, err := s.auth.Refresh(r.Context(), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "token refreshed", convert.ToLogin(tok, nil))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role := model.Role(req.Role)
	if req.Role == "" {
		role = model.RoleOperator
	}
	u, err := s.auth.CreateUser(r.Context(), PrincipalFromCtx(r.Context()), req.Username, req.Password, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, "user created", convert.ToUser(u))
}

func (s *Server) handleSetUserActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if err := s.auth.SetActive(r.Context(), PrincipalFromCtx(r.Context()), id, active); err != nil {
			s.fail(w, r, err)
			return
		}
		msg := "user deactivated"
		if active {
			msg = "user activated"
		}
		s.ok(w, http.StatusOK, msg, nil)
	}
}
