package httpapi

import (
	"net/http"

	"github.com/and161185/loandocs/internal/convert"
	"github.com/and161185/loandocs/internal/errs"
)

func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.collab.Mint(r.Context(), PrincipalFromCtx(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status, msg := http.StatusCreated, "collaboration link created"
	if l.Reused {
		status, msg = http.StatusOK, "collaboration link is still valid"
	}
	s.ok(w, status, msg, convert.ToLink(l, s.now()))
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	links, err := s.collab.List(r.Context(), PrincipalFromCtx(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToLinks(links, s.now()))
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tokenID, err := pathID(r, "tokenID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.collab.Revoke(r.Context(), PrincipalFromCtx(r.Context()), id, tokenID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "collaboration link revoked", nil)
}

func (s *Server) handlePurgeTokens(w http.ResponseWriter, r *http.Request) {
	n, err := s.collab.PurgeExpired(r.Context(), PrincipalFromCtx(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", map[string]int64{"deleted": n})
}

// handleCollabSummary shows the token bearer the order and what to collect.
func (s *Server) handleCollabSummary(w http.ResponseWriter, r *http.Request) {
	res, ok := resolutionFromCtx(r.Context())
	if !ok {
		s.fail(w, r, errs.ErrNotFound)
		return
	}
	cl, err := s.materials.ChecklistForOrder(r.Context(), PrincipalFromCtx(r.Context()), &res.Order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToCollaboration(res, cl))
}
