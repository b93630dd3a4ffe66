package httpapi

import (
	"net/http"

	"github.com/and161185/loandocs/internal/convert"
	"github.com/and161185/loandocs/internal/model"
)

type categoryRequest struct {
	Name      *string `json:"name"`
	SortOrder *int    `json:"sortOrder"`
}

type itemRequest struct {
	Name      *string  `json:"name"`
	FileTypes []string `json:"fileTypes"`
	Required  *bool    `json:"isRequired"`
	SortOrder *int     `json:"sortOrder"`
}

func kinds(in []string) []model.ArtifactKind {
	if in == nil {
		return nil
	}
	out := make([]model.ArtifactKind, 0, len(in))
	for _, k := range in {
		out = append(out, model.ArtifactKind(k))
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request) {
	cl, err := s.materials.Checklist(r.Context(), PrincipalFromCtx(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToChecklist(cl))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.materials.CreateCategory(r.Context(), PrincipalFromCtx(r.Context()), s.clean(deref(req.Name)), deref(req.SortOrder))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, "category created", convert.ToCategory(c))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.materials.UpdateCategory(r.Context(), PrincipalFromCtx(r.Context()), id, model.CategoryPatch{
		Name:      s.cleanPtr(req.Name),
		SortOrder: req.SortOrder,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "category updated", convert.ToCategory(c))
}

func (s *Server) handleDeactivateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.materials.DeactivateCategory(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "category deactivated", nil)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	catID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.materials.CreateItem(r.Context(), PrincipalFromCtx(r.Context()), catID, model.NewMaterialItem{
		Name:      s.clean(deref(req.Name)),
		Kinds:     kinds(req.FileTypes),
		Required:  deref(req.Required),
		SortOrder: deref(req.SortOrder),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, "item created", convert.ToItem(it))
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.materials.UpdateItem(r.Context(), PrincipalFromCtx(r.Context()), id, model.ItemPatch{
		Name:      s.cleanPtr(req.Name),
		Kinds:     kinds(req.FileTypes),
		Required:  req.Required,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "item updated", convert.ToItem(it))
}

func (s *Server) handleDeactivateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.materials.DeactivateItem(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "item deactivated", nil)
}
