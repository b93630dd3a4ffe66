package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/convert"
	"github.com/and161185/loandocs/internal/model"
)

type createOrderRequest struct {
	CustomerName   string `json:"customerName"`
	CustomerIDCard string `json:"customerIdCard"`
}

type updateOrderRequest struct {
	CustomerName   *string `json:"customerName"`
	CustomerIDCard *string `json:"customerIdCard"`
	Status         *string `json:"status"`
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalidf("bad %s", key)
	}
	return n, nil
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	size, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f := model.OrderFilter{
		Search: q.Get("search"),
		Status: model.OrderStatus(q.Get("status")),
		Page:   page,
		Size:   size,
	}
	if c := q.Get("creatorId"); c != "" {
		if f.CreatorID, err = uuid.FromString(c); err != nil {
			s.fail(w, r, invalidf("bad creatorId"))
			return
		}
	}
	res, err := s.orders.List(r.Context(), PrincipalFromCtx(r.Context()), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToOrderPage(res))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	o, err := s.orders.Create(r.Context(), PrincipalFromCtx(r.Context()), model.NewOrder{
		CustomerName:   s.clean(req.CustomerName),
		CustomerIDCard: req.CustomerIDCard,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, "order created", map[string]any{"order": convert.ToOrder(o)})
}

// handleGetOrder returns the order together with its artifacts.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p := PrincipalFromCtx(r.Context())
	o, err := s.orders.Get(r.Context(), p, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	arts, err := s.artifacts.List(r.Context(), p, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", map[string]any{
		"order":     convert.ToOrder(o),
		"artifacts": convert.ToArtifacts(arts),
	})
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	patch := model.OrderPatch{
		CustomerName:   s.cleanPtr(req.CustomerName),
		CustomerIDCard: req.CustomerIDCard,
	}
	if req.Status != nil {
		st := model.OrderStatus(*req.Status)
		patch.Status = &st
	}
	o, err := s.orders.Update(r.Context(), PrincipalFromCtx(r.Context()), id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "order updated", map[string]any{"order": convert.ToOrder(o)})
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.orders.Delete(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "order deleted", nil)
}
