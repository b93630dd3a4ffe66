package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/access"
	pkgcrypto "github.com/and161185/loandocs/internal/crypto"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
	"github.com/and161185/loandocs/internal/storage"
)

const (
	orderNumberPrefix   = "ORD"
	maxNumberAttempts   = 5
	defaultPageSize     = 20
	defaultMaxPageSize  = 100
	orderNumberHexBytes = 4
)

// OrderService is the order registry.
type OrderService interface {
	Create(ctx context.Context, p access.Principal, in model.NewOrder) (model.Order, error)
	Get(ctx context.Context, p access.Principal, id uuid.UUID) (model.Order, error)
	// List returns a page of the orders visible to p.
	List(ctx context.Context, p access.Principal, f model.OrderFilter) (model.OrderPage, error)
	Update(ctx context.Context, p access.Principal, id uuid.UUID, patch model.OrderPatch) (model.Order, error)
	// Delete hard-deletes an in-progress order with its artifacts and tokens.
	Delete(ctx context.Context, p access.Principal, id uuid.UUID) error
}

type OrderServiceImpl struct {
	orders  repository.OrderRepository
	blobs   storage.BlobStore
	guard   *access.Guard
	log     *zap.Logger
	pageMax int
	now     func() time.Time
}

// NewOrderService constructs OrderService. blobs receives best-effort deletes
// of payloads orphaned by order deletion.
func NewOrderService(
	orders repository.OrderRepository, blobs storage.BlobStore, guard *access.Guard, log *zap.Logger, pageMax int,
) *OrderServiceImpl {
	if pageMax <= 0 {
		pageMax = defaultMaxPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderServiceImpl{orders: orders, blobs: blobs, guard: orDefault(guard), log: log, pageMax: pageMax, now: time.Now}
}

func orDefault(g *access.Guard) *access.Guard {
	if g == nil {
		return access.NewGuard(nil, nil)
	}
	return g
}

// authorizedOrder loads an order and checks a against it.
func authorizedOrder(
	ctx context.Context, orders repository.OrderRepository, guard *access.Guard,
	p access.Principal, a access.Action, id uuid.UUID,
) (*model.Order, error) {
	o, err := orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guard.Check(p, a, o); err != nil {
		return nil, err
	}
	return o, nil
}

func newOrderNumber(now time.Time) (string, error) {
	suffix, err := pkgcrypto.RandHex(orderNumberHexBytes)
	if err != nil {
		return "", err
	}
	return orderNumberPrefix + now.Format("20060102") + suffix, nil
}

// Create generates a unique order number, checking for a collision first and
// regenerating on one. A collision that slips in between check and insert
// surfaces as errs.ErrConflict from the unique index and is retried too.
func (s *OrderServiceImpl) Create(ctx context.Context, p access.Principal, in model.NewOrder) (model.Order, error) {
	if err := s.guard.Check(p, access.ActionCreateOrder, nil); err != nil {
		return model.Order{}, err
	}
	u, ok := p.User()
	if !ok {
		return model.Order{}, errs.ErrForbidden
	}
	name, err := cleanName("customer name", in.CustomerName)
	if err != nil {
		return model.Order{}, err
	}
	idCard, err := cleanIDCard(in.CustomerIDCard)
	if err != nil {
		return model.Order{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Order{}, err
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := newOrderNumber(s.now())
		if err != nil {
			return model.Order{}, err
		}
		taken, err := s.orders.NumberExists(ctx, number)
		if err != nil {
			return model.Order{}, err
		}
		if taken {
			s.log.Warn("order number collision", zap.String("number", number), zap.Int("attempt", attempt))
			continue
		}
		o := model.Order{
			ID:             id,
			Number:         number,
			CustomerName:   name,
			CustomerIDCard: idCard,
			Status:         model.StatusInProgress,
			CreatorID:      u.ID,
		}
		err = s.orders.Create(ctx, &o)
		if errors.Is(err, errs.ErrConflict) {
			s.log.Warn("order number collision on insert", zap.String("number", number), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return model.Order{}, err
		}
		return o, nil
	}
	return model.Order{}, fmt.Errorf("no free order number after %d attempts: %w", maxNumberAttempts, errs.ErrConflict)
}

// Get returns an order the principal may read.
func (s *OrderServiceImpl) Get(ctx context.Context, p access.Principal, id uuid.UUID) (model.Order, error) {
	o, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionReadOrder, id)
	if err != nil {
		return model.Order{}, err
	}
	return *o, nil
}

// List scopes operators to their own orders regardless of the requested filter.
func (s *OrderServiceImpl) List(ctx context.Context, p access.Principal, f model.OrderFilter) (model.OrderPage, error) {
	if err := s.guard.Check(p, access.ActionListOrders, nil); err != nil {
		return model.OrderPage{}, err
	}
	creator, ok := access.ListScope(p)
	if !ok {
		return model.OrderPage{}, errs.ErrForbidden
	}
	if creator != uuid.Nil {
		f.CreatorID = creator
	}
	if f.Status != "" && !f.Status.Valid() {
		return model.OrderPage{}, invalid("unknown status %q", f.Status)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = defaultPageSize
	}
	if f.Size > s.pageMax {
		f.Size = s.pageMax
	}

	items, total, err := s.orders.List(ctx, f)
	if err != nil {
		return model.OrderPage{}, err
	}
	return model.OrderPage{Items: items, Total: total, Page: f.Page, Size: f.Size}, nil
}

// Update applies a partial update. Status may move freely between the two values.
func (s *OrderServiceImpl) Update(ctx context.Context, p access.Principal, id uuid.UUID, patch model.OrderPatch) (model.Order, error) {
	o, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionUpdateOrder, id)
	if err != nil {
		return model.Order{}, err
	}
	if patch.CustomerName != nil {
		name, err := cleanName("customer name", *patch.CustomerName)
		if err != nil {
			return model.Order{}, err
		}
		patch.CustomerName = &name
	}
	if patch.CustomerIDCard != nil {
		card, err := cleanIDCard(*patch.CustomerIDCard)
		if err != nil {
			return model.Order{}, err
		}
		patch.CustomerIDCard = &card
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.Order{}, invalid("unknown status %q", *patch.Status)
	}
	if patch.Empty() {
		return *o, nil
	}
	updated, err := s.orders.Update(ctx, id, patch)
	if err != nil {
		return model.Order{}, err
	}
	return *updated, nil
}

// Delete is refused for completed orders. Blobs of the removed artifacts are
// reclaimed after the database commit; failures there are logged only.
func (s *OrderServiceImpl) Delete(ctx context.Context, p access.Principal, id uuid.UUID) error {
	o, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionDeleteOrder, id)
	if err != nil {
		return err
	}
	if o.Status != model.StatusInProgress {
		return fmt.Errorf("order %s is %s: %w", o.Number, o.Status, errs.ErrInvalidState)
	}
	keys, err := s.orders.DeleteInProgress(ctx, id)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.blobs.Delete(ctx, k); err != nil {
			s.log.Warn("orphaned blob after order delete",
				zap.String("order_id", id.String()), zap.String("key", k), zap.Error(err))
		}
	}
	s.log.Info("order deleted", zap.String("order_id", id.String()), zap.Int("blobs", len(keys)))
	return nil
}
