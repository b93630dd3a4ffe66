package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
	"github.com/and161185/loandocs/internal/storage"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newUser(role model.Role) model.User {
	return model.User{ID: uuid.Must(uuid.NewV4()), Username: string(role) + "-user", Role: role, Active: true}
}

/************ orders ************/
type fakeOrders struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*model.Order
	taken    map[string]bool // numbers reported by NumberExists only
	conflict int             // Create calls that fail with ErrConflict
	deleted  []uuid.UUID
	keys     map[uuid.UUID][]string // storage keys returned by DeleteInProgress
	lastList model.OrderFilter
}

var _ repository.OrderRepository = (*fakeOrders)(nil)

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: map[uuid.UUID]*model.Order{}, taken: map[string]bool{}, keys: map[uuid.UUID][]string{}}
}

func (f *fakeOrders) put(o model.Order) *model.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := o
	f.byID[o.ID] = &c
	return &c
}

func (f *fakeOrders) Create(_ context.Context, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflict > 0 {
		f.conflict--
		return errs.ErrConflict
	}
	for _, e := range f.byID {
		if e.Number == o.Number {
			return errs.ErrConflict
		}
	}
	o.CreatedAt, o.UpdatedAt = t0, t0
	c := *o
	f.byID[o.ID] = &c
	return nil
}
func (f *fakeOrders) NumberExists(_ context.Context, n string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken[n] {
		delete(f.taken, n)
		return true, nil
	}
	return false, nil
}
func (f *fakeOrders) Get(_ context.Context, id uuid.UUID) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *o
	return &c, nil
}
func (f *fakeOrders) List(_ context.Context, fl model.OrderFilter) ([]model.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = fl
	var all []model.Order
	for _, o := range f.byID {
		if fl.CreatorID != uuid.Nil && o.CreatorID != fl.CreatorID {
			continue
		}
		if fl.Status != "" && o.Status != fl.Status {
			continue
		}
		if fl.Search != "" && !strings.Contains(o.Number, fl.Search) && !strings.Contains(o.CustomerName, fl.Search) {
			continue
		}
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number > all[j].Number })
	total := len(all)
	lo := fl.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + fl.Size
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}
func (f *fakeOrders) Update(_ context.Context, id uuid.UUID, p model.OrderPatch) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if p.CustomerName != nil {
		o.CustomerName = *p.CustomerName
	}
	if p.CustomerIDCard != nil {
		o.CustomerIDCard = *p.CustomerIDCard
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	c := *o
	return &c, nil
}
func (f *fakeOrders) DeleteInProgress(_ context.Context, id uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if o.Status != model.StatusInProgress {
		return nil, errs.ErrInvalidState
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return f.keys[id], nil
}

/************ materials ************/
type fakeMaterials struct {
	cats  []*model.MaterialCategory
	items []*model.MaterialItem
}

var _ repository.MaterialRepository = (*fakeMaterials)(nil)

func (f *fakeMaterials) CreateCategory(_ context.Context, c *model.MaterialCategory) error {
	cp := *c
	f.cats = append(f.cats, &cp)
	return nil
}
func (f *fakeMaterials) GetCategory(_ context.Context, id uuid.UUID) (*model.MaterialCategory, error) {
	for _, c := range f.cats {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeMaterials) UpdateCategory(_ context.Context, id uuid.UUID, p model.CategoryPatch) (*model.MaterialCategory, error) {
	for _, c := range f.cats {
		if c.ID == id {
			if p.Name != nil {
				c.Name = *p.Name
			}
			if p.SortOrder != nil {
				c.SortOrder = *p.SortOrder
			}
			cp := *c
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeMaterials) SetCategoryActive(_ context.Context, id uuid.UUID, active bool) error {
	for _, c := range f.cats {
		if c.ID == id {
			c.Active = active
			return nil
		}
	}
	return errs.ErrNotFound
}
func (f *fakeMaterials) ActiveCategories(context.Context) ([]model.MaterialCategory, error) {
	var out []model.MaterialCategory
	for _, c := range f.cats {
		if c.Active {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}
func (f *fakeMaterials) CreateItem(_ context.Context, it *model.MaterialItem) error {
	if _, err := f.GetCategory(context.Background(), it.CategoryID); err != nil {
		return err
	}
	cp := *it
	f.items = append(f.items, &cp)
	return nil
}
func (f *fakeMaterials) GetItem(_ context.Context, id uuid.UUID) (*model.MaterialItem, error) {
	for _, it := range f.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeMaterials) UpdateItem(_ context.Context, id uuid.UUID, p model.ItemPatch) (*model.MaterialItem, error) {
	for _, it := range f.items {
		if it.ID == id {
			if p.Name != nil {
				it.Name = *p.Name
			}
			if p.Kinds != nil {
				it.Kinds = p.Kinds
			}
			if p.Required != nil {
				it.Required = *p.Required
			}
			if p.SortOrder != nil {
				it.SortOrder = *p.SortOrder
			}
			cp := *it
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeMaterials) SetItemActive(_ context.Context, id uuid.UUID, active bool) error {
	for _, it := range f.items {
		if it.ID == id {
			it.Active = active
			return nil
		}
	}
	return errs.ErrNotFound
}
func (f *fakeMaterials) ActiveItems(ctx context.Context) ([]model.MaterialItem, error) {
	active := map[uuid.UUID]bool{}
	for _, c := range f.cats {
		active[c.ID] = c.Active
	}
	var out []model.MaterialItem
	for _, it := range f.items {
		if it.Active && active[it.CategoryID] {
			out = append(out, *it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

/************ artifacts ************/
type fakeArtifacts struct {
	byID      map[uuid.UUID]*model.Artifact
	order     []uuid.UUID
	createErr error
}

var _ repository.ArtifactRepository = (*fakeArtifacts)(nil)

func newFakeArtifacts() *fakeArtifacts { return &fakeArtifacts{byID: map[uuid.UUID]*model.Artifact{}} }

func (f *fakeArtifacts) Create(_ context.Context, a *model.Artifact) error {
	if f.createErr != nil {
		return f.createErr
	}
	a.UploadedAt = t0
	cp := *a
	f.byID[a.ID] = &cp
	f.order = append(f.order, a.ID)
	return nil
}
func (f *fakeArtifacts) Get(_ context.Context, id uuid.UUID) (*model.Artifact, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *a
	return &cp, nil
}
func (f *fakeArtifacts) ListByOrder(_ context.Context, orderID uuid.UUID) ([]model.Artifact, error) {
	out := []model.Artifact{}
	for i := len(f.order) - 1; i >= 0; i-- {
		if a, ok := f.byID[f.order[i]]; ok && a.OrderID == orderID {
			out = append(out, *a)
		}
	}
	return out, nil
}
func (f *fakeArtifacts) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

/************ tokens ************/
type fakeTokens struct {
	mu       sync.Mutex
	all      []model.CollabToken
	conflict int
}

var _ repository.TokenRepository = (*fakeTokens)(nil)

func (f *fakeTokens) GetOrCreateLive(_ context.Context, c model.CollabToken, now time.Time) (model.CollabToken, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.all {
		if t.OrderID == c.OrderID && t.LiveAt(now) {
			return t, false, nil
		}
	}
	if f.conflict > 0 {
		f.conflict--
		return model.CollabToken{}, false, errs.ErrConflict
	}
	c.CreatedAt = now
	f.all = append(f.all, c)
	return c, true, nil
}
func (f *fakeTokens) GetByToken(_ context.Context, s string) (*model.CollabToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.all {
		if t.Token == s {
			cp := t
			return &cp, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeTokens) ListByOrder(_ context.Context, orderID uuid.UUID) ([]model.CollabToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.CollabToken{}
	for _, t := range f.all {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeTokens) Delete(_ context.Context, orderID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.all {
		if t.ID == id && t.OrderID == orderID {
			f.all = append(f.all[:i], f.all[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}
func (f *fakeTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keep []model.CollabToken
	var n int64
	for _, t := range f.all {
		if t.LiveAt(now) {
			keep = append(keep, t)
		} else {
			n++
		}
	}
	f.all = keep
	return n, nil
}

// dropOrder mimics ON DELETE CASCADE.
func (f *fakeTokens) dropOrder(orderID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keep []model.CollabToken
	for _, t := range f.all {
		if t.OrderID != orderID {
			keep = append(keep, t)
		}
	}
	f.all = keep
}

/************ blobs ************/
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes []string
	putErr  error
	delErr  error
}

var _ storage.BlobStore = (*fakeBlobs)(nil)

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (f *fakeBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = b
	return nil
}
func (f *fakeBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, key)
	return nil
}

/************ observers ************/
type recorder struct {
	denied  []access.Reason
	stored  []model.ArtifactKind
	bytes   int64
	minted  []bool
	renders []string
	failQR  bool
}

func (r *recorder) Denied(_ access.Action, reason access.Reason) { r.denied = append(r.denied, reason) }
func (r *recorder) ArtifactStored(k model.ArtifactKind, size int64) {
	r.stored = append(r.stored, k)
	r.bytes += size
}
func (r *recorder) TokenMinted(reused bool) { r.minted = append(r.minted, reused) }
func (r *recorder) DataURL(url string) (string, error) {
	if r.failQR {
		return "", errors.New("qr boom")
	}
	r.renders = append(r.renders, url)
	return "data:image/png;base64,AAAA", nil
}
