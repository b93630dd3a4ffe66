// Package convert maps domain models to the JSON shapes of the HTTP API.
package convert

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/model"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func optID(id uuid.NullUUID) *string {
	if !id.Valid {
		return nil
	}
	s := id.UUID.String()
	return &s
}

// --- Users ---

// User is the public view of an account; credentials never leave the server.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	Active    bool       `json:"isActive"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// ToUser converts a domain user.
func ToUser(u model.User) User {
	return User{ID: u.ID.String(), Username: u.Username, Role: string(u.Role), Active: u.Active, CreatedAt: ts(u.CreatedAt)}
}

// Login is the body of a successful login or refresh.
type Login struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user,omitempty"`
}

// ToLogin converts issued tokens, optionally with the user.
func ToLogin(t model.Tokens, u *model.User) Login {
	l := Login{Token: t.AccessToken, ExpiresAt: t.ExpiresAt.UTC()}
	if u != nil {
		v := ToUser(*u)
		l.User = &v
	}
	return l
}

// --- Orders ---

// Order is the JSON form of an order.
type Order struct {
	ID             string     `json:"id"`
	OrderNumber    string     `json:"orderNumber"`
	CustomerName   string     `json:"customerName"`
	CustomerIDCard string     `json:"customerIdCard,omitempty"`
	Status         string     `json:"status"`
	CreatorID      string     `json:"creatorId,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// ToOrder converts a domain order.
func ToOrder(o model.Order) Order {
	return Order{
		ID:             o.ID.String(),
		OrderNumber:    o.Number,
		CustomerName:   o.CustomerName,
		CustomerIDCard: o.CustomerIDCard,
		Status:         string(o.Status),
		CreatorID:      o.CreatorID.String(),
		CreatedAt:      ts(o.CreatedAt),
		UpdatedAt:      ts(o.UpdatedAt),
	}
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// OrderPage is a page of orders.
type OrderPage struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// ToOrderPage converts a page; totalPages rounds up.
func ToOrderPage(p model.OrderPage) OrderPage {
	out := OrderPage{
		Orders:     make([]Order, 0, len(p.Items)),
		Pagination: Pagination{Total: p.Total, Page: p.Page, Limit: p.Size},
	}
	if p.Size > 0 {
		out.Pagination.TotalPages = (p.Total + p.Size - 1) / p.Size
	}
	for _, o := range p.Items {
		out.Orders = append(out.Orders, ToOrder(o))
	}
	return out
}

// --- Materials ---

// Item is a checklist item.
type Item struct {
	ID         string   `json:"id"`
	CategoryID string   `json:"categoryId"`
	Name       string   `json:"name"`
	FileTypes  []string `json:"fileTypes"`
	Required   bool     `json:"isRequired"`
	SortOrder  int      `json:"sortOrder"`
	Active     bool     `json:"isActive"`
}

// ToItem converts a material item.
func ToItem(it model.MaterialItem) Item {
	kinds := make([]string, 0, len(it.Kinds))
	for _, k := range it.Kinds {
		kinds = append(kinds, string(k))
	}
	return Item{
		ID:         it.ID.String(),
		CategoryID: it.CategoryID.String(),
		Name:       it.Name,
		FileTypes:  kinds,
		Required:   it.Required,
		SortOrder:  it.SortOrder,
		Active:     it.Active,
	}
}

// Category is a checklist category, with its items when enumerated.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
	Active    bool   `json:"isActive"`
	Items     []Item `json:"items,omitempty"`
}

// ToCategory converts a category without items.
func ToCategory(c model.MaterialCategory) Category {
	return Category{ID: c.ID.String(), Name: c.Name, SortOrder: c.SortOrder, Active: c.Active}
}

// ToChecklist converts an enumerated checklist; every category carries an items array.
func ToChecklist(cl []model.ChecklistCategory) []Category {
	out := make([]Category, 0, len(cl))
	for _, cc := range cl {
		c := ToCategory(cc.Category)
		c.Items = make([]Item, 0, len(cc.Items))
		for _, it := range cc.Items {
			c.Items = append(c.Items, ToItem(it))
		}
		out = append(out, c)
	}
	return out
}

// --- Artifacts ---

// Artifact is the metadata of an artifact. File fields and TextContent are exclusive.
type Artifact struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"orderId"`
	MaterialItemID *string   `json:"materialItemId"`
	FileType       string    `json:"fileType"`
	OriginalName   string    `json:"originalName,omitempty"`
	FileSize       *int64    `json:"fileSize,omitempty"`
	TextContent    *string   `json:"textContent,omitempty"`
	UploaderID     string    `json:"uploaderId"`
	UploadedAt     time.Time `json:"uploadedAt"`
}

// ToArtifact converts an artifact. The storage key stays server-side.
func ToArtifact(a model.Artifact) Artifact {
	out := Artifact{
		ID:             a.ID.String(),
		OrderID:        a.OrderID.String(),
		MaterialItemID: optID(a.MaterialItemID),
		FileType:       string(a.Kind()),
		UploaderID:     a.UploaderID.String(),
		UploadedAt:     a.UploadedAt.UTC(),
	}
	switch p := a.Payload.(type) {
	case model.BinaryPayload:
		size := p.Size
		out.OriginalName, out.FileSize = p.Name, &size
	case model.TextPayload:
		content := p.Content
		out.TextContent = &content
	}
	return out
}

// ToArtifacts converts a list, never returning nil.
func ToArtifacts(in []model.Artifact) []Artifact {
	out := make([]Artifact, 0, len(in))
	for _, a := range in {
		out = append(out, ToArtifact(a))
	}
	return out
}

// --- Collaboration ---

// Link is a collaboration token with its renderings.
type Link struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	QRCode    string    `json:"qrCode,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	Expired   bool      `json:"isExpired"`
	Reused    bool      `json:"reused"`
}

// ToLink converts a link; expiry is judged against now.
func ToLink(l model.CollabLink, now time.Time) Link {
	return Link{
		ID:        l.Token.ID.String(),
		OrderID:   l.Token.OrderID.String(),
		Token:     l.Token.Token,
		URL:       l.URL,
		QRCode:    l.QRCode,
		ExpiresAt: l.Token.ExpiresAt.UTC(),
		Expired:   !l.Token.LiveAt(now),
		Reused:    l.Reused,
	}
}

// ToLinks converts a list of links.
func ToLinks(in []model.CollabLink, now time.Time) []Link {
	out := make([]Link, 0, len(in))
	for _, l := range in {
		out = append(out, ToLink(l, now))
	}
	return out
}

// Collaboration is what a token bearer sees: the order summary, the checklist
// and the remaining validity.
type Collaboration struct {
	Order            Order      `json:"order"`
	Materials        []Category `json:"materials"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RemainingSeconds int64      `json:"remainingSeconds"`
}

// ToCollaboration converts a resolution with the checklist.
func ToCollaboration(r model.Resolution, checklist []model.ChecklistCategory) Collaboration {
	o := ToOrder(r.Order)
	// the bearer is the customer; the creator stays internal
	o.CreatorID = ""
	return Collaboration{
		Order:            o,
		Materials:        ToChecklist(checklist),
		ExpiresAt:        r.Token.ExpiresAt.UTC(),
		RemainingSeconds: int64(r.Remaining / time.Second),
	}
}
