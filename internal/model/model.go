// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the capability tag of an authenticated user.
type Role string

// Supported roles. There are exactly two.
const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleOperator }

// User represents an operator or administrator account.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	PwdHash   []byte    // Argon2id(password, SaltAuth)
	SaltAuth  []byte    // per-user auth salt
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// Order statuses.
const (
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool { return s == StatusInProgress || s == StatusCompleted }

// Order is a credit-processing case that collects customer materials.
type Order struct {
	ID             uuid.UUID
	Number         string // generated, immutable, unique
	CustomerName   string
	CustomerIDCard string // optional identity-document number
	Status         OrderStatus
	CreatorID      uuid.UUID // immutable after creation
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder is the input for order creation.
type NewOrder struct {
	CustomerName   string
	CustomerIDCard string
}

// OrderPatch is a partial update; nil fields are left unchanged.
type OrderPatch struct {
	CustomerName   *string
	CustomerIDCard *string
	Status         *OrderStatus
}

// Empty reports whether the patch changes nothing.
func (p OrderPatch) Empty() bool {
	return p.CustomerName == nil && p.CustomerIDCard == nil && p.Status == nil
}

// OrderFilter selects a page of orders. CreatorID == uuid.Nil means any creator.
type OrderFilter struct {
	CreatorID uuid.UUID
	Search    string
	Status    OrderStatus
	Page      int // 1-based
	Size      int
}

// Offset returns the row offset of the page.
func (f OrderFilter) Offset() int { return (f.Page - 1) * f.Size }

// OrderPage is one page of a filtered order listing.
type OrderPage struct {
	Items []Order
	Total int
	Page  int
	Size  int
}

// CollabToken is a time-boxed delegation credential bound to one order.
type CollabToken struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Token     string // opaque, unique
	ExpiresAt time.Time
	CreatedBy uuid.UUID
	CreatedAt time.Time
}

// LiveAt reports whether the token is still valid at now.
func (t CollabToken) LiveAt(now time.Time) bool { return now.Before(t.ExpiresAt) }

// Remaining returns the validity left at now, never negative.
func (t CollabToken) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// CollabLink is a minted token together with its shareable renderings.
type CollabLink struct {
	Token  CollabToken
	URL    string
	QRCode string // data URL of a PNG
	Reused bool   // an existing live token was returned
}

// Resolution is the outcome of resolving a live token.
type Resolution struct {
	Order     Order
	Token     CollabToken
	Remaining time.Duration
}
