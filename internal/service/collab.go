package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/access"
	pkgcrypto "github.com/and161185/loandocs/internal/crypto"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
)

const (
	tokenBytes        = 32
	maxMintAttempts   = 3
	DefaultCollabTTL  = 24 * time.Hour
	collaborationPath = "/collaborate/"
)

// LinkRenderer turns a collaboration URL into a scannable image.
type LinkRenderer interface {
	DataURL(url string) (string, error)
}

// MintObserver is told about mint outcomes.
type MintObserver interface {
	TokenMinted(reused bool)
}

// CollabService issues and resolves collaboration tokens. Token liveness is
// never stored; it is derived from expires_at and the current clock.
type CollabService interface {
	// Mint returns the order's live token, or a new one when none is live.
	Mint(ctx context.Context, p access.Principal, orderID uuid.UUID) (model.CollabLink, error)
	// Resolve maps a token string to its order; errs.ErrExpired once past expiry.
	Resolve(ctx context.Context, token string) (model.Resolution, error)
	List(ctx context.Context, p access.Principal, orderID uuid.UUID) ([]model.CollabLink, error)
	Revoke(ctx context.Context, p access.Principal, orderID, tokenID uuid.UUID) error
	// PurgeExpired deletes tokens past expiry and reports how many went.
	PurgeExpired(ctx context.Context, p access.Principal) (int64, error)
}

type CollabServiceImpl struct {
	tokens      repository.TokenRepository
	orders      repository.OrderRepository
	guard       *access.Guard
	ttl         time.Duration
	frontendURL string
	renderer    LinkRenderer
	observer    MintObserver
	log         *zap.Logger
	now         func() time.Time
}

// NewCollabService constructs CollabService. renderer and observer may be nil.
func NewCollabService(
	tokens repository.TokenRepository,
	orders repository.OrderRepository,
	guard *access.Guard,
	ttl time.Duration,
	frontendURL string,
	renderer LinkRenderer,
	observer MintObserver,
	log *zap.Logger,
) *CollabServiceImpl {
	if ttl <= 0 {
		ttl = DefaultCollabTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CollabServiceImpl{
		tokens:      tokens,
		orders:      orders,
		guard:       orDefault(guard),
		ttl:         ttl,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		renderer:    renderer,
		observer:    observer,
		log:         log,
		now:         time.Now,
	}
}

func (s *CollabServiceImpl) Mint(ctx context.Context, p access.Principal, orderID uuid.UUID) (model.CollabLink, error) {
	o, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionMintToken, orderID)
	if err != nil {
		return model.CollabLink{}, err
	}
	issuer := uploaderFor(p, o)

	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		id, err := uuid.NewV4()
		if err != nil {
			return model.CollabLink{}, err
		}
		secret, err := pkgcrypto.RandToken(tokenBytes)
		if err != nil {
			return model.CollabLink{}, err
		}
		now := s.now()
		candidate := model.CollabToken{
			ID:        id,
			OrderID:   o.ID,
			Token:     secret,
			ExpiresAt: now.Add(s.ttl),
			CreatedBy: issuer,
		}
		tok, created, err := s.tokens.GetOrCreateLive(ctx, candidate, now)
		if errors.Is(err, errs.ErrConflict) {
			continue
		}
		if err != nil {
			return model.CollabLink{}, err
		}
		if s.observer != nil {
			s.observer.TokenMinted(!created)
		}
		if created {
			s.log.Info("collaboration token minted",
				zap.String("order_id", o.ID.String()), zap.Time("expires_at", tok.ExpiresAt))
		}
		return s.link(tok, !created), nil
	}
	return model.CollabLink{}, fmt.Errorf("mint token: %w", errs.ErrConflict)
}

// URL returns the customer-facing address of a token.
func (s *CollabServiceImpl) URL(token string) string {
	return s.frontendURL + collaborationPath + token
}

// link renders a token; a rendering failure only drops the QR code.
func (s *CollabServiceImpl) link(tok model.CollabToken, reused bool) model.CollabLink {
	l := model.CollabLink{Token: tok, URL: s.URL(tok.Token), Reused: reused}
	if s.renderer != nil {
		qr, err := s.renderer.DataURL(l.URL)
		if err != nil {
			s.log.Warn("render collaboration qr code", zap.Error(err))
		}
		l.QRCode = qr
	}
	return l
}

func (s *CollabServiceImpl) Resolve(ctx context.Context, token string) (model.Resolution, error) {
	if token == "" {
		return model.Resolution{}, errs.ErrNotFound
	}
	tok, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		return model.Resolution{}, err
	}
	now := s.now()
	if !tok.LiveAt(now) {
		return model.Resolution{}, fmt.Errorf("collaboration link: %w", errs.ErrExpired)
	}
	o, err := s.orders.Get(ctx, tok.OrderID)
	if err != nil {
		return model.Resolution{}, err
	}
	return model.Resolution{Order: *o, Token: *tok, Remaining: tok.Remaining(now)}, nil
}

func (s *CollabServiceImpl) List(ctx context.Context, p access.Principal, orderID uuid.UUID) ([]model.CollabLink, error) {
	if _, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionListTokens, orderID); err != nil {
		return nil, err
	}
	toks, err := s.tokens.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]model.CollabLink, 0, len(toks))
	for _, t := range toks {
		out = append(out, model.CollabLink{Token: t, URL: s.URL(t.Token)})
	}
	return out, nil
}

func (s *CollabServiceImpl) Revoke(ctx context.Context, p access.Principal, orderID, tokenID uuid.UUID) error {
	if _, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionRevokeToken, orderID); err != nil {
		return err
	}
	return s.tokens.Delete(ctx, orderID, tokenID)
}

func (s *CollabServiceImpl) PurgeExpired(ctx context.Context, p access.Principal) (int64, error) {
	if err := s.guard.Check(p, access.ActionPurgeTokens, nil); err != nil {
		return 0, err
	}
	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.log.Info("expired collaboration tokens purged", zap.Int64("count", n))
	return n, nil
}
