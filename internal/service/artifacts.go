package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/repository"
	"github.com/and161185/loandocs/internal/storage"
)

// Upload is a binary payload as received from the client.
type Upload struct {
	Name        string
	Size        int64 // declared size; -1 when unknown
	ContentType string
	Body        io.Reader
}

// SubmitInput carries one artifact submission. At least one of File and Text is set.
type SubmitInput struct {
	MaterialItemID uuid.NullUUID
	File           *Upload
	Text           *string
}

// UploadPolicy bounds binary payloads.
type UploadPolicy struct {
	MaxBytes   int64
	Extensions []string // lower case, with leading dot
}

func (p UploadPolicy) allows(ext string) bool {
	for _, e := range p.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// StoreObserver is told about committed artifacts.
type StoreObserver interface {
	ArtifactStored(kind model.ArtifactKind, size int64)
}

// ArtifactService is the artifact store.
type ArtifactService interface {
	// Submit validates everything before writing any bytes, then stores the
	// payload and records the artifact.
	Submit(ctx context.Context, p access.Principal, orderID uuid.UUID, in SubmitInput) (model.Artifact, error)
	List(ctx context.Context, p access.Principal, orderID uuid.UUID) ([]model.Artifact, error)
	Get(ctx context.Context, p access.Principal, id uuid.UUID) (model.Artifact, error)
	// Open streams a binary artifact's stored bytes.
	Open(ctx context.Context, p access.Principal, id uuid.UUID) (model.Artifact, io.ReadCloser, error)
	// Delete removes the stored payload, tolerating its absence, then the record.
	Delete(ctx context.Context, p access.Principal, id uuid.UUID) error
}

type ArtifactServiceImpl struct {
	artifacts repository.ArtifactRepository
	orders    repository.OrderRepository
	materials repository.MaterialRepository
	blobs     storage.BlobStore
	guard     *access.Guard
	policy    UploadPolicy
	observer  StoreObserver
	log       *zap.Logger
	now       func() time.Time
}

// NewArtifactService constructs ArtifactService. observer may be nil.
func NewArtifactService(
	artifacts repository.ArtifactRepository,
	orders repository.OrderRepository,
	materials repository.MaterialRepository,
	blobs storage.BlobStore,
	guard *access.Guard,
	policy UploadPolicy,
	observer StoreObserver,
	log *zap.Logger,
) *ArtifactServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArtifactServiceImpl{
		artifacts: artifacts,
		orders:    orders,
		materials: materials,
		blobs:     blobs,
		guard:     orDefault(guard),
		policy:    policy,
		observer:  observer,
		log:       log,
		now:       time.Now,
	}
}

var extKinds = map[string]model.ArtifactKind{
	".jpg": model.KindImage, ".jpeg": model.KindImage, ".png": model.KindImage, ".gif": model.KindImage,
	".webp": model.KindImage, ".heic": model.KindImage, ".bmp": model.KindImage,
	".mp4": model.KindVideo, ".mov": model.KindVideo, ".avi": model.KindVideo,
	".mkv": model.KindVideo, ".webm": model.KindVideo,
}

// KindOf infers the kind of a file from its extension; unknown ones are documents.
func KindOf(ext string) model.ArtifactKind {
	if k, ok := extKinds[strings.ToLower(ext)]; ok {
		return k
	}
	return model.KindDocument
}

// binaryPlan is a validated file upload that has not been written yet.
type binaryPlan struct {
	name        string
	ext         string
	kind        model.ArtifactKind
	contentType string
	upload      *Upload
}

func (s *ArtifactServiceImpl) planBinary(f *Upload) (*binaryPlan, error) {
	if f.Body == nil {
		return nil, invalid("file body is missing")
	}
	if f.Size > s.policy.MaxBytes {
		return nil, fmt.Errorf("file is %d bytes, limit %d: %w", f.Size, s.policy.MaxBytes, errs.ErrPayloadTooLarge)
	}
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(f.Name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return nil, invalid("file name is missing")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !s.policy.allows(ext) {
		return nil, invalid("file type %q is not allowed", ext)
	}
	ct := f.ContentType
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			ct = byExt
		}
	}
	return &binaryPlan{name: name, ext: ext, kind: KindOf(ext), contentType: ct, upload: f}, nil
}

// uploaderFor records the acting user, or the order creator for token bearers.
func uploaderFor(p access.Principal, o *model.Order) uuid.UUID {
	if u, ok := p.User(); ok {
		return u.ID
	}
	return o.CreatorID
}

func (s *ArtifactServiceImpl) Submit(ctx context.Context, p access.Principal, orderID uuid.UUID, in SubmitInput) (model.Artifact, error) {
	o, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionCreateArtifact, orderID)
	if err != nil {
		return model.Artifact{}, err
	}

	// blank text beside a file is an empty form field, not a second payload
	if in.File != nil && in.Text != nil && strings.TrimSpace(*in.Text) == "" {
		in.Text = nil
	}

	var (
		plan *binaryPlan
		text string
	)
	switch {
	case in.File == nil && in.Text == nil:
		return model.Artifact{}, invalid("either a file or text content is required")
	case in.File != nil && in.Text != nil:
		return model.Artifact{}, invalid("submit a file or text content, not both")
	case in.File != nil:
		if plan, err = s.planBinary(in.File); err != nil {
			return model.Artifact{}, err
		}
	default:
		text = strings.TrimSpace(*in.Text)
		if text == "" {
			return model.Artifact{}, invalid("text content is empty")
		}
		if len(text) > maxTextContent {
			return model.Artifact{}, invalid("text content exceeds %d bytes", maxTextContent)
		}
		if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
			return model.Artifact{}, invalid("text content is not valid UTF-8 text")
		}
	}

	kind := model.KindText
	if plan != nil {
		kind = plan.kind
	}
	if in.MaterialItemID.Valid {
		if _, err := itemForArtifact(ctx, s.materials, in.MaterialItemID.UUID, kind); err != nil {
			return model.Artifact{}, err
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Artifact{}, err
	}
	a := model.Artifact{
		ID:             id,
		OrderID:        o.ID,
		MaterialItemID: in.MaterialItemID,
		UploaderID:     uploaderFor(p, o),
	}
	if plan == nil {
		a.Payload = model.TextPayload{Content: text}
		if err := s.artifacts.Create(ctx, &a); err != nil {
			return model.Artifact{}, err
		}
		s.stored(a.Kind(), 0)
		return a, nil
	}

	payload, err := s.write(ctx, o.ID, plan)
	if err != nil {
		return model.Artifact{}, err
	}
	a.Payload = payload
	if err := s.artifacts.Create(ctx, &a); err != nil {
		s.discard(payload.StorageKey, "record insert failed")
		return model.Artifact{}, err
	}
	s.stored(a.Kind(), payload.Size)
	return a, nil
}

// write streams the upload to the blob store under a fresh key. The stream is
// cut one byte past the ceiling so undeclared oversize bodies are caught, and
// such a blob is removed before the error is returned.
func (s *ArtifactServiceImpl) write(ctx context.Context, orderID uuid.UUID, plan *binaryPlan) (model.BinaryPayload, error) {
	key, err := storage.ObjectKey(orderID, plan.ext, s.now())
	if err != nil {
		return model.BinaryPayload{}, err
	}
	cr := &countingReader{r: io.LimitReader(plan.upload.Body, s.policy.MaxBytes+1)}
	size := plan.upload.Size
	if size < 0 || size > s.policy.MaxBytes {
		size = -1
	}
	if err := s.blobs.Put(ctx, key, cr, size, plan.contentType); err != nil {
		s.discard(key, "put failed")
		return model.BinaryPayload{}, fmt.Errorf("store blob: %w", err)
	}
	if cr.n > s.policy.MaxBytes {
		s.discard(key, "oversize body")
		return model.BinaryPayload{}, fmt.Errorf("file exceeds %d bytes: %w", s.policy.MaxBytes, errs.ErrPayloadTooLarge)
	}
	return model.BinaryPayload{Name: plan.name, StorageKey: key, Size: cr.n, FileKind: plan.kind}, nil
}

// discard removes a blob that will not be referenced by any record.
func (s *ArtifactServiceImpl) discard(key, why string) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Warn("discard blob", zap.String("key", key), zap.String("reason", why), zap.Error(err))
	}
}

func (s *ArtifactServiceImpl) stored(k model.ArtifactKind, size int64) {
	if s.observer != nil {
		s.observer.ArtifactStored(k, size)
	}
}

// List returns the order's artifacts, newest first.
func (s *ArtifactServiceImpl) List(ctx context.Context, p access.Principal, orderID uuid.UUID) ([]model.Artifact, error) {
	if _, err := authorizedOrder(ctx, s.orders, s.guard, p, access.ActionListArtifacts, orderID); err != nil {
		return nil, err
	}
	return s.artifacts.ListByOrder(ctx, orderID)
}

// authorizedArtifact loads an artifact and checks a against its order.
func (s *ArtifactServiceImpl) authorizedArtifact(ctx context.Context, p access.Principal, a access.Action, id uuid.UUID) (*model.Artifact, error) {
	art, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizedOrder(ctx, s.orders, s.guard, p, a, art.OrderID); err != nil {
		return nil, err
	}
	return art, nil
}

func (s *ArtifactServiceImpl) Get(ctx context.Context, p access.Principal, id uuid.UUID) (model.Artifact, error) {
	art, err := s.authorizedArtifact(ctx, p, access.ActionReadArtifact, id)
	if err != nil {
		return model.Artifact{}, err
	}
	return *art, nil
}

func (s *ArtifactServiceImpl) Open(ctx context.Context, p access.Principal, id uuid.UUID) (model.Artifact, io.ReadCloser, error) {
	art, err := s.authorizedArtifact(ctx, p, access.ActionReadArtifact, id)
	if err != nil {
		return model.Artifact{}, nil, err
	}
	b, ok := art.Binary()
	if !ok {
		return model.Artifact{}, nil, invalid("text artifacts have no stored file")
	}
	rc, err := s.blobs.Open(ctx, b.StorageKey)
	if err != nil {
		return model.Artifact{}, nil, err
	}
	return *art, rc, nil
}

func (s *ArtifactServiceImpl) Delete(ctx context.Context, p access.Principal, id uuid.UUID) error {
	art, err := s.authorizedArtifact(ctx, p, access.ActionDeleteArtifact, id)
	if err != nil {
		return err
	}
	if b, ok := art.Binary(); ok {
		if err := s.blobs.Delete(ctx, b.StorageKey); err != nil {
			return fmt.Errorf("delete blob %s: %w", b.StorageKey, err)
		}
	}
	return s.artifacts.Delete(ctx, id)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
