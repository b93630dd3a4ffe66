package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Payload is the content of an artifact: either BinaryPayload or TextPayload.
type Payload interface {
	Kind() ArtifactKind
	isPayload()
}

// BinaryPayload is a stored file.
type BinaryPayload struct {
	Name       string // original file name
	StorageKey string // "<order id>/<unique name>"
	Size       int64
	FileKind   ArtifactKind
}

// Kind implements Payload.
func (b BinaryPayload) Kind() ArtifactKind { return b.FileKind }
func (BinaryPayload) isPayload()           {}

// TextPayload is free-text content.
type TextPayload struct {
	Content string
}

// Kind implements Payload.
func (TextPayload) Kind() ArtifactKind { return KindText }
func (TextPayload) isPayload()         {}

// Artifact is one submitted unit of evidence attached to an order.
type Artifact struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	MaterialItemID uuid.NullUUID
	Payload        Payload
	UploaderID     uuid.UUID
	UploadedAt     time.Time
}

// Kind returns the kind of the payload.
func (a Artifact) Kind() ArtifactKind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

// Binary returns the binary payload, if any.
func (a Artifact) Binary() (BinaryPayload, bool) {
	b, ok := a.Payload.(BinaryPayload)
	return b, ok
}

// Text returns the text payload, if any.
func (a Artifact) Text() (TextPayload, bool) {
	t, ok := a.Payload.(TextPayload)
	return t, ok
}
