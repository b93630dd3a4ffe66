package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/loandocs/internal/convert"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/service"
)

type submitTextRequest struct {
	MaterialItemID string  `json:"materialItemId"`
	TextContent    *string `json:"textContent"`
}

// targetOrder is the order named by the path: the resolved token's order on
// collaboration routes, {id} otherwise.
func targetOrder(r *http.Request) (uuid.UUID, error) {
	if res, ok := resolutionFromCtx(r.Context()); ok {
		return res.Order.ID, nil
	}
	return pathID(r, "id")
}

func parseItemID(v string) (uuid.NullUUID, error) {
	if v = strings.TrimSpace(v); v == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.FromString(v)
	if err != nil {
		return uuid.NullUUID{}, invalidf("bad materialItemId")
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

func formValue(form *multipart.Form, names ...string) (string, bool) {
	for _, n := range names {
		if vs := form.Value[n]; len(vs) > 0 {
			return vs[0], true
		}
	}
	return "", false
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	orderID, err := targetOrder(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	arts, err := s.artifacts.List(r.Context(), PrincipalFromCtx(r.Context()), orderID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToArtifacts(arts))
}

// handleSubmitArtifact accepts multipart (file and/or text_content) or a JSON text submission.
func (s *Server) handleSubmitArtifact(w http.ResponseWriter, r *http.Request) {
	orderID, err := targetOrder(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var in service.SubmitInput
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				s.fail(w, r, fmt.Errorf("upload exceeds %d bytes: %w", s.maxUpload, errs.ErrPayloadTooLarge))
				return
			}
			s.fail(w, r, invalidf("malformed multipart body"))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		form := r.MultipartForm
		if v, ok := formValue(form, "material_item_id", "materialItemId"); ok {
			if in.MaterialItemID, err = parseItemID(v); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		// browsers send the text field even when it was left empty
		if v, ok := formValue(form, "text_content", "textContent"); ok && strings.TrimSpace(v) != "" {
			in.Text = s.cleanPtr(&v)
		}
		if fhs := form.File["file"]; len(fhs) > 0 {
			fh := fhs[0]
			f, err := fh.Open()
			if err != nil {
				s.fail(w, r, fmt.Errorf("open upload: %w", err))
				return
			}
			defer func() { _ = f.Close() }()
			in.File = &service.Upload{
				Name:        fh.Filename,
				Size:        fh.Size,
				ContentType: fh.Header.Get("Content-Type"),
				Body:        f,
			}
		}
	case "application/json":
		var req submitTextRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if in.MaterialItemID, err = parseItemID(req.MaterialItemID); err != nil {
			s.fail(w, r, err)
			return
		}
		in.Text = s.cleanPtr(req.TextContent)
	default:
		s.fail(w, r, invalidf("unsupported content type %q", ct))
		return
	}

	a, err := s.artifacts.Submit(r.Context(), PrincipalFromCtx(r.Context()), orderID, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusCreated, "artifact uploaded", convert.ToArtifact(a))
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.artifacts.Get(r.Context(), PrincipalFromCtx(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "", convert.ToArtifact(a))
}

// handleOpenArtifact streams the stored file as an attachment.
func (s *Server) handleOpenArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, rc, err := s.artifacts.Open(r.Context(), PrincipalFromCtx(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	b, _ := a.Binary()
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(b.Name)))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": b.Name}))
	if b.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(b.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("stream artifact", zap.String("artifact_id", id.String()), zap.Error(err))
	}
}

func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.artifacts.Delete(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, http.StatusOK, "artifact deleted", nil)
}
