// Package linkcode renders collaboration links as scannable QR codes.
package linkcode

import (
	"encoding/base64"
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// Renderer encodes URLs as PNG data URLs.
type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

// New returns a renderer producing size x size pixel images.
func New(size int) *Renderer {
	if size <= 0 {
		size = 256
	}
	return &Renderer{size: size, level: qrcode.Medium}
}

// DataURL returns "data:image/png;base64,..." for url.
func (r *Renderer) DataURL(url string) (string, error) {
	if url == "" {
		return "", errors.New("linkcode: empty url")
	}
	png, err := qrcode.Encode(url, r.level, r.size)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
