package qrimage

import (
	qrcode "github.com/skip2/go-qrcode"
)

const (
	minSize = 128
	maxSize = 1024
)

// PNG renders the bearer token as a QR code image. Size is clamped to a
// sane pixel range; medium error correction keeps the code scannable on
// projector screens.
func PNG(data string, size int) ([]byte, error) {
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}
	return qrcode.Encode(data, qrcode.Medium, size)
}
