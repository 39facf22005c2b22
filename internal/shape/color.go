package shape

import (
	"crypto/sha256"
	"encoding/binary"
	"image/color"
)

const (
	lineAlpha = 255
	fillAlpha = 100
)

// ColorForLabel derives a stable color from the label text so every box of a
// class is drawn the same way across sessions.
func ColorForLabel(label string) color.NRGBA {
	sum := sha256.Sum256([]byte(label))
	v := binary.BigEndian.Uint32(sum[:4])
	return color.NRGBA{
		R: uint8(v >> 16 & 0xff),
		G: uint8(v >> 8 & 0xff),
		B: uint8(v & 0xff),
		A: lineAlpha,
	}
}
