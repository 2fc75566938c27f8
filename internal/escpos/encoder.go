package escpos

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/text/encoding/charmap"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

// rasterBandRows caps the height of one GS v 0 block; many printers
// buffer only this much.
const rasterBandRows = 256

// rasterThreshold is the gray level below which a pixel prints black.
const rasterThreshold = 128

const maxQRPayload = 7089

type Alignment byte

const (
	AlignLeft   Alignment = 0
	AlignCenter Alignment = 1
	AlignRight  Alignment = 2
)

// QRErrorLevel is the error correction level for GS ( k.
type QRErrorLevel byte

const (
	QRLevelL QRErrorLevel = 48
	QRLevelM QRErrorLevel = 49
	QRLevelQ QRErrorLevel = 50
	QRLevelH QRErrorLevel = 51
)

// Encoder builds an ESC/POS command stream.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) Reset() {
	e.buf.Reset()
}

func (e *Encoder) Init() *Encoder {
	e.buf.Write([]byte{esc, '@'})
	return e
}

func (e *Encoder) Align(a Alignment) *Encoder {
	e.buf.Write([]byte{esc, 'a', byte(a)})
	return e
}

// Text writes s in code page 437. Runes outside it print as '?'.
func (e *Encoder) Text(s string) *Encoder {
	for _, r := range s {
		if r == '\n' || r == '\t' {
			e.buf.WriteByte(byte(r))
			continue
		}
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok || b < 0x20 {
			b = '?'
		}
		e.buf.WriteByte(b)
	}
	return e
}

func (e *Encoder) Feed(lines int) *Encoder {
	for i := 0; i < lines; i++ {
		e.buf.WriteByte('\n')
	}
	return e
}

// Cut performs a full cut (GS V A 0).
func (e *Encoder) Cut() *Encoder {
	e.buf.Write([]byte{gs, 'V', 'A', 0})
	return e
}

// Raster writes img as GS v 0 blocks of at most rasterBandRows rows.
func (e *Encoder) Raster(img *image.Gray) *Encoder {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return e
	}
	rowBytes := (width + 7) / 8

	for top := 0; top < height; top += rasterBandRows {
		rows := min(rasterBandRows, height-top)
		e.buf.Write([]byte{
			gs, 'v', '0', 0,
			byte(rowBytes), byte(rowBytes >> 8),
			byte(rows), byte(rows >> 8),
		})
		line := make([]byte, rowBytes)
		for y := top; y < top+rows; y++ {
			for i := range line {
				line[i] = 0
			}
			for x := 0; x < width; x++ {
				if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y < rasterThreshold {
					line[x/8] |= 0x80 >> (x % 8)
				}
			}
			e.buf.Write(line)
		}
	}
	return e
}

// QR prints payload with the printer's native QR generator (model 2).
func (e *Encoder) QR(payload string, moduleSize int, level QRErrorLevel) error {
	if payload == "" {
		return fmt.Errorf("qr payload is empty")
	}
	if len(payload) > maxQRPayload {
		return fmt.Errorf("qr payload too long: %d bytes", len(payload))
	}
	if moduleSize < 1 || moduleSize > 16 {
		moduleSize = 6
	}

	e.buf.Write([]byte{gs, '(', 'k', 4, 0, '1', 'A', '2', 0})
	e.buf.Write([]byte{gs, '(', 'k', 3, 0, '1', 'C', byte(moduleSize)})
	e.buf.Write([]byte{gs, '(', 'k', 3, 0, '1', 'E', byte(level)})

	n := len(payload) + 3
	e.buf.Write([]byte{gs, '(', 'k', byte(n), byte(n >> 8), '1', 'P', '0'})
	e.buf.WriteString(payload)

	e.buf.Write([]byte{gs, '(', 'k', 3, 0, '1', 'Q', '0'})
	return nil
}
