// Package stego implements the LSB steganographic codec (C5): embedding and
// extracting a framed, length-prefixed, CRC-protected payload into the
// least-significant bits of an RGB8 image, with optional DEFLATE
// compression. The codec is a pure in-memory transformation; it never
// blocks on I/O beyond memory buffers (§2).
package stego

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/draw"

	"github.com/klauspost/compress/flate"
)

// magic identifies a stego frame: "STEG" as a big-endian uint32.
const magic uint32 = 0x53544547

// headerSize is the fixed 12-byte header: magic(4) + length(4) + crc(4).
const headerSize = 12

const channels = 3

// CoverInfo describes the cover image's embedding capacity.
type CoverInfo struct {
	Width          int
	Height         int
	Channels       int
	LSBPerChannel  int
	CapacityBytes  uint64
}

// capacityBits returns the total number of bits available for a cover of
// the given dimensions, per §3: W*H*3*k.
func capacityBits(width, height, k int) uint64 {
	return uint64(width) * uint64(height) * uint64(channels) * uint64(k)
}

func computeCoverInfo(width, height, k int) CoverInfo {
	bits := capacityBits(width, height, k)
	return CoverInfo{
		Width:         width,
		Height:        height,
		Channels:      channels,
		LSBPerChannel: k,
		CapacityBytes: bits / 8,
	}
}

// Embed writes secret into cover using k least-significant bits per
// channel, optionally DEFLATE-compressing the payload first, and returns
// the resulting stego image plus the cover's capacity info.
func Embed(cover image.Image, secret []byte, k int, compress bool) (image.Image, CoverInfo, error) {
	if k < 1 {
		k = 1
	}
	bounds := cover.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	info := computeCoverInfo(width, height, k)

	payload := secret
	if compress {
		compressed, err := compressData(secret)
		if err != nil {
			return nil, info, fmt.Errorf("stego: compress payload: %w", err)
		}
		payload = compressed
	}

	frame, err := buildFrame(payload)
	if err != nil {
		return nil, info, err
	}

	requiredBits := uint64(len(frame)) * 8
	available := capacityBits(width, height, k)
	if requiredBits > available {
		return nil, info, &CapacityExceededError{
			Needed:    (requiredBits + 7) / 8,
			Available: info.CapacityBytes,
		}
	}

	rgb := toRGBA(cover)
	mask := uint8((1 << uint(k)) - 1)
	var bitIndex uint64

	walkSlots(rgb, bounds, width, height, func(pix *uint8) bool {
		if bitIndex >= requiredBits {
			return true
		}
		var value uint8
		written := 0
		for ; written < k && bitIndex < requiredBits; written++ {
			value = (value << 1) | frameBit(frame, bitIndex)
			bitIndex++
		}
		// A short final slot keeps its bits at the top of the k-bit field,
		// where Extract reads them first.
		value <<= uint(k - written)
		*pix = (*pix &^ mask) | value
		return false
	})

	return rgb, info, nil
}

// Extract reads a stego frame out of stego using k least-significant bits
// per channel, verifies its CRC, optionally inflates it, and returns the
// original secret bytes. It re-walks the image from the origin in the same
// row-major, R-G-B order used by Embed (§4.5).
func Extract(stego image.Image, k int, compress bool) ([]byte, error) {
	if k < 1 {
		k = 1
	}
	bounds := stego.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rgb := toRGBA(stego)
	mask := uint8((1 << uint(k)) - 1)

	acc := &bitAccumulator{}
	headerBitsNeeded := uint64(headerSize) * 8
	var payloadLen uint32
	haveHeader := false
	targetBits := headerBitsNeeded

	walkSlots(rgb, bounds, width, height, func(pix *uint8) bool {
		if uint64(len(acc.out))*8+uint64(acc.nbits) >= targetBits && haveHeader {
			return true
		}
		value := *pix & mask
		for j := k - 1; j >= 0; j-- {
			if uint64(len(acc.out))*8+uint64(acc.nbits) >= targetBits && haveHeader {
				return true
			}
			bit := (value >> uint(j)) & 1
			acc.push(bit)
		}
		if !haveHeader && len(acc.out) >= headerSize {
			payloadLen = binary.BigEndian.Uint32(acc.out[4:8])
			targetBits = headerBitsNeeded + uint64(payloadLen)*8
			haveHeader = true
		}
		return false
	})

	if !haveHeader {
		return nil, &ExtractionFailedError{Reason: fmt.Sprintf("image too small for header: got %d of %d bits", len(acc.out)*8, headerBitsNeeded)}
	}
	gotMagic := binary.BigEndian.Uint32(acc.out[0:4])
	if gotMagic != magic {
		return nil, &InvalidMagicError{Got: gotMagic}
	}
	expectedCRC := binary.BigEndian.Uint32(acc.out[8:12])

	totalBytesNeeded := headerSize + int(payloadLen)
	if len(acc.out) < totalBytesNeeded {
		return nil, &ExtractionFailedError{Reason: fmt.Sprintf("not enough data: expected %d bits, got %d", uint64(payloadLen)*8, uint64(len(acc.out)-headerSize)*8)}
	}
	payload := acc.out[headerSize:totalBytesNeeded]

	actualCRC := crc32.ChecksumIEEE(payload)
	if actualCRC != expectedCRC {
		return nil, &CrcMismatchError{Expected: expectedCRC, Actual: actualCRC}
	}

	if compress {
		return decompressData(payload)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// walkSlots visits every (pixel, channel) slot in row-major, R-G-B order,
// stopping early if visit returns true.
func walkSlots(rgb *image.RGBA, bounds image.Rectangle, width, height int, visit func(pix *uint8) bool) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := rgb.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			for ch := 0; ch < channels; ch++ {
				if visit(&rgb.Pix[off+ch]) {
					return
				}
			}
		}
	}
}

func buildFrame(payload []byte) ([]byte, error) {
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], magic)
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[8:12], crc32.ChecksumIEEE(payload))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// toRGBA normalizes any decoded image.Image into an addressable RGB8
// buffer whose origin is (0,0), so downstream pixel offsets are simple.
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)
	return out
}

func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressData(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("stego: decompress payload: %w", err)
	}
	return buf.Bytes(), nil
}
