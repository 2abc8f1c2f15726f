package stego

import "fmt"

// CapacityExceededError is returned when a frame cannot fit in the cover
// image. Maps to HTTP 413 at a facade's discretion (§7).
type CapacityExceededError struct {
	Needed    uint64
	Available uint64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("stego: capacity exceeded: needed %d bytes, available %d", e.Needed, e.Available)
}

// InvalidMagicError is returned when the extracted header's magic does not
// match. Maps to HTTP 422 at a facade's discretion (§7).
type InvalidMagicError struct {
	Got uint32
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("stego: invalid magic: got 0x%08x, want 0x%08x", e.Got, magic)
}

// CrcMismatchError is returned when the payload's recomputed CRC32 does not
// match the header's recorded value. Maps to HTTP 422 at a facade's
// discretion (§7).
type CrcMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *CrcMismatchError) Error() string {
	return fmt.Sprintf("stego: crc mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// ExtractionFailedError is returned when the cover image does not carry
// enough bits to satisfy the header or payload length. Maps to HTTP 422 at
// a facade's discretion (§7).
type ExtractionFailedError struct {
	Reason string
}

func (e *ExtractionFailedError) Error() string {
	return fmt.Sprintf("stego: extraction failed: %s", e.Reason)
}
