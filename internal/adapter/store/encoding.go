package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"ctxrank/internal/domain"
)

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// ErrCorrupt is returned when stored bytes cannot be decoded.
var ErrCorrupt = errors.New("corrupt cache entry")

// Entry layout: magic, version, header length, JSON header, then
// rows*dim little-endian float32 values, row-major.
var magic = [4]byte{'C', 'T', 'X', 'E'}

const formatVersion uint16 = 1

// Limits that guard against allocating on garbage input.
const (
	maxHeaderLen = 1 << 20
	maxDim       = 1 << 16
)

// prefixLen is the size of magic, version and header length.
const prefixLen = 4 + 2 + 4

// EncodeEntry serialises a cache entry with its matrix.
func EncodeEntry(entry *domain.CacheEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeEntry(&buf, entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEntry parses bytes produced by EncodeEntry.
func DecodeEntry(data []byte) (*domain.CacheEntry, error) {
	return readEntry(bytes.NewReader(data), true, int64(len(data)))
}

func writeEntry(w io.Writer, entry *domain.CacheEntry) error {
	for i, row := range entry.Matrix {
		if len(row) != entry.Dim {
			return fmt.Errorf("row %d has %d values, header says %d", i, len(row), entry.Dim)
		}
	}
	if len(entry.Matrix) != entry.Rows {
		return fmt.Errorf("matrix has %d rows, header says %d", len(entry.Matrix), entry.Rows)
	}

	header, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(header))); err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}

	row := make([]byte, entry.Dim*4)
	for _, vec := range entry.Matrix {
		for i, v := range vec {
			binary.LittleEndian.PutUint32(row[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// readEntry decodes a header and, when withMatrix is set, the matrix body.
// size is the total encoded length when known, or -1.
func readEntry(r io.Reader, withMatrix bool, size int64) (*domain.CacheEntry, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, m[:])
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}

	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("%w: header length %d", ErrCorrupt, headerLen)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(header, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if entry.Rows < 0 || entry.Dim < 0 || entry.Dim > maxDim {
		return nil, fmt.Errorf("%w: invalid shape %dx%d", ErrCorrupt, entry.Rows, entry.Dim)
	}
	if entry.Dim > 0 && entry.Rows > math.MaxInt/4/entry.Dim {
		return nil, fmt.Errorf("%w: shape %dx%d overflows", ErrCorrupt, entry.Rows, entry.Dim)
	}
	if !withMatrix {
		return &entry, nil
	}

	body := int64(entry.Rows) * int64(entry.Dim) * 4
	if size >= 0 && body != size-prefixLen-int64(headerLen) {
		return nil, fmt.Errorf("%w: shape %dx%d does not match %d body bytes",
			ErrCorrupt, entry.Rows, entry.Dim, size-prefixLen-int64(headerLen))
	}

	entry.Matrix = make(domain.Matrix, entry.Rows)
	row := make([]byte, entry.Dim*4)
	for i := range entry.Matrix {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrCorrupt, i, err)
		}
		vec := make([]float32, entry.Dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[j*4:]))
		}
		entry.Matrix[i] = vec
	}

	return &entry, nil
}
