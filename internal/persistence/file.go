package persistence

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/nvandessel/loom/internal/models"
)

// Compressed reports whether path selects zstd framing.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// SaveFile encodes s into path. The file is written next to its final
// name and renamed into place, so a failed save never truncates an
// existing topology. Paths ending in .zst are zstd-compressed.
func SaveFile(path string, s *Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encodeTo(tmp, path, s); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

func encodeTo(w io.Writer, path string, s *Snapshot) error {
	if !Compressed(path) {
		return Encode(w, s)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := Encode(zw, s); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// LoadFile decodes the snapshot stored at path. See Decode.
func LoadFile(path string, want Header) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if Compressed(path) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	s, err := Decode(r, want)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// ReadHeader returns the header stored at path without validating the rest
// of the file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if Compressed(path) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return Header{}, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	d := &decoder{r: r}
	var m [4]byte
	copy(m[:], d.read(4))
	h := d.header()
	if d.err != nil {
		return Header{}, fmt.Errorf("read header of %s: %w", path, d.err)
	}
	if m != magic {
		return Header{}, fmt.Errorf("read header of %s: bad magic: %w", path, models.ErrFormatMismatch)
	}
	return h, nil
}
