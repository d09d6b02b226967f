// Package checkpoint writes numbered topology snapshots during long runs and
// rotates them by count, age or total size.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/loom/internal/persistence"
)

const (
	filePrefix = "checkpoint-"
	fileExt    = ".loom"
	zstdExt    = ".zst"
)

// Info describes one checkpoint file.
type Info struct {
	Path       string              `json:"path"`
	Tick       uint64              `json:"tick"`
	Size       int64               `json:"size"`
	CreatedAt  time.Time           `json:"created_at"`
	Compressed bool                `json:"compressed"`
	Header     *persistence.Header `json:"header,omitempty"`
}

// Saver is anything that can write its topology to a path. *kernel.Engine
// satisfies it.
type Saver interface {
	Save(path string) error
	TickCount() uint64
}

// FileName returns the checkpoint file name for tick.
func FileName(tick uint64, compress bool) string {
	name := fmt.Sprintf("%s%012d%s", filePrefix, tick, fileExt)
	if compress {
		name += zstdExt
	}
	return name
}

// parseName extracts the tick from a checkpoint file name.
func parseName(name string) (tick uint64, compressed, ok bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return 0, false, false
	}
	rest := strings.TrimPrefix(name, filePrefix)
	if strings.HasSuffix(rest, zstdExt) {
		compressed = true
		rest = strings.TrimSuffix(rest, zstdExt)
	}
	if !strings.HasSuffix(rest, fileExt) {
		return 0, false, false
	}
	tick, err := strconv.ParseUint(strings.TrimSuffix(rest, fileExt), 10, 64)
	if err != nil {
		return 0, false, false
	}
	return tick, compressed, true
}

// Write saves s into dir under the name of its current tick.
func Write(dir string, s Saver, compress bool) (Info, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Info{}, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	tick := s.TickCount()
	path := filepath.Join(dir, FileName(tick, compress))
	if err := s.Save(path); err != nil {
		return Info{}, fmt.Errorf("writing checkpoint at tick %d: %w", tick, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat checkpoint: %w", err)
	}
	return Info{
		Path:       path,
		Tick:       tick,
		Size:       st.Size(),
		CreatedAt:  st.ModTime(),
		Compressed: compress,
	}, nil
}

// List scans dir for checkpoint files and returns them newest tick first.
// A missing directory yields no checkpoints. Files whose header cannot be
// read are listed with a nil Header.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		tick, compressed, ok := parseName(e.Name())
		if !ok {
			continue
		}
		st, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{
			Path:       filepath.Join(dir, e.Name()),
			Tick:       tick,
			Size:       st.Size(),
			CreatedAt:  st.ModTime(),
			Compressed: compressed,
		}
		if h, err := persistence.ReadHeader(info.Path); err == nil {
			info.Header = &h
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Tick != out[j].Tick {
			return out[i].Tick > out[j].Tick
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// Latest returns the checkpoint with the highest tick.
func Latest(dir string) (Info, bool, error) {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return Info{}, false, err
	}
	return all[0], true, nil
}
