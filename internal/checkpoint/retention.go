package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Policy decides which checkpoints to keep. Input is sorted newest first.
type Policy interface {
	Apply(checkpoints []Info) (keep []Info)
}

// CountPolicy keeps the N most recent checkpoints.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount checkpoints.
func (p *CountPolicy) Apply(checkpoints []Info) []Info {
	if len(checkpoints) <= p.MaxCount {
		return checkpoints
	}
	return checkpoints[:p.MaxCount]
}

// AgePolicy keeps checkpoints newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time // defaults to time.Now
}

// Apply keeps checkpoints whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(checkpoints []Info) []Info {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, c := range checkpoints {
		if c.CreatedAt.After(cutoff) {
			keep = append(keep, c)
		}
	}
	return keep
}

// SizePolicy keeps checkpoints until their total size exceeds MaxTotalBytes.
// The newest checkpoint is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

// Apply keeps checkpoints (newest first) until adding the next would exceed the limit.
func (p *SizePolicy) Apply(checkpoints []Info) []Info {
	var keep []Info
	var total int64
	for _, c := range checkpoints {
		if total+c.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, c)
		total += c.Size
	}
	return keep
}

// AnyPolicy keeps a checkpoint if any sub-policy keeps it.
type AnyPolicy []Policy

// Apply returns the union of the sub-policies.
func (p AnyPolicy) Apply(checkpoints []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p {
		for _, c := range policy.Apply(checkpoints) {
			kept[c.Path] = true
		}
	}
	return filter(checkpoints, func(c Info) bool { return kept[c.Path] })
}

// AllPolicy keeps a checkpoint only if every sub-policy keeps it.
type AllPolicy []Policy

// Apply returns the intersection of the sub-policies.
func (p AllPolicy) Apply(checkpoints []Info) []Info {
	votes := make(map[string]int)
	for _, policy := range p {
		for _, c := range policy.Apply(checkpoints) {
			votes[c.Path]++
		}
	}
	return filter(checkpoints, func(c Info) bool { return votes[c.Path] == len(p) })
}

func filter(in []Info, keep func(Info) bool) []Info {
	var out []Info
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// NewPolicy builds the rotation policy of a configuration: at most
// maxCount checkpoints, none older than maxAge. Zero values disable a
// limit. It returns nil when nothing is limited.
func NewPolicy(maxCount int, maxAge time.Duration) Policy {
	var all AllPolicy
	if maxCount > 0 {
		all = append(all, &CountPolicy{MaxCount: maxCount})
	}
	if maxAge > 0 {
		all = append(all, &AgePolicy{MaxAge: maxAge})
	}
	switch len(all) {
	case 0:
		return nil
	case 1:
		return all[0]
	}
	return all
}

// Prune deletes checkpoints in dir not kept by policy. A nil policy
// keeps everything.
func Prune(dir string, policy Policy) (deleted []string, err error) {
	if policy == nil {
		return nil, nil
	}
	all, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := policy.Apply(all)
	keepSet := make(map[string]bool, len(keep))
	for _, c := range keep {
		keepSet[c.Path] = true
	}

	for _, c := range all {
		if keepSet[c.Path] {
			continue
		}
		if err := os.Remove(c.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(c.Path), err)
		}
		deleted = append(deleted, c.Path)
	}
	return deleted, nil
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
}

// ParseSize parses size strings like "100MB", "1GB", "500KB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longer suffixes first so "MB" does not match "B".
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, ss := range suffixes {
		if strings.HasSuffix(s, ss.suffix) {
			num, err := strconv.ParseInt(strings.TrimSuffix(s, ss.suffix), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %q", s)
			}
			return num * ss.multiplier, nil
		}
	}
	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
