package main

import (
	"fmt"
	"strconv"
	"strings"
)

// indexRange is a half-open range of pool indices.
type indexRange struct {
	start, end int
}

// parseRange parses a single index ("4") or a range ("..", "2..", "..4",
// "1..5", "..=8") over a pool of size max. Open ends are clamped to the pool.
func parseRange(s string, max int) (indexRange, error) {
	s = strings.TrimSpace(s)
	before, after, found := strings.Cut(s, "..")
	if !found {
		i, err := parseIndex(s)
		if err != nil {
			return indexRange{}, err
		}
		if i >= max {
			return indexRange{}, fmt.Errorf("index %d out of range (pool has %d)", i, max)
		}
		return indexRange{i, i + 1}, nil
	}

	inclusive := strings.HasPrefix(after, "=")
	after = strings.TrimPrefix(after, "=")

	r := indexRange{0, max}
	if before != "" {
		i, err := parseIndex(before)
		if err != nil {
			return indexRange{}, err
		}
		r.start = i
	}
	if after != "" {
		i, err := parseIndex(after)
		if err != nil {
			return indexRange{}, err
		}
		if inclusive {
			i++
		}
		r.end = min(i, max)
	}
	if r.start > r.end {
		r.start = r.end
	}
	return r, nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

// each calls fn for every index in the range.
func (r indexRange) each(fn func(int) error) error {
	for i := r.start; i < r.end; i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}
