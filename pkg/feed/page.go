package feed

import (
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10

	// keeps skip well inside int64
	maxPageNumber = 1 << 30
)

type Page struct {
	Number int
	Limit  int
}

// ParsePage is lenient: missing, non-numeric or non-positive values take the
// defaults, and limit is capped at maxLimit when maxLimit > 0. Numbers too
// large for an int are treated as huge rather than invalid.
func ParsePage(rawPage, rawLimit string, maxLimit int) Page {
	p := Page{Number: DefaultPage, Limit: DefaultLimit}

	if n, ok := parsePositive(rawPage, maxPageNumber); ok {
		p.Number = n
	}
	if n, ok := parsePositive(rawLimit, maxPageNumber); ok {
		p.Limit = n
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// parsePositive reads a value >= 1, clamped to ceiling.
func parsePositive(raw string, ceiling int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return ceiling, true
	}
	if err != nil || n < 1 {
		return 0, false
	}
	if n > ceiling {
		n = ceiling
	}
	return n, true
}

func (p Page) Skip() int64 {
	return int64(p.Number-1) * int64(p.Limit)
}

func (p Page) TotalPages(total int64) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}
