package handlers

import (
	"errors"
	"strconv"
	"strings"
)

var errInvalidLimit = errors.New("invalid limit")

// parseLimit reads the limit query param. Empty means defaultLimit; range
// checks against the service maximum happen in the service.
func parseLimit(limitStr string, defaultLimit int) (int, error) {
	limitStr = strings.TrimSpace(limitStr)
	if limitStr == "" {
		return defaultLimit, nil
	}

	l, err := strconv.Atoi(limitStr)
	if err != nil || l < 1 {
		return 0, errInvalidLimit
	}
	return l, nil
}
