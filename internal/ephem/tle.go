package ephem

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/star/satmap/internal/propagation"
)

// GroupFromPath derives a constellation group name from a file path:
// the basename without extension, upper-cased (gps-ops.txt -> GPS-OPS).
func GroupFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ParseTLE reads 3-line NORAD TLE format from r and returns element sets
// tagged with group. Malformed entries are skipped with a warning log.
func ParseTLE(r io.Reader, group string, logger *slog.Logger) ([]propagation.Elements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []propagation.Elements
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		// Validate line prefixes.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Try to find next valid triplet.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name, "group", group)
			i++
			continue
		}

		// Extract NORAD ID from line1 cols 3-7 (0-indexed: 2..7).
		noradStr := strings.TrimSpace(line1[2:min(7, len(line1))])
		noradID, err := strconv.Atoi(noradStr)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid NORAD ID", "norad_str", noradStr, "name", name)
			i += 3
			continue
		}

		epoch, err := propagation.TLEEpoch(line1)
		if err != nil {
			logger.Warn("skipping TLE entry with invalid epoch", "name", name, "error", err)
			i += 3
			continue
		}

		entries = append(entries, propagation.Elements{
			ID:    strconv.Itoa(noradID),
			Name:  strings.TrimSpace(strings.TrimPrefix(name, "0 ")),
			Group: group,
			Epoch: epoch,
			Kind:  propagation.KindTLE,
			TLE:   propagation.TLE{Line1: line1, Line2: line2},
		})
		i += 3
	}

	return entries, nil
}
