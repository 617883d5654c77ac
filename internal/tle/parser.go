package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const (
	lineLength = 69

	// maxLineBytes bounds a single input line; element lines are 69 bytes
	// and names are short, anything longer is not element-set text.
	maxLineBytes = 1024 * 1024
)

// Parse reads element sets as repeating name/line1/line2 groups from r.
//
// Lines are trimmed and empty lines dropped. The remaining lines are consumed
// strictly in groups of three; a trailing partial group is ignored. A group
// that fails validation is skipped and reported in ParseResult.Diagnostics.
// The returned error is non-nil only when r itself fails.
func Parse(r io.Reader, logger *slog.Logger) (*ParseResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element sets: %w", err)
	}

	res := &ParseResult{Lines: len(lines)}
	complete := len(lines) / 3 * 3

	for i := 0; i < complete; i += 3 {
		name, line1, line2 := lines[i], lines[i+1], lines[i+2]

		entry, err := parseTriplet(name, line1, line2)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Index: i / 3,
				Name:  name,
				Line1: line1,
				Line2: line2,
				Err:   err,
			})
			logger.Warn("skipping malformed element set",
				"index", i/3,
				"name", name,
				"line1", line1,
				"line2", line2,
				"error", err,
			)
			continue
		}
		entry.Index = i / 3
		res.Entries = append(res.Entries, entry)
	}

	if rest := len(lines) - complete; rest > 0 {
		res.Ignored = rest
		logger.Debug("ignored trailing lines", "count", rest)
	}

	return res, nil
}

func parseTriplet(name, line1, line2 string) (Entry, error) {
	if err := checkLine(line1, '1'); err != nil {
		return Entry{}, fmt.Errorf("line 1: %w", err)
	}
	if err := checkLine(line2, '2'); err != nil {
		return Entry{}, fmt.Errorf("line 2: %w", err)
	}

	catalog := strings.TrimSpace(line1[2:7])
	if catalog != strings.TrimSpace(line2[2:7]) {
		return Entry{}, fmt.Errorf("%w: %q vs %q", ErrCatalogMismatch, line1[2:7], line2[2:7])
	}
	catalogID, err := strconv.Atoi(catalog)
	if err != nil {
		// Alpha-5 catalog numbers (e.g. "A1234") are not understood by the
		// SGP4 library's parser.
		return Entry{}, fmt.Errorf("%w: catalog number %q", ErrUnsupported, catalog)
	}

	epoch, err := parseEpoch(line1[18:32])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: epoch: %v", ErrField, err)
	}

	elems, err := parseElements(line1, line2)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		CatalogID: catalogID,
		Name:      name,
		Epoch:     epoch,
		Line1:     line1,
		Line2:     line2,
		Elements:  elems,
	}, nil
}

// checkLine validates length, line number and checksum of one element line.
func checkLine(line string, number byte) error {
	if len(line) != lineLength {
		return fmt.Errorf("%w, got %d", ErrLineLength, len(line))
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("%w: want %q, got %q", ErrLineNumber, number, line[:2])
	}
	want, got := checksum(line), line[lineLength-1]
	if got < '0' || got > '9' || int(got-'0') != want {
		return fmt.Errorf("%w: want %d, got %q", ErrChecksum, want, got)
	}
	return nil
}

// checksum is the modulo-10 sum of the digits in columns 1-68, with each
// minus sign counting as 1.
func checksum(line string) int {
	var sum int
	for i := 0; i < lineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// parseElements decodes the numeric fields the propagator depends on. Each
// field is read the way the SGP4 library reads it, so anything accepted here
// is safe to hand to it.
func parseElements(line1, line2 string) (Elements, error) {
	var (
		e   Elements
		err error
	)

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"first derivative of mean motion", line1[33:43], nil},
		{"inclination", line2[8:16], &e.Inclination},
		{"right ascension of ascending node", line2[17:25], &e.RAAN},
		{"argument of perigee", line2[34:42], &e.ArgPerigee},
		{"mean anomaly", line2[43:51], &e.MeanAnomaly},
		{"mean motion", line2[52:63], &e.MeanMotion},
	}
	for _, f := range fields {
		v, ferr := strconv.ParseFloat(strings.Replace(f.raw, " ", "", 2), 64)
		if ferr != nil {
			return Elements{}, fmt.Errorf("%w: %s %q", ErrField, f.name, f.raw)
		}
		if f.dst != nil {
			*f.dst = v
		}
	}

	if _, err = parseExponent(line1[44:52]); err != nil {
		return Elements{}, fmt.Errorf("%w: second derivative of mean motion: %v", ErrField, err)
	}
	if e.BStar, err = parseExponent(line1[53:61]); err != nil {
		return Elements{}, fmt.Errorf("%w: bstar: %v", ErrField, err)
	}

	if e.Eccentricity, err = strconv.ParseFloat("."+line2[26:33], 64); err != nil {
		return Elements{}, fmt.Errorf("%w: eccentricity %q", ErrField, line2[26:33])
	}
	if e.MeanMotion <= 0 {
		return Elements{}, fmt.Errorf("%w: mean motion %v must be positive", ErrField, e.MeanMotion)
	}

	// The revolution counter is informational; some producers leave it blank.
	if revs := strings.TrimSpace(line2[63:68]); revs != "" {
		e.RevsAtEpoch, _ = strconv.Atoi(revs)
	}
	e.Classification = line1[7]

	return e, nil
}

// parseExponent reads an assumed-decimal field with exponent, such as
// " 10270-3" (0.10270e-3) or "-11606-4".
func parseExponent(raw string) (float64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("field %q has length %d, want 8", raw, len(raw))
	}
	s := strings.Replace(raw[0:1]+"."+raw[1:6]+"e"+raw[6:8], " ", "", 2)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", raw, err)
	}
	return v, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := strings.TrimSpace(s[2:])

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
