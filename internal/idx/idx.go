// Package idx parses GRIB2 index (.idx) sidecar files and turns the entries
// for wanted variables into a small set of HTTP byte ranges.
//
// An index line looks like:
//
//	112:79645435:d=2026021312:TCDC:entire atmosphere:anl:
//
// i.e. message number, start byte, reference date, variable, level, forecast.
// A message ends one byte before the next message starts. The final message
// has no successor, so FallbackSpan bytes are requested past its start.
package idx

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// FallbackSpan is the length requested for the last message in a file.
const FallbackSpan = 5_000_000

// MergeGap is the largest gap between two ranges that is still fetched as
// one request.
const MergeGap = 100_000

// Entry is one parsed index line.
type Entry struct {
	Message   int
	StartByte int64
	Date      string
	Variable  string
	Level     string
	Forecast  string
}

// VarLevel is the string patterns are matched against.
func (e Entry) VarLevel() string {
	return e.Variable + ":" + e.Level
}

// ByteRange is an inclusive byte range.
type ByteRange struct {
	Start int64
	End   int64
}

// Header renders the range as an HTTP Range header value.
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Len is the number of bytes in the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// Parse reads index lines from r. Blank lines are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 6 {
			return nil, fmt.Errorf("index line %d: want 6 fields, got %d", lineNo, len(parts))
		}
		msg, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("index line %d: message number: %w", lineNo, err)
		}
		start, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index line %d: start byte: %w", lineNo, err)
		}
		entries = append(entries, Entry{
			Message:   msg,
			StartByte: start,
			Date:      parts[2],
			Variable:  parts[3],
			Level:     parts[4],
			Forecast:  parts[5],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return entries, nil
}

// Select returns one range per entry whose "variable:level" contains any of
// the patterns, in index order.
func Select(entries []Entry, patterns []string) []ByteRange {
	var ranges []ByteRange
	for i, e := range entries {
		if !matches(e.VarLevel(), patterns) {
			continue
		}
		end := e.StartByte + FallbackSpan
		if i+1 < len(entries) {
			end = entries[i+1].StartByte - 1
		}
		ranges = append(ranges, ByteRange{Start: e.StartByte, End: end})
	}
	return ranges
}

func matches(varLevel string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(varLevel, p) {
			return true
		}
	}
	return false
}

// Merge sorts ranges by start and joins any two whose gap is at most
// MergeGap bytes (including overlaps). The input is not modified.
func Merge(ranges []ByteRange) []ByteRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]ByteRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []ByteRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+MergeGap {
			last.End = max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Ranges parses an index and returns the merged ranges covering patterns.
func Ranges(r io.Reader, patterns []string) ([]ByteRange, error) {
	entries, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return Merge(Select(entries, patterns)), nil
}
