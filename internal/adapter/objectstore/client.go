// Package objectstore fetches HRRR index files and byte ranges of GRIB2
// files from the public NOAA bucket over plain HTTPS.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/idx"
	"github.com/dustin/go-humanize"
)

// gribMagic opens every GRIB message.
var gribMagic = []byte("GRIB")

// ErrBodyTooLarge is returned when a response exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// Client talks to the object store.
type Client struct {
	httpClient *http.Client
	maxBody    int64
	logger     *slog.Logger
}

// NewClient creates a client with a per-request timeout and a cap on the
// size of any single response body.
func NewClient(timeout time.Duration, maxBody int64, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBody:    maxBody,
		logger:     logger,
	}
}

// Exists issues a HEAD request and returns nil if the object exists.
func (c *Client) Exists(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("head %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("head %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// IndexRanges fetches an .idx file and returns merged byte ranges for every
// message matching one of patterns.
func (c *Client) IndexRanges(ctx context.Context, idxURL string, patterns []string) ([]idx.ByteRange, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idxURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch index %s: status %d: %s", idxURL, resp.StatusCode, body)
	}

	ranges, err := idx.Ranges(io.LimitReader(resp.Body, c.maxBody), patterns)
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", idxURL, err)
	}
	return ranges, nil
}

// DownloadRanges fetches each range of fileURL in order and writes the
// concatenated bodies to outPath. It returns the number of bytes written.
// The output file is removed if any range fails.
func (c *Client) DownloadRanges(ctx context.Context, fileURL string, ranges []idx.ByteRange, outPath string) (n int64, err error) {
	f, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", outPath, cerr)
		}
		if err != nil {
			os.Remove(outPath)
		}
	}()

	for _, r := range ranges {
		written, err := c.fetchRange(ctx, fileURL, r, f)
		if err != nil {
			return n, err
		}
		n += written
	}

	c.logger.Debug("downloaded byte ranges",
		"url", fileURL,
		"ranges", len(ranges),
		"size", humanize.Bytes(uint64(n)),
	)
	return n, nil
}

func (c *Client) fetchRange(ctx context.Context, fileURL string, r idx.ByteRange, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", r.Header())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("range %s: %w", r.Header(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("range %s of %s: status %d", r.Header(), fileURL, resp.StatusCode)
	}

	head := make([]byte, len(gribMagic))
	if _, err := io.ReadFull(resp.Body, head); err != nil {
		return 0, fmt.Errorf("range %s: read message header: %w", r.Header(), err)
	}
	if !bytes.Equal(head, gribMagic) {
		return 0, fmt.Errorf("range %s: body does not start with a GRIB message", r.Header())
	}
	if _, err := w.Write(head); err != nil {
		return 0, err
	}

	// Read one byte past the cap so an oversized body is detected rather
	// than silently truncated.
	rest, err := io.Copy(w, io.LimitReader(resp.Body, c.maxBody-int64(len(head))+1))
	if err != nil {
		return 0, fmt.Errorf("range %s: copy body: %w", r.Header(), err)
	}
	total := int64(len(head)) + rest
	if total > c.maxBody {
		return 0, fmt.Errorf("range %s: %w (%d bytes)", r.Header(), ErrBodyTooLarge, c.maxBody)
	}
	return total, nil
}
