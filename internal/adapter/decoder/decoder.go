// Package decoder runs the external GRIB2 decoding program and parses its
// JSON output into grid rows.
package decoder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
)

// MaxOutput caps how much stdout is accepted from one decoder run.
const MaxOutput = 100 << 20

// ErrNoInput is returned when a request names neither a surface nor a
// pressure file.
var ErrNoInput = errors.New("decoder: no input files")

// Config locates the decoder program.
type Config struct {
	Dir     string // defaults to ../hrrr-processor
	Script  string // defaults to {Dir}/process.py
	Python  string // defaults to {Dir}/venv/bin/python3
	Timeout time.Duration
}

// Subprocess runs the decoder as a child process, one per request.
type Subprocess struct {
	python  string
	script  string
	timeout time.Duration
	logger  *slog.Logger
}

// New resolves the decoder paths and fails if the script or interpreter
// cannot be found.
func New(cfg Config, logger *slog.Logger) (*Subprocess, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join("..", "hrrr-processor")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve decoder dir: %w", err)
	}

	script := cfg.Script
	if script == "" {
		script = filepath.Join(dir, "process.py")
	}
	if script, err = filepath.Abs(script); err != nil {
		return nil, fmt.Errorf("resolve decoder script: %w", err)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("decoder script not found at %q; deploy the decoder alongside the service or set DECODER_SCRIPT: %w", script, err)
	}

	python := cfg.Python
	if python == "" {
		python = filepath.Join(dir, "venv", "bin", "python3")
	}
	if filepath.IsAbs(python) {
		if _, err := os.Stat(python); err != nil {
			return nil, fmt.Errorf("decoder interpreter not found at %q; set DECODER_PYTHON to a valid python3: %w", python, err)
		}
	} else if _, err := exec.LookPath(python); err != nil {
		return nil, fmt.Errorf("decoder interpreter %q not on PATH; set DECODER_PYTHON: %w", python, err)
	}

	return &Subprocess{python: python, script: script, timeout: cfg.Timeout, logger: logger}, nil
}

// Decode runs the decoder for req and returns the parsed rows.
func (s *Subprocess) Decode(ctx context.Context, req domain.DecodeRequest) (domain.DecodeResult, error) {
	args, err := Args(req)
	if err != nil {
		return domain.DecodeResult{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.python, append([]string{s.script}, args...)...)
	stdout := &limitedBuffer{max: MaxOutput}
	cmd.Stdout = stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.DecodeResult{}, fmt.Errorf("decoder stderr: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return domain.DecodeResult{}, fmt.Errorf("start decoder: %w", err)
	}
	s.logStderr(stderr)
	if err := cmd.Wait(); err != nil {
		if stdout.overflow {
			return domain.DecodeResult{}, fmt.Errorf("decoder output exceeds %d bytes", MaxOutput)
		}
		return domain.DecodeResult{}, fmt.Errorf("run decoder: %w", err)
	}

	var out domain.DecodeResult
	if err := json.Unmarshal(stdout.buf, &out); err != nil {
		return domain.DecodeResult{}, fmt.Errorf("parse decoder output: %w", err)
	}

	s.logger.Debug("decoder finished",
		"surface_rows", len(out.Surface),
		"pressure_rows", len(out.Pressure),
		"duration", time.Since(start),
	)
	return out, nil
}

// logStderr forwards decoder progress lines until the pipe closes.
func (s *Subprocess) logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			s.logger.Info(line, "source", "decoder")
		}
	}
}

// Args builds the decoder command line for req, excluding the script path.
func Args(req domain.DecodeRequest) ([]string, error) {
	if req.SurfacePath == "" && req.PressurePath == "" {
		return nil, ErrNoInput
	}

	var args []string
	if req.SurfacePath != "" {
		args = append(args, "--surface", req.SurfacePath)
	}
	if req.PressurePath != "" {
		args = append(args, "--pressure", req.PressurePath)
	}

	levels := make([]string, len(req.PressureLevels))
	for i, l := range req.PressureLevels {
		levels[i] = strconv.Itoa(l)
	}

	args = append(args,
		"--grid-spacing", formatFloat(req.GridSpacing),
		"--lat-min", formatFloat(req.Region.MinLat),
		"--lat-max", formatFloat(req.Region.MaxLat),
		"--lng-min", formatFloat(req.Region.MinLng),
		"--lng-max", formatFloat(req.Region.MaxLng),
		"--pressure-levels", strings.Join(levels, ","),
	)
	return args, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// limitedBuffer collects up to max bytes and then fails writes.
type limitedBuffer struct {
	buf      []byte
	max      int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if len(b.buf)+len(p) > b.max {
		b.overflow = true
		return 0, errors.New("output limit reached")
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}
