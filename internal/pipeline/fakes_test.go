package pipeline_test

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
	"github.com/couchcryptid/hrrr-tile-service/internal/idx"
)

// --- object store ---

type fakeObjectStore struct {
	mu sync.Mutex

	available   map[string]bool  // idx URLs that answer HEAD
	indexErrors map[string]error // keyed by substring of the idx URL
	noMatches   map[string]bool  // idx URL substrings with no wanted messages
	payload     []byte

	probes    []string
	indexURLs []string
	downloads []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		available:   map[string]bool{},
		indexErrors: map[string]error{},
		noMatches:   map[string]bool{},
		payload:     []byte("GRIB-test-payload"),
	}
}

func (f *fakeObjectStore) Exists(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, url)
	if f.available[url] {
		return nil
	}
	return errors.New("status 404")
}

func (f *fakeObjectStore) IndexRanges(_ context.Context, idxURL string, _ []string) ([]idx.ByteRange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexURLs = append(f.indexURLs, idxURL)
	for substr, err := range f.indexErrors {
		if strings.Contains(idxURL, substr) {
			return nil, err
		}
	}
	for substr := range f.noMatches {
		if strings.Contains(idxURL, substr) {
			return nil, nil
		}
	}
	return []idx.ByteRange{{Start: 0, End: int64(len(f.payload) - 1)}}, nil
}

func (f *fakeObjectStore) DownloadRanges(_ context.Context, fileURL string, _ []idx.ByteRange, outPath string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, fileURL)
	if err := os.WriteFile(outPath, f.payload, 0o600); err != nil {
		return 0, err
	}
	return int64(len(f.payload)), nil
}

// --- decoder ---

type fakeDecoder struct {
	surfaceRows  int
	pressureRows int
	failHours    map[string]bool // keyed by "fNN" substring of the surface path
	err          error
	requests     []domain.DecodeRequest
}

func (f *fakeDecoder) Decode(_ context.Context, req domain.DecodeRequest) (domain.DecodeResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return domain.DecodeResult{}, f.err
	}
	for h := range f.failHours {
		if strings.Contains(req.SurfacePath, h) {
			return domain.DecodeResult{}, errors.New("decoder exited with status 1")
		}
	}
	res := domain.DecodeResult{
		Surface:  make([]domain.SurfaceRow, f.surfaceRows),
		Pressure: make([]domain.PressureRow, f.pressureRows),
	}
	for i := range res.Surface {
		res.Surface[i] = domain.SurfaceRow{Lat: 24 + float64(i), Lng: -125}
	}
	for i := range res.Pressure {
		res.Pressure[i] = domain.PressureRow{Lat: 24 + float64(i), Lng: -125, PressureLevel: 850}
	}
	return res, nil
}

// --- cycle store ---

type fakeCycleStore struct {
	cycles      map[int64]domain.Cycle
	saves       int
	activations []time.Time
	deleted     []time.Time
	deleteErr   error
}

func newFakeCycleStore(existing ...domain.Cycle) *fakeCycleStore {
	s := &fakeCycleStore{cycles: map[int64]domain.Cycle{}}
	for _, c := range existing {
		s.cycles[c.InitTime.Unix()] = c
	}
	return s
}

func (s *fakeCycleStore) FindCycle(_ context.Context, initTime time.Time) (*domain.Cycle, error) {
	c, ok := s.cycles[initTime.Unix()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (s *fakeCycleStore) SaveCycle(_ context.Context, c *domain.Cycle) error {
	s.saves++
	s.cycles[c.InitTime.Unix()] = *c
	return nil
}

func (s *fakeCycleStore) ActivateCycle(_ context.Context, initTime, at time.Time) error {
	s.activations = append(s.activations, initTime)
	for k, c := range s.cycles {
		if c.IsActive {
			c.IsActive = false
			c.Status = domain.StatusSuperseded
			c.SupersededAt = &at
			s.cycles[k] = c
		}
	}
	c := s.cycles[initTime.Unix()]
	c.IsActive = true
	c.Status = domain.StatusActive
	c.ActivatedAt = &at
	s.cycles[initTime.Unix()] = c
	return nil
}

func (s *fakeCycleStore) StaleCycles(_ context.Context, cutoff time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, c := range s.cycles {
		if c.Status == domain.StatusSuperseded && c.SupersededAt != nil && c.SupersededAt.Before(cutoff) {
			out = append(out, c.InitTime)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *fakeCycleStore) DeleteCycle(_ context.Context, initTime time.Time) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, initTime)
	delete(s.cycles, initTime.Unix())
	return nil
}

func (s *fakeCycleStore) get(initTime time.Time) domain.Cycle {
	return s.cycles[initTime.Unix()]
}

func (s *fakeCycleStore) activeCount() int {
	n := 0
	for _, c := range s.cycles {
		if c.IsActive {
			n++
		}
	}
	return n
}

// --- grid writer ---

type fakeGrid struct {
	surfaceChunks  []int
	pressureChunks []int
	surfaceRows    []domain.SurfaceRow
	err            error
}

func (g *fakeGrid) InsertSurfaceRows(_ context.Context, rows []domain.SurfaceRow) error {
	if g.err != nil {
		return g.err
	}
	g.surfaceChunks = append(g.surfaceChunks, len(rows))
	g.surfaceRows = append(g.surfaceRows, rows...)
	return nil
}

func (g *fakeGrid) InsertPressureRows(_ context.Context, rows []domain.PressureRow) error {
	if g.err != nil {
		return g.err
	}
	g.pressureChunks = append(g.pressureChunks, len(rows))
	return nil
}

// --- notifier ---

type fakeNotifier struct {
	events []domain.Cycle
	err    error
}

func (n *fakeNotifier) CycleActivated(_ context.Context, c domain.Cycle) error {
	n.events = append(n.events, c)
	return n.err
}
