package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/hrrr-tile-service/internal/domain"
)

// ChunkSize is the number of rows written per insert.
const ChunkSize = 500

// Ingestor stamps decoded rows with their cycle and writes them in chunks.
type Ingestor struct {
	grid      GridWriter
	chunkSize int
}

// NewIngestor creates an Ingestor writing through grid.
func NewIngestor(grid GridWriter) *Ingestor {
	return &Ingestor{grid: grid, chunkSize: ChunkSize}
}

// Ingest writes one forecast hour's rows and returns how many surface and
// pressure rows were handed to the store.
func (i *Ingestor) Ingest(ctx context.Context, initTime time.Time, forecastHour int, res domain.DecodeResult) (surface, pressure int, err error) {
	validTime := domain.ValidTime(initTime, forecastHour)

	for j := range res.Surface {
		res.Surface[j].InitTime = initTime
		res.Surface[j].ForecastHour = forecastHour
		res.Surface[j].ValidTime = validTime
	}
	for j := range res.Pressure {
		res.Pressure[j].InitTime = initTime
		res.Pressure[j].ForecastHour = forecastHour
		res.Pressure[j].ValidTime = validTime
	}

	for chunk := range slices.Chunk(res.Surface, i.chunkSize) {
		if err := i.grid.InsertSurfaceRows(ctx, chunk); err != nil {
			return surface, pressure, fmt.Errorf("insert surface rows f%02d: %w", forecastHour, err)
		}
		surface += len(chunk)
	}
	for chunk := range slices.Chunk(res.Pressure, i.chunkSize) {
		if err := i.grid.InsertPressureRows(ctx, chunk); err != nil {
			return surface, pressure, fmt.Errorf("insert pressure rows f%02d: %w", forecastHour, err)
		}
		pressure += len(chunk)
	}
	return surface, pressure, nil
}
