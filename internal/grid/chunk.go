package grid

import (
	"github.com/rotisserie/eris"
)

// Chunk is a bounded-size run of consecutive grid cells. Chunks exist
// only to respect the imagery backend's per-request item ceiling;
// concatenating all chunks in index order reproduces the grid's cell
// sequence exactly.
type Chunk struct {
	Index int
	Start int
	End   int // exclusive
	Cells []Cell
}

// Size returns the number of cells in the chunk.
func (c Chunk) Size() int {
	return c.End - c.Start
}

// Split partitions cells into ceil(len(cells)/maxSize) ordered chunks
// of at most maxSize cells. An empty grid yields no chunks. The chunk
// cells alias the input slice; callers must not mutate it while
// aggregation is in flight.
func Split(cells []Cell, maxSize int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, eris.Errorf("grid: chunk size must be positive, got %d", maxSize)
	}

	n := len(cells)
	if n == 0 {
		return nil, nil
	}

	numChunks := (n + maxSize - 1) / maxSize
	chunks := make([]Chunk, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := i * maxSize
		end := start + maxSize
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Index: i,
			Start: start,
			End:   end,
			Cells: cells[start:end],
		})
	}
	return chunks, nil
}
