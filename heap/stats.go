package heap

import (
	"fmt"
	"io"

	"github.com/inhies/go-bytesize"
)

type counters struct {
	allocations     int
	bytesRequested  int64
	searches        int
	collections     int
	bytesRecovered  int64
	blocksRecovered int
}

// Stats is a snapshot of heap usage.
type Stats struct {
	Allocations            int
	BytesRequested         int64
	AvgBlockSize           float64
	AvgSearchLength        float64
	Collections            int
	TotalBytesRecovered    int64
	TotalBlocksRecovered   int
	AvgBytesRecoveredPerGC float64

	ArenaSize  int
	FreeBytes  int
	FreeBlocks int
	LiveBytes  int
	LiveBlocks int
}

// Stats returns the counters accumulated since New and the current
// occupancy of the arena.
func (h *Heap) Stats() Stats {
	c := h.counters
	s := Stats{
		Allocations:          c.allocations,
		BytesRequested:       c.bytesRequested,
		Collections:          c.collections,
		TotalBytesRecovered:  c.bytesRecovered,
		TotalBlocksRecovered: c.blocksRecovered,
		ArenaSize:            len(h.arena),
	}
	if c.allocations > 0 {
		s.AvgBlockSize = float64(c.bytesRequested) / float64(c.allocations)
		s.AvgSearchLength = float64(c.searches) / float64(c.allocations)
	}
	if c.collections > 0 {
		s.AvgBytesRecoveredPerGC = float64(c.bytesRecovered) / float64(c.collections)
	}
	for off := h.head; off != endOfList; off = h.next(off) {
		s.FreeBlocks++
		s.FreeBytes += int(h.blockSize(off))
	}
	n := uint32(len(h.arena))
	for off := uint32(0); off < n; {
		size := h.blockSize(off)
		if size < MinBlockSize || size > n-off {
			break
		}
		s.LiveBlocks++
		off += size
	}
	s.LiveBlocks -= s.FreeBlocks
	s.LiveBytes = s.ArenaSize - s.FreeBytes
	return s
}

func (h *Heap) freeBytes() int {
	total := 0
	for off := h.head; off != endOfList; off = h.next(off) {
		total += int(h.blockSize(off))
	}
	return total
}

// WriteStats prints the usage report.
func (h *Heap) WriteStats(w io.Writer) {
	s := h.Stats()
	fmt.Fprintf(w, "Heap Usage Statistics\n=====================\n\n")
	fmt.Fprintf(w, "  Arena size = %s (%s free in %d blocks)\n",
		bytesize.New(float64(s.ArenaSize)), bytesize.New(float64(s.FreeBytes)), s.FreeBlocks)
	fmt.Fprintf(w, "  Live blocks = %d (%s)\n", s.LiveBlocks, bytesize.New(float64(s.LiveBytes)))
	fmt.Fprintf(w, "  Number of blocks allocated = %d\n", s.Allocations)
	if s.Allocations > 0 {
		fmt.Fprintf(w, "  Average size of allocated blocks = %.2f\n", s.AvgBlockSize)
		fmt.Fprintf(w, "  Average number of blocks checked = %.2f\n", s.AvgSearchLength)
	}
	fmt.Fprintf(w, "  Number of garbage collections = %d\n", s.Collections)
	if s.Collections > 0 {
		fmt.Fprintf(w, "  Total storage reclaimed = %s\n", bytesize.New(float64(s.TotalBytesRecovered)))
		fmt.Fprintf(w, "  Total number of blocks reclaimed = %d\n", s.TotalBlocksRecovered)
		fmt.Fprintf(w, "  Average bytes recovered per gc = %.2f\n", s.AvgBytesRecoveredPerGC)
	}
}
