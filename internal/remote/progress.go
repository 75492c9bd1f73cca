package remote

import (
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Progress receives byte counts as a transfer advances. Implementations
// must be safe for concurrent Report calls.
type Progress interface {
	Report(n int64)
}

// NopProgress discards all reports.
type NopProgress struct{}

func (NopProgress) Report(int64) {}

// LogProgress logs the cumulative transferred size for one object.
type LogProgress struct {
	Key   string
	total atomic.Int64
}

func (p *LogProgress) Report(n int64) {
	total := p.total.Add(n)
	slog.Debug("transfer", "key", p.Key, "transferred", humanize.IBytes(uint64(total)))
}

// Total returns the bytes reported so far.
func (p *LogProgress) Total() int64 {
	return p.total.Load()
}

// countingReader reports bytes to progress as they are read.
type countingReader struct {
	r        io.Reader
	progress Progress
}

func newCountingReader(r io.Reader, progress Progress) io.Reader {
	if progress == nil {
		return r
	}
	return &countingReader{r: r, progress: progress}
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.progress.Report(int64(n))
	}
	return n, err
}
