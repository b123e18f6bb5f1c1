package broker

import (
	"io"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// CountingReader tallies the bytes read through it. When a counter is
// attached the same amount is added to it.
type CountingReader struct {
	r       io.Reader
	count   uint64
	counter prometheus.Counter
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{
		r: r,
	}
}

func (c *CountingReader) WithCounter(counter prometheus.Counter) *CountingReader {
	c.counter = counter
	return c
}

func (c *CountingReader) Count() uint64 {
	return atomic.LoadUint64(&c.count)
}

func (c *CountingReader) Reset() {
	atomic.StoreUint64(&c.count, 0)
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.add(n)
	return n, err
}

func (c *CountingReader) add(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&c.count, uint64(n))
	if c.counter != nil {
		c.counter.Add(float64(n))
	}
}

// CountingWriter is the write-side counterpart of CountingReader.
type CountingWriter struct {
	w       io.Writer
	count   uint64
	counter prometheus.Counter
}

func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{
		w: w,
	}
}

func (c *CountingWriter) WithCounter(counter prometheus.Counter) *CountingWriter {
	c.counter = counter
	return c
}

func (c *CountingWriter) Count() uint64 {
	return atomic.LoadUint64(&c.count)
}

func (c *CountingWriter) Reset() {
	atomic.StoreUint64(&c.count, 0)
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		atomic.AddUint64(&c.count, uint64(n))
		if c.counter != nil {
			c.counter.Add(float64(n))
		}
	}
	return n, err
}
