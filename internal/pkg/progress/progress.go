// Package progress provides byte-counting stream wrappers that print
// throttled per-partition progress lines to a terminal.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const printInterval = 200 * time.Millisecond

// Reader wraps an io.Reader and periodically writes progress updates to
// out. If total is 0 the percentage is omitted.
type Reader struct {
	r           io.Reader
	out         io.Writer
	label       string
	total       uint64
	read        uint64
	mu          sync.Mutex
	lastPrinted time.Time
}

func NewReader(r io.Reader, total uint64, label string, out io.Writer) *Reader {
	return &Reader{r: r, out: out, label: label, total: total}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += uint64(n)
		now := time.Now()
		if now.Sub(p.lastPrinted) >= printInterval {
			p.print()
			p.lastPrinted = now
		}
		p.mu.Unlock()
	}
	if err == io.EOF {
		p.mu.Lock()
		p.print()
		if p.out != nil {
			fmt.Fprint(p.out, "\n")
		}
		p.mu.Unlock()
	}
	return n, err
}

// Count returns the bytes read so far.
func (p *Reader) Count() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

func (p *Reader) print() {
	if p.out == nil {
		return
	}
	if p.total > 0 {
		pct := float64(p.read) / float64(p.total) * 100
		fmt.Fprintf(p.out, "\r[%s] %.1f%% (%s/%s)",
			p.label, pct, humanize.IBytes(p.read), humanize.IBytes(p.total))
	} else {
		fmt.Fprintf(p.out, "\r[%s] %s", p.label, humanize.IBytes(p.read))
	}
}

// Writer wraps an io.Writer and periodically writes progress updates to
// out. Writers have no EOF, so the caller calls Finish when the stream is
// complete.
type Writer struct {
	w           io.Writer
	out         io.Writer
	label       string
	total       uint64
	written     uint64
	mu          sync.Mutex
	lastPrinted time.Time
}

func NewWriter(w io.Writer, total uint64, label string, out io.Writer) *Writer {
	return &Writer{w: w, out: out, label: label, total: total}
}

func (p *Writer) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.mu.Lock()
		p.written += uint64(n)
		now := time.Now()
		if now.Sub(p.lastPrinted) >= printInterval {
			p.print()
			p.lastPrinted = now
		}
		p.mu.Unlock()
	}
	return n, err
}

// Finish prints the final progress line.
func (p *Writer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print()
	if p.out != nil {
		fmt.Fprint(p.out, "\n")
	}
}

// Count returns the bytes written so far.
func (p *Writer) Count() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

func (p *Writer) print() {
	if p.out == nil {
		return
	}
	if p.total > 0 {
		pct := float64(p.written) / float64(p.total) * 100
		fmt.Fprintf(p.out, "\r[%s] %.1f%% (%s/%s)",
			p.label, pct, humanize.IBytes(p.written), humanize.IBytes(p.total))
	} else {
		fmt.Fprintf(p.out, "\r[%s] %s", p.label, humanize.IBytes(p.written))
	}
}

// CountingWriter counts bytes written through it. It reports payload
// sizes after compression, where the stream length is not known upfront.
type CountingWriter struct {
	w io.Writer
	n uint64
}

func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

func (c *CountingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += uint64(n)
	return n, err
}

// Count returns the bytes written so far.
func (c *CountingWriter) Count() uint64 {
	return c.n
}
