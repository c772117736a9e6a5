package providers

import "io"

// progressReader reports the percentage of the wrapped reader consumed so
// far. Percentages are monotonic; the callback only fires when the integer
// value changes.
type progressReader struct {
	r        io.Reader
	total    int64
	count    int64
	last     int
	progress ProgressFunc
}

func newProgressReader(r io.Reader, total int64, progress ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, last: -1, progress: progress}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.count += int64(n)

	if p.progress != nil && p.total > 0 {
		percent := int(p.count * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.progress(percent)
		}
	}
	return n, err
}
