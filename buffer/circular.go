package buffer

// CircularDraws is a circular buffer of parameter vectors with the ability to
// iterate over the first and second halves of the draws collected in the
// order that they were appended. Vectors are copied on Add.
type CircularDraws struct {
	buffer    [][]float64 // actual storage
	pos       int         // Current position in buffer
	Dim       int         // Dim is the length of every stored vector
	BufSize   int         // BufSize is the fixed number of draws maintained in memory
	Count     int         // Count is the number of draws in memory. Will always be <= BufSize
	TotalSeen int64       // TotalSeen is the total number of times Add has been called
}

// NewCircularDraws creates a new circular buffer holding totalSize vectors of
// length dim. If totalSize is not a multiple of 2, it will be adjusted up.
func NewCircularDraws(totalSize int, dim int) *CircularDraws {
	if totalSize < 2 {
		totalSize = 2
	}
	total := totalSize + totalSize%2

	buf := make([][]float64, total)
	for i := range buf {
		buf[i] = make([]float64, dim)
	}

	return &CircularDraws{
		buffer:  buf,
		pos:     0,
		Dim:     dim,
		BufSize: total,
		Count:   0,
	}
}

// Internal: return the next array position
func (c *CircularDraws) nextPos() int {
	return (c.pos + 1) % c.BufSize
}

// Add copies the given vector into the buffer, overwriting the oldest entry
func (c *CircularDraws) Add(x []float64) {
	c.TotalSeen++

	copy(c.buffer[c.pos], x)
	c.pos = c.nextPos()

	c.Count++
	if c.Count > c.BufSize {
		c.Count = c.BufSize // max out
	}
}

// Full is true once BufSize draws have been added
func (c *CircularDraws) Full() bool {
	return c.Count >= c.BufSize
}

// Rows returns the stored draws oldest first. The returned slices alias the
// buffer and are only valid until the next Add.
func (c *CircularDraws) Rows() [][]float64 {
	rows := make([][]float64, 0, c.Count)
	start := 0
	if c.Full() {
		start = c.pos
	}
	for i := 0; i < c.Count; i++ {
		rows = append(rows, c.buffer[(start+i)%c.BufSize])
	}
	return rows
}

// Column copies component j of every stored draw (oldest first) into dst,
// which is grown as needed.
func (c *CircularDraws) Column(j int, dst []float64) []float64 {
	dst = dst[:0]
	for _, row := range c.Rows() {
		dst = append(dst, row[j])
	}
	return dst
}

// FirstHalf returns an iterator over the first (oldest) half of the stored
// values. Will not return a valid iterator until Add has been called at least
// BufSize times
func (c *CircularDraws) FirstHalf() *CircularDrawsIterator {
	if !c.Full() {
		return nil
	}

	return &CircularDrawsIterator{
		buf:    c,
		curr:   c.pos, // Oldest is the one we're about to write
		remain: c.BufSize / 2,
	}
}

// SecondHalf returns an iterator over the second (most recent) half of the
// stored values. Will not return a valid iterator until Add has been called at
// least BufSize times
func (c *CircularDraws) SecondHalf() *CircularDrawsIterator {
	if !c.Full() {
		return nil
	}

	half := c.BufSize / 2
	pos := (c.pos + half) % c.BufSize

	return &CircularDrawsIterator{
		buf:    c,
		curr:   pos,
		remain: half,
	}
}

// CircularDrawsIterator provides an iterator over a CircularDraws buffer
type CircularDrawsIterator struct {
	buf    *CircularDraws
	curr   int
	remain int
}

// Next returns True when there are more values to read via Value
func (i *CircularDrawsIterator) Next() bool {
	return i.remain > 0
}

// Value return the next draw to be read. Should only be called if Next() is
// True
func (i *CircularDrawsIterator) Value() []float64 {
	v := i.buf.buffer[i.curr]
	i.curr = (i.curr + 1) % i.buf.BufSize
	i.remain--
	return v
}
