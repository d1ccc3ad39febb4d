package audio

// Chunker normalizes a vendor audio stream into aligned PCM16 chunks.
//
// Bytes are pushed in whatever sizes the network delivers them; the chunker
// carries the unaligned remainder across pushes and only ever emits whole
// alignment units. An optional WAV header is stripped exactly once at the
// start of the stream, and the first emitted chunk gets the fade-in ramp.
// One Chunker serves exactly one track and is not safe for concurrent use.
type Chunker struct {
	align      int
	carry      []byte
	wavChecked bool
	faded      bool
}

// NewChunker creates a chunker emitting alignBytes-sized chunks.
// alignBytes must be a multiple of the sample width; zero selects the default.
func NewChunker(alignBytes int) *Chunker {
	if alignBytes <= 0 || alignBytes%BytesPerSample != 0 {
		alignBytes = DefaultAlignBytes
	}
	return &Chunker{align: alignBytes}
}

// Push appends raw vendor bytes and returns every complete aligned chunk
// now available, in order. Returned slices are freshly allocated copies.
func (c *Chunker) Push(data []byte) [][]byte {
	if len(data) > 0 {
		c.carry = append(c.carry, data...)
	}
	if !c.wavChecked {
		if len(c.carry) < 4 {
			return nil
		}
		if HasWAVHeader(c.carry) {
			// Header may span several network reads.
			if len(c.carry) < wavHeaderSize {
				return nil
			}
			c.carry = c.carry[wavHeaderSize:]
		}
		c.wavChecked = true
	}
	return c.emit()
}

// Flush returns any residual complete chunks after stream end. Bytes short
// of one alignment unit are discarded, never emitted.
func (c *Chunker) Flush() [][]byte {
	if !c.wavChecked {
		// Whole stream was shorter than the magic probe.
		c.wavChecked = true
	}
	out := c.emit()
	c.carry = nil
	return out
}

// Buffered reports the number of carried bytes not yet emitted.
func (c *Chunker) Buffered() int { return len(c.carry) }

func (c *Chunker) emit() [][]byte {
	var out [][]byte
	for len(c.carry) >= c.align {
		chunk := make([]byte, c.align)
		copy(chunk, c.carry[:c.align])
		c.carry = c.carry[c.align:]
		if !c.faded {
			FadeIn(chunk)
			c.faded = true
		}
		out = append(out, chunk)
	}
	return out
}
