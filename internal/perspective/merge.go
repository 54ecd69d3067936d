package perspective

// Less orders perspective records by time, then game ID (null first), then
// side (white first), which makes the merged stream deterministic.
func Less(a, b *Record) bool {
	if !a.DateTime.Equal(b.DateTime) {
		return a.DateTime.Before(b.DateTime)
	}
	if ai, bi := idOf(a), idOf(b); ai != bi {
		return ai < bi
	}
	return a.Side == White && b.Side != White
}

func idOf(r *Record) string {
	if r.ID == nil {
		return ""
	}
	return *r.ID
}

// MergeSorted merges two individually sorted streams. On a full tie the
// record from a comes first.
func MergeSorted(a, b []Record) []Record {
	out := make([]Record, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if Less(&b[j], &a[i]) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Merger merges the white and black streams incrementally. A record is
// released once the head of the other stream is known, so only records
// waiting on the other side are held.
type Merger struct {
	white []Record
	black []Record
}

// Push adds the two perspectives of the next game in input order.
func (m *Merger) Push(white, black Record) {
	m.white = append(m.white, white)
	m.black = append(m.black, black)
}

// Ready appends to dst every record whose merged position is settled.
func (m *Merger) Ready(dst []Record) []Record {
	for len(m.white) > 0 && len(m.black) > 0 {
		if Less(&m.black[0], &m.white[0]) {
			dst = append(dst, m.black[0])
			m.black = m.black[1:]
		} else {
			dst = append(dst, m.white[0])
			m.white = m.white[1:]
		}
	}
	m.compact()
	return dst
}

// Drain appends every remaining record at end of input.
func (m *Merger) Drain(dst []Record) []Record {
	dst = m.Ready(dst)
	dst = append(dst, m.white...)
	dst = append(dst, m.black...)
	m.white, m.black = nil, nil
	return dst
}

// Pending returns the number of held records.
func (m *Merger) Pending() int {
	return len(m.white) + len(m.black)
}

func (m *Merger) compact() {
	if len(m.white) == 0 {
		m.white = nil
	}
	if len(m.black) == 0 {
		m.black = nil
	}
}
