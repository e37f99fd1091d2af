// Package chunk groups fixed sequences of encoded records into I/O batches
// bounded by a buffer cap.
package chunk

// Span is a half-open run [Start, End) of record indexes that is read or
// written with a single I/O call of Bytes bytes.
type Span struct {
	Start int
	End   int
	Bytes int
}

// Plan greedily groups records of the given encoded lengths into spans whose
// byte size stays within capBytes. The cap is soft: a single record larger
// than capBytes gets a span of its own rather than being split. A
// non-positive cap yields one span covering every record.
func Plan(lengths []int, capBytes int) []Span {
	if len(lengths) == 0 {
		return nil
	}

	var spans []Span
	cur := Span{}
	for i, n := range lengths {
		if cur.End > cur.Start && capBytes > 0 && cur.Bytes+n > capBytes {
			spans = append(spans, cur)
			cur = Span{Start: i, End: i}
		}
		cur.End = i + 1
		cur.Bytes += n
	}
	return append(spans, cur)
}

// Uniform plans n records of the same length. It yields the same spans as
// Plan over n copies of length.
func Uniform(n, length, capBytes int) []Span {
	if n <= 0 {
		return nil
	}
	per := PerSpan(n, length, capBytes)
	spans := make([]Span, 0, (n+per-1)/per)
	for start := 0; start < n; start += per {
		end := min(start+per, n)
		spans = append(spans, Span{Start: start, End: end, Bytes: (end - start) * length})
	}
	return spans
}

// PerSpan returns how many records of the same length go into one span:
// at least one, and all n when the cap is non-positive.
func PerSpan(n, length, capBytes int) int {
	if capBytes <= 0 || length <= 0 {
		return max(n, 1)
	}
	return max(capBytes/length, 1)
}

// MaxBytes returns the largest span size, which is the buffer a caller
// needs to allocate once for the whole plan.
func MaxBytes(spans []Span) int {
	largest := 0
	for _, s := range spans {
		largest = max(largest, s.Bytes)
	}
	return largest
}
