package stats

import "time"

// MaxBucketedGap is the hard cutoff for building summary statistics. Pairs
// further apart are not considered related at all.
const MaxBucketedGap = 24 * time.Hour

// Bucket is a fixed, non-overlapping range of cause→effect delay.
type Bucket int

const (
	Bucket0to2h Bucket = iota
	Bucket2to4h
	Bucket4to6h
	Bucket6to12h
	Bucket12to24h
	numBuckets
)

var bucketBounds = [numBuckets][2]time.Duration{
	{0, 2 * time.Hour},
	{2 * time.Hour, 4 * time.Hour},
	{4 * time.Hour, 6 * time.Hour},
	{6 * time.Hour, 12 * time.Hour},
	{12 * time.Hour, 24 * time.Hour},
}

var bucketLabels = [numBuckets]string{"0-2h", "2-4h", "4-6h", "6-12h", "12-24h"}

// Buckets lists every bucket from shortest to longest delay.
func Buckets() []Bucket {
	return []Bucket{Bucket0to2h, Bucket2to4h, Bucket4to6h, Bucket6to12h, Bucket12to24h}
}

// String returns the bucket label, e.g. "2-4h".
func (b Bucket) String() string {
	if b < 0 || b >= numBuckets {
		return "unknown"
	}
	return bucketLabels[b]
}

// Lower returns the inclusive lower bound of the bucket.
func (b Bucket) Lower() time.Duration {
	return bucketBounds[b][0]
}

// Upper returns the upper bound of the bucket. It is exclusive for every
// bucket except the last, which includes 24h.
func (b Bucket) Upper() time.Duration {
	return bucketBounds[b][1]
}

// BucketFor returns the bucket for a cause→effect gap. Negative gaps and gaps
// beyond 24h are excluded (ok == false).
func BucketFor(gap time.Duration) (Bucket, bool) {
	if gap < 0 || gap > MaxBucketedGap {
		return 0, false
	}
	for _, b := range Buckets() {
		if gap < b.Upper() {
			return b, true
		}
	}
	return Bucket12to24h, true
}

// Histogram counts gaps per lag bucket.
type Histogram struct {
	counts [numBuckets]int
	total  int
}

// Add buckets gap and reports whether it was counted.
func (h *Histogram) Add(gap time.Duration) bool {
	b, ok := BucketFor(gap)
	if !ok {
		return false
	}
	h.counts[b]++
	h.total++
	return true
}

// Count returns the number of gaps in bucket b.
func (h *Histogram) Count(b Bucket) int {
	if b < 0 || b >= numBuckets {
		return 0
	}
	return h.counts[b]
}

// Total returns the number of gaps counted.
func (h *Histogram) Total() int {
	return h.total
}

// Dominant returns the most populated bucket. Ties go to the shorter delay.
func (h *Histogram) Dominant() Bucket {
	best := Bucket0to2h
	for _, b := range Buckets() {
		if h.counts[b] > h.counts[best] {
			best = b
		}
	}
	return best
}

// DominantRatio is the count in the dominant bucket over the total, or 0 when
// nothing was counted.
func (h *Histogram) DominantRatio() float64 {
	if h.total == 0 {
		return 0
	}
	return float64(h.counts[h.Dominant()]) / float64(h.total)
}
