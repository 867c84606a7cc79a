// Package spatial implements the depth-bounded angular partition used
// to answer cone queries over a table's records.
//
// The sphere is split into 2^depth declination bands; each band is
// split into right ascension sectors whose count shrinks with the
// band's distance from the equator, so sectors keep a roughly uniform
// angular extent instead of degenerating near the poles. A leaf bucket
// holds its entries sorted by magnitude, letting a magnitude-bounded
// query binary-search inside the bucket instead of scanning it.
//
// Enumeration order of RangeQuery is ascending magnitude with ties
// broken by insertion sequence: deterministic, and stable across
// repeated queries because the underlying store is append-only.
package spatial

import (
	"container/heap"
	"errors"
	"math"
	"sort"

	"github.com/hupe1980/astrodb/internal/conv"
	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/queue"
	"github.com/hupe1980/astrodb/sphere"
)

const (
	// MinDepth and MaxDepth bound the partition depth. Depth 1 splits
	// the sphere into two bands; each extra level doubles the bands
	// and roughly quadruples the bucket count, so the cap keeps the
	// bucket directory within sane memory.
	MinDepth = 1
	MaxDepth = 10
)

var (
	// ErrDepth is returned when the partition depth is out of range.
	ErrDepth = errors.New("spatial: depth out of range")

	// ErrBadCoordinate is returned when inserting a non-finite
	// position.
	ErrBadCoordinate = errors.New("spatial: non-finite coordinate")
)

// Options contains options for the spatial index.
type Options struct {
	// InitialBucketCapacity is the entry capacity allocated when a
	// bucket receives its first entry.
	InitialBucketCapacity int
}

var DefaultOptions = Options{
	InitialBucketCapacity: 8,
}

type entry struct {
	ra, dec float64
	mag     float32
	seq     uint64
	row     model.RowID
}

type band struct {
	decMin, decMax float64
	centerDec      float64
	sectorWidth    float64
	radius         float64 // circumradius of one bucket in this band
	buckets        [][]entry
}

// Index partitions the sphere to the configured depth and maps
// positions to magnitude-sorted buckets.
//
// Thread safety: a single writer may insert; queries are safe once
// inserting is quiescent.
type Index struct {
	depth int
	bands []band
	seq   uint64
	count int
	opts  Options
}

// New creates an empty index with 2^depth declination bands.
func New(depth int, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if depth < MinDepth || depth > MaxDepth {
		return nil, ErrDepth
	}

	if opts.InitialBucketCapacity < 1 {
		opts.InitialBucketCapacity = 1
	}

	nBands := 1 << depth
	bandHeight := math.Pi / float64(nBands)

	x := &Index{
		depth: depth,
		bands: make([]band, nBands),
		opts:  opts,
	}

	for i := range x.bands {
		b := &x.bands[i]
		b.decMin = -sphere.HalfPi + float64(i)*bandHeight
		b.decMax = b.decMin + bandHeight
		b.centerDec = (b.decMin + b.decMax) / 2

		nSectors := int(math.Round(2 * float64(nBands) * math.Cos(b.centerDec)))
		if nSectors < 1 {
			nSectors = 1
		}

		b.sectorWidth = sphere.TwoPi / float64(nSectors)
		b.buckets = make([][]entry, nSectors)
		b.radius = bucketRadius(b)
	}

	return x, nil
}

// bucketRadius returns the great-circle radius of the smallest cap
// centered on a bucket's midpoint that contains the whole bucket. The
// farthest point of a band/sector cell from its center is one of its
// corners.
func bucketRadius(b *band) float64 {
	halfRA := b.sectorWidth / 2
	centerRA := halfRA // any sector; the cell is symmetric in RA

	top := sphere.Separation(centerRA, b.centerDec, centerRA+halfRA, b.decMax)
	bottom := sphere.Separation(centerRA, b.centerDec, centerRA+halfRA, b.decMin)

	return math.Max(top, bottom)
}

// Depth returns the configured partition depth.
func (x *Index) Depth() int { return x.depth }

// Count returns the number of entries in the index.
func (x *Index) Count() int { return x.count }

// Insert places a record reference in the bucket covering (ra, dec),
// keeping the bucket sorted by magnitude. Positions are radians; ra is
// normalized to [0, 2π) and dec clamped to [-π/2, π/2].
func (x *Index) Insert(ra, dec float64, mag float32, row model.RowID) error {
	if !finite(ra) || !finite(dec) || math.IsNaN(float64(mag)) {
		return ErrBadCoordinate
	}

	ra = sphere.NormalizeRA(ra)
	dec = sphere.ClampDec(dec)

	b := &x.bands[x.bandIndex(dec)]

	j := int(ra / b.sectorWidth)
	if j >= len(b.buckets) {
		j = len(b.buckets) - 1
	}

	e := entry{ra: ra, dec: dec, mag: mag, seq: x.seq, row: row}
	x.seq++
	x.count++

	bucket := b.buckets[j]
	if bucket == nil {
		bucket = make([]entry, 0, x.opts.InitialBucketCapacity)
	}

	// Binary-search the insertion point so the bucket stays sorted by
	// (magnitude, sequence).
	pos := sort.Search(len(bucket), func(i int) bool {
		if bucket[i].mag != e.mag {
			return bucket[i].mag > e.mag
		}

		return bucket[i].seq > e.seq
	})

	bucket = append(bucket, entry{})
	copy(bucket[pos+1:], bucket[pos:])
	bucket[pos] = e
	b.buckets[j] = bucket

	return nil
}

func (x *Index) bandIndex(dec float64) int {
	nBands := len(x.bands)
	bandHeight := math.Pi / float64(nBands)

	i := int((dec + sphere.HalfPi) / bandHeight)
	if i >= nBands {
		i = nBands - 1
	}
	if i < 0 {
		i = 0
	}

	return i
}

// run is one bucket's contiguous magnitude range, consumed during the
// merge.
type run struct {
	bucket []entry
	pos    int
	end    int
}

// RangeQuery returns the rows within fov radians of (ra, dec) whose
// magnitude lies in [magMin, magMax], ordered by ascending magnitude
// then insertion sequence. Inputs are radians; a non-finite or
// negative fov yields no rows.
func (x *Index) RangeQuery(ra, dec, fov float64, magMin, magMax float32) []model.RowID {
	if !finite(ra) || !finite(dec) || !finite(fov) || fov < 0 || magMin > magMax {
		return nil
	}

	ra = sphere.NormalizeRA(ra)
	dec = sphere.ClampDec(dec)

	runs := x.collectRuns(ra, dec, fov, magMin, magMax)
	if len(runs) == 0 {
		return nil
	}

	return mergeRuns(runs, ra, dec, fov)
}

// collectRuns gathers the magnitude-bounded slice of every bucket the
// cone might touch. Bucket selection must never miss a bucket holding
// a matching entry; by the triangle inequality a bucket with an entry
// within fov of the query has its center within fov plus the bucket's
// circumradius, which is exactly the test applied.
func (x *Index) collectRuns(ra, dec, fov float64, magMin, magMax float32) []run {
	var runs []run

	decLo := dec - fov
	decHi := dec + fov
	poleInCone := math.Abs(dec)+fov >= sphere.HalfPi

	for bi := range x.bands {
		b := &x.bands[bi]

		if b.decMax < decLo || b.decMin > decHi {
			continue
		}

		nS := len(b.buckets)

		jFrom, jSpan, all := 0, 0, true
		if !poleInCone {
			// Window of sectors around the query RA: the widest
			// right-ascension half-width the cone reaches at any
			// declination inside the band, plus a sector of slack for
			// bucket discretization. The per-bucket center test below
			// prunes the excess.
			if half, ok := coneRAHalfWidth(dec, fov, b.decMin, b.decMax); ok {
				delta := half + b.sectorWidth

				jFrom = int(ra / b.sectorWidth)
				jSpan = int(delta/b.sectorWidth) + 1
				all = 2*jSpan+1 >= nS
			}
		}

		visit := func(j int) {
			bucket := b.buckets[j]
			if len(bucket) == 0 {
				return
			}

			centerRA := (float64(j) + 0.5) * b.sectorWidth
			if sphere.Separation(ra, dec, centerRA, b.centerDec) > fov+b.radius {
				return
			}

			if r, ok := bucketRun(bucket, magMin, magMax); ok {
				runs = append(runs, r)
			}
		}

		if all {
			for j := 0; j < nS; j++ {
				visit(j)
			}

			continue
		}

		for off := -jSpan; off <= jSpan; off++ {
			j := (jFrom + off) % nS
			if j < 0 {
				j += nS
			}

			visit(j)
		}
	}

	return runs
}

// coneRAHalfWidth returns the largest right-ascension half-width of
// the cone of radius fov around declination dec, over declinations in
// [decMin, decMax]. On the circle at declination δ the cone spans
// cos Δra = (cos fov − sin dec·sin δ)/(cos dec·cos δ); the width is
// unimodal in δ and peaks where the meridian is tangent to the cone,
// at sin δ* = sin dec/cos fov, so the maximum over a band is at an
// edge or at δ* when the band contains it. ok is false when a band
// declination circle lies entirely inside the cone, in which case the
// caller must visit every sector.
//
// Only called with the pole outside the cone, so fov < π/2 and
// cos fov > 0.
func coneRAHalfWidth(dec, fov, decMin, decMax float64) (float64, bool) {
	sinDec, cosDec := math.Sincos(dec)
	cosFov := math.Cos(fov)

	at := func(d float64) (float64, bool) {
		sinD, cosD := math.Sincos(d)

		den := cosDec * cosD
		if den < 1e-12 {
			return 0, false
		}

		q := (cosFov - sinDec*sinD) / den
		if q <= -1 {
			return 0, false
		}
		if q >= 1 {
			// The cone does not reach this declination.
			return 0, true
		}

		return math.Acos(q), true
	}

	lo, ok := at(decMin)
	if !ok {
		return 0, false
	}
	hi, ok := at(decMax)
	if !ok {
		return 0, false
	}
	half := math.Max(lo, hi)

	// Band edges understate the extent when the peak falls inside.
	if s := sinDec / cosFov; s > -1 && s < 1 {
		if dstar := math.Asin(s); dstar > decMin && dstar < decMax {
			q := math.Sin(fov) / cosDec
			if q >= 1 {
				return 0, false
			}
			half = math.Max(half, math.Asin(q))
		}
	}

	return half, true
}

// bucketRun binary-searches the magnitude window inside one sorted
// bucket.
func bucketRun(bucket []entry, magMin, magMax float32) (run, bool) {
	lo := sort.Search(len(bucket), func(i int) bool { return bucket[i].mag >= magMin })
	hi := sort.Search(len(bucket), func(i int) bool { return bucket[i].mag > magMax })

	if lo >= hi {
		return run{}, false
	}

	return run{bucket: bucket, pos: lo, end: hi}, true
}

// mergeRuns merges the per-bucket runs into one globally ordered
// result, applying the exact great-circle test per entry.
func mergeRuns(runs []run, ra, dec, fov float64) []model.RowID {
	pq := &queue.PriorityQueue{}
	heap.Init(pq)

	// Advance each run to its first entry inside the cone.
	push := func(ri int) {
		r := &runs[ri]

		for r.pos < r.end {
			e := &r.bucket[r.pos]
			if sphere.Separation(ra, dec, e.ra, e.dec) <= fov {
				riU32, err := conv.IntToUint32(ri)
				if err != nil {
					return
				}

				heap.Push(pq, &queue.PriorityQueueItem{Ref: riU32, Mag: e.mag, Seq: e.seq})

				return
			}

			r.pos++
		}
	}

	total := 0
	for ri := range runs {
		total += runs[ri].end - runs[ri].pos
		push(ri)
	}

	out := make([]model.RowID, 0, total)

	for pq.Len() > 0 {
		item, _ := heap.Pop(pq).(*queue.PriorityQueueItem)
		ri := int(item.Ref)
		r := &runs[ri]

		out = append(out, r.bucket[r.pos].row)
		r.pos++
		push(ri)
	}

	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
