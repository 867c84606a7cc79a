package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"github.com/hupe1980/astrodb/model"
	"github.com/hupe1980/astrodb/rowsource"
	"github.com/hupe1980/astrodb/sphere"
)

// Star is one synthetic catalog object. Angles are radians.
type Star struct {
	RA  float64
	Dec float64
	Mag float32
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Stars generates n objects distributed uniformly over the sphere with
// magnitudes uniform in [magMin, magMax). Uniformity comes from a
// uniform z coordinate; drawing dec directly would crowd the poles.
func (r *RNG) Stars(n int, magMin, magMax float32) []Star {
	r.mu.Lock()
	defer r.mu.Unlock()

	span := float64(magMax - magMin)
	stars := make([]Star, n)

	for i := range stars {
		z := r.rand.Float64()*2 - 1
		stars[i] = Star{
			RA:  r.rand.Float64() * sphere.TwoPi,
			Dec: math.Asin(z),
			Mag: magMin + float32(r.rand.Float64()*span),
		}
	}

	return stars
}

// ConeStars generates n objects inside the cone of radius fov around
// (ra, dec), uniform over the cap area, with magnitudes uniform in
// [magMin, magMax). Useful for loading one sky region densely.
func (r *RNG) ConeStars(n int, ra, dec, fov float64, magMin, magMax float32) []Star {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinDec, cosDec := math.Sincos(dec)
	span := float64(magMax - magMin)
	zMin := math.Cos(fov)
	stars := make([]Star, n)

	for i := range stars {
		// Uniform over the polar cap, then rotate the pole to (ra, dec).
		z := zMin + r.rand.Float64()*(1-zMin)
		s := math.Sqrt(1 - z*z)
		theta := r.rand.Float64() * sphere.TwoPi

		x, y := s*math.Cos(theta), s*math.Sin(theta)
		xr := x*sinDec + z*cosDec
		zr := -x*cosDec + z*sinDec

		stars[i] = Star{
			RA:  sphere.NormalizeRA(ra + math.Atan2(y, xr)),
			Dec: math.Asin(zr),
			Mag: magMin + float32(r.rand.Float64()*span),
		}
	}

	return stars
}

// StarRows renders stars as catalog rows with the column symbols name,
// ra, dec and vmag, angles in degrees. Row i is designated "S%06d", so
// imported designations map back to slice positions.
func StarRows(stars []Star) []rowsource.Row {
	rows := make([]rowsource.Row, len(stars))

	for i, s := range stars {
		rows[i] = rowsource.Row{
			"name": fmt.Sprintf("S%06d", i),
			"ra":   strconv.FormatFloat(s.RA*sphere.RadToDeg, 'f', -1, 64),
			"dec":  strconv.FormatFloat(s.Dec*sphere.RadToDeg, 'f', -1, 64),
			"vmag": strconv.FormatFloat(float64(s.Mag), 'f', -1, 32),
		}
	}

	return rows
}

// BruteForceCone performs an exact linear scan for ground truth. It
// returns the row ids of the stars inside the cone and magnitude band,
// ordered by ascending magnitude then row id - the enumeration order
// range queries promise. Star i is row id i.
func BruteForceCone(stars []Star, ra, dec, fov float64, magMin, magMax float32) []model.RowID {
	var refs []model.RowID

	for i, s := range stars {
		if s.Mag < magMin || s.Mag > magMax {
			continue
		}
		if sphere.Separation(ra, dec, s.RA, s.Dec) <= fov {
			refs = append(refs, model.RowID(uint32(i)))
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return stars[refs[i]].Mag < stars[refs[j]].Mag
	})

	return refs
}

// Recall computes |want ∩ got| / |want|. An exact index scores 1.0 on
// every query; an empty ground truth counts as full recall.
func Recall(want, got []model.RowID) float64 {
	if len(want) == 0 {
		return 1.0
	}

	wanted := make(map[model.RowID]bool, len(want))
	for _, ref := range want {
		wanted[ref] = true
	}

	hits := 0
	for _, ref := range got {
		if wanted[ref] {
			hits++
		}
	}

	return float64(hits) / float64(len(want))
}
