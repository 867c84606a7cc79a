// Package testutil provides testing utilities for astrodb.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random sky distributions,
// computing exact cone-scan ground truth, and verifying range-query
// recall.
//
// # Random Sky Generation
//
//	rng := testutil.NewRNG(seed)
//	stars := rng.Stars(10000, -2, 18)
//
// # Exact Cone Scan (Ground Truth)
//
//	want := testutil.BruteForceCone(stars, ra, dec, fov, magMin, magMax)
//
// # Recall Verification
//
//	recall := testutil.Recall(want, got)
package testutil
