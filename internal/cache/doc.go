// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package cache provides a bounded, thread-safe LRU cache with per-entry TTL.

The record pipeline resolves the same phase post length and farm timezone for
nearly every line of an event, and warm workers see the same phases across
events. LRU keeps those lookups local while bounding both memory (capacity)
and staleness (TTL), so a phase whose layout changes is picked up again once
its entry expires.

# Usage

	postLengths := cache.NewLRU[int](1000, 10*time.Minute)

	v, hit, err := postLengths.GetOrLoad(phaseID+"|"+side, func() (int, error) {
	    return phases.PostLength(ctx, phaseID, side)
	})

Errors returned by the loader are never cached.
*/
package cache
