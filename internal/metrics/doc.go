// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package metrics provides the Prometheus collectors for Cropstream.

Collectors are registered on the default registry through promauto and are
exposed by the API server at /metrics. Callers use the Record* helpers rather
than the collectors directly:

	metrics.RecordEvent("wave", metrics.ResultProcessed, time.Since(start))
	metrics.RecordRowRejected("label", isTBD)
	metrics.RecordStreamPublish("processed", err)

All metric names carry the cropstream_ prefix.
*/
package metrics
