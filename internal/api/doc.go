// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package api exposes the record pipeline over HTTP with a chi router.

Routes:

	GET  /api/v1/health           overall status, record types, dependency checks
	GET  /api/v1/health/live      liveness probe
	GET  /api/v1/health/ready     readiness probe (503 until dependencies pass)
	POST /api/v1/records          process a {"Records":[...]} batch synchronously
	POST /api/v1/records/enqueue  publish each record to the NATS raw subject
	POST /api/v1/saved            publish a JSON object to the saved-data stream
	GET  /metrics                 prometheus metrics

Every JSON body is wrapped in APIResponse. The /api/v1 data routes are rate
limited per client IP with go-chi/httprate and body size is capped by
MaxBody.
*/
package api
