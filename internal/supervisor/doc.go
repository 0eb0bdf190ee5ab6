// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package supervisor runs the long-lived services of cropstream under a suture v4
tree:

	Root ("cropstream")
	├── "data-layer"
	│   └── LookupGCService
	├── "messaging-layer"
	│   ├── EmbeddedNATSService (NATS_EMBEDDED)
	│   └── ingest.Consumer (NATS_ENABLED)
	└── "api-layer"
	    └── HTTPServerService

Crashed services restart with suture's backoff; supervisor events are logged
through sutureslog into the zerolog-backed slog logger. Service wrappers live
in the services subpackage.
*/
package supervisor
