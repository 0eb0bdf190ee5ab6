// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package envelope decodes and encodes the messages that move between the
record processor and its streams.

Inbound, every event is a Kinesis-style transport record whose kinesis.data
field holds base64-encoded JSON:

	{"version": 1.0, "source": "...", "valid": true,
	 "incoming_timestamp": "2019-04-25 15:45:32", "outgoing_timestamp": "...",
	 "type": "label", "filename": "...", "payload": ["s3://bucket/key.csv.gz"]}

payload may be a single path or a list of paths; StreamMessage always exposes
a list.

Outbound, a processed envelope (Processed) repeats the base fields and adds
the resolved identity of the event, and an invalid envelope (Invalid) adds
reason, invalid_source and stack for the dead-letter stream.
*/
package envelope
