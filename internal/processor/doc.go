// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package processor runs the record pipeline for one raw event.

A Processor pairs one Strategy with the shared collaborators (stage
storage, lookups, schema validator). For every event it:

 1. decodes the transport record into an envelope.StreamMessage
 2. skips the event when the strategy does not claim its record type
 3. opens every staged file and offers each row to the strategy
 4. writes the resulting canonical records to one output file
 5. uploads that file and publishes the processed envelope
 6. advances the data status of the phase the records belong to

A failing row is counted and skipped. A failing file is counted and its
output discarded. Anything else invalidates the event: the envelope is
marked invalid and published to the invalid stream with the error and a
goroutine stack.

# Usage

	p := processor.New(strategy, processor.Deps{
		Stage:   stage,
		Lookups: lookup.FromStore(store),
		Caches:  processor.NewCaches(1024, 10*time.Minute),
	})
	stats := p.Process(ctx, raw)
	if len(stats.Errors) > 0 {
		// the event went to the invalid stream
	}

Strategies extend the pipeline through optional interfaces: FileProcessor
for strategies that need a whole file before transforming rows,
RowErrorHandler to reject the file on a row error, OutgoingTyper and
EventDirectioner to shape the processed envelope.
*/
package processor
