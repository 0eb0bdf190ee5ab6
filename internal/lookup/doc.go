// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package lookup provides the reference data the record processor consumes:
which phase row a tag id is mounted on, where a reading sits in phase
coordinates, a farm's timezone, a machine's owner and the label catalog.

The processor only depends on the small interfaces in lookup.go
(PhaseLookup, FarmLookup, MachineLookup, LabelCatalog). Store implements all
of them on BadgerDB:

	phase:<phase_id>     msgpack(Phase)   rows, posts, walkway width, data status
	tag:<tag_id>         msgpack(string)  owning phase id
	farm:<farm_id>       msgpack(Farm)
	machine:<machine_id> msgpack(Machine)
	label:<label>        msgpack(Label)

Tag ids are unique across phases; PutPhase enforces this through the tag
index. Data status is monotonic (fresh, incoming, processed, archived) and
MarkProcessed cascades from the phase to its farm.

Stores are populated from a JSON seed file with LoadSeed:

	{"farms": [...], "phases": [...], "machines": [...], "labels": [...]}
*/
package lookup
