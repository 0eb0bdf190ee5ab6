// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package record builds canonical data lake records.

Every record type produces the same envelope of fields (identity, capture
times, row location, cartesian location, crops, versions) plus a block of its
own. The work is split in two:

  - Identity carries what the owning processor resolved for the row: the
    tag's customer, farm, phase and row, the machine, the upload time.
  - Source reads the rest from one input row: capture time, distance,
    height, velocity, direction and the type-specific extra content.

Build merges the two and validates the result against the record type's JSON
schema. Schemas are embedded from the schemas directory and compiled once with
gojsonschema; a mismatch is reported as a *SchemaError.

Sources may implement RecordTyper, LocalDatetimer, RowSessioner or
Cartesianer to replace the value Build would otherwise derive.
*/
package record
