// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package stagefile reads and writes staged CSV files, the flat intermediate
format between pipeline stages.

Format:
  - semicolon delimited, one logical row per line (quoted cells may span lines)
  - every non-numeric cell is quoted with '"'; embedded quotes are doubled
  - '\' makes the next character literal
  - a cell starting with '{' or '[' holds JSON

Reader yields one Row at a time. A file whose only column is "payload" yields
the payload object itself. Writer fixes its mode and columns on the first
write, so rows of different shapes collapse onto one column set.
*/
package stagefile
