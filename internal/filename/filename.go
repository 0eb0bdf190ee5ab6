// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

// Package filename extracts identity fields from the upload filenames the
// robots have used over time. Patterns are tried in a fixed order and the
// first match wins; fields a pattern does not carry stay Undefined.
package filename

import (
	"path"
	"regexp"
)

// Undefined is the value of every field the matching pattern did not carry.
const Undefined = "<undefined>"

const (
	baseNameV1 = `/(?P<tag_id>[^-]+)-(?P<timestamp>[^-]+)-(?P<extra_info>[^-]+)-(?P<identifier>.{6})\.(?P<fileextension>.*)$`
	baseNameV2 = `/(?P<tag_id>[^-]+)-(?P<rsid>[^-]+)-(?P<timestamp>[^-]+)-(?P<extra_info>[^-]+)-(?P<identifier>.{6})\.(?P<fileextension>.*)$`
	keyPrefix  = `^.*/(?P<file_type>[^/]+)/(?P<machine_id>[^/]+)/(?P<upload_date>.{4}-.{2}-.{2})`
)

// Pattern is one supported naming convention.
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// Patterns in priority order.
var Patterns = []Pattern{
	{Name: "key_v2", re: regexp.MustCompile(keyPrefix + baseNameV2)},
	{Name: "key_v1", re: regexp.MustCompile(keyPrefix + baseNameV1)},
	{Name: "key_v3", re: regexp.MustCompile(`^.*/(?P<file_type>[\w-]+)` + baseNameV2)},
	{Name: "models_v1", re: regexp.MustCompile(`^/(?P<file_type>[^/]+)/(?P<phase_id>[^/]+)/(?P<row_number>[^/]+)/(?P<rsid>[^/]+)/[^.]+\.(?P<fileextension>.*)$`)},
	{Name: "base_v1", re: regexp.MustCompile(`^` + baseNameV1)},
	{Name: "base_v2", re: regexp.MustCompile(`^` + baseNameV2)},
}

// Info holds the fields extracted from one filename.
type Info struct {
	Pattern       string
	FileType      string
	MachineID     string
	UploadDate    string
	TagID         string
	RSID          string
	Timestamp     string
	ExtraInfo     string
	Identifier    string
	FileExtension string
	PhaseID       string
	RowNumber     string
}

// Matched reports whether any pattern matched.
func (i Info) Matched() bool {
	return i.Pattern != ""
}

// Parse extracts the identity fields from name. It never fails; an
// unrecognised name yields an Info with every field Undefined.
func Parse(name string) Info {
	info := Info{
		FileType:      Undefined,
		MachineID:     Undefined,
		UploadDate:    Undefined,
		TagID:         Undefined,
		RSID:          Undefined,
		Timestamp:     Undefined,
		ExtraInfo:     Undefined,
		Identifier:    Undefined,
		FileExtension: Undefined,
		PhaseID:       Undefined,
		RowNumber:     Undefined,
	}

	subject := "/" + name
	for _, p := range Patterns {
		m := p.re.FindStringSubmatch(subject)
		if m == nil {
			continue
		}
		info.Pattern = p.Name
		for i, group := range p.re.SubexpNames() {
			if group == "" {
				continue
			}
			info.set(group, m[i])
		}
		break
	}
	return info
}

// TagFromBase parses only the basename of a staged path, used to check a
// row's tag against the file it came from.
func TagFromBase(stagedPath string) string {
	return Parse(path.Base(stagedPath)).TagID
}

func (i *Info) set(group, value string) {
	switch group {
	case "file_type":
		i.FileType = value
	case "machine_id":
		i.MachineID = value
	case "upload_date":
		i.UploadDate = value
	case "tag_id":
		i.TagID = value
	case "rsid":
		i.RSID = value
	case "timestamp":
		i.Timestamp = value
	case "extra_info":
		i.ExtraInfo = value
	case "identifier":
		i.Identifier = value
	case "fileextension":
		i.FileExtension = value
	case "phase_id":
		i.PhaseID = value
	case "row_number":
		i.RowNumber = value
	}
}

// LogFields returns the identity fields worth attaching to log lines as
// key/value pairs. Volatile parts of the name are left out.
func (i Info) LogFields() []string {
	return []string{
		"file_type", i.FileType,
		"machine_id", i.MachineID,
		"upload_date", i.UploadDate,
		"tag_id", i.TagID,
		"rsid", i.RSID,
		"phase_id", i.PhaseID,
		"row_number", i.RowNumber,
	}
}
