// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package config loads Cropstream configuration with koanf v2.

Sources, lowest to highest priority:
  - built-in defaults (defaultConfig)
  - an optional YAML file (CONFIG_PATH, ./config.yaml, /etc/cropstream/config.yaml)
  - environment variables

The stage bucket and stream variables keep the names the record processor has
always been deployed with:

	STAGE_BUCKET_NAME           stage.bucket_name
	PROCESSED_DATA_STREAM_NAME  stage.processed_stream
	INVALID_DATASTREAM_NAME     stage.invalid_stream
	SAVED_DATA_STREAM_NAME      stage.saved_stream

Everything else (CLOUD_PROVIDER, NATS_*, LOOKUP_*, HTTP_*, LOG_*) is listed in
envMappings. Unknown variables are ignored.

Validation runs struct tags through internal/validation and then the
cross-field checks in config_validate.go; error messages name the environment
variable to fix.
*/
package config
