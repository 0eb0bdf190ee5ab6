// Cropstream - Greenhouse Sensor Record Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cropstream

/*
Package cloud defines the object storage and stream capabilities the record
processor needs, and the staging conventions built on top of them.

Backends:
  - Memory: in-process maps, used by tests and single-node runs
  - awscloud.Provider: S3 objects and Kinesis streams
  - natscloud.Provider: a JetStream object store and JetStream subjects

Stage wraps a Provider with the stage bucket and the processed, invalid and
saved streams. Staged paths are either s3://bucket/key or a bare key in the
stage bucket:

	stage := cloud.NewStage(provider, cloud.StageConfig{
		Bucket:          "staging",
		ProcessedStream: "processed",
		InvalidStream:   "invalid",
	})
	rc, err := stage.OpenStageFile(ctx, "raw-processor/datatype=aux/file.csv.gz")
*/
package cloud
