// Package telemetry implements Skycast's privacy-preserving usage
// analytics pipeline. Raw per-tool-call events are reduced to an
// anonymized form gated by a configured privacy level, buffered in memory
// under strict resource caps, and shipped in batches to a collection
// endpoint. The pipeline is fail-open by contract: no error raised inside
// this package ever reaches a tool handler, and no code path here blocks
// the caller on network I/O.
package telemetry
