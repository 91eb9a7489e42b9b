// Package ticketsync replicates Zendesk Support data incrementally.
//
// A run reads a catalog of selected streams and the state left by the
// previous run, pulls every selected entity through the Zendesk API and
// writes an ordered feed of SCHEMA, RECORD and STATE messages. Each stream
// keeps a bookmark that only ever moves forward, so re-running after a
// failure replays at most the records at the bookmark boundary.
//
// # Architecture
//
//   - pkg/zendesk lists API resources with cursor, offset and incremental
//     export pagination on top of the resilient HTTP client in pkg/clients.
//   - pkg/streams declares the fourteen streams and syncs each one by its
//     replication strategy. Tickets fan out to audits, metrics and comments.
//   - pkg/state holds the bookmark aggregate; pkg/statestore persists it to
//     a file, S3, GCS or Postgres with optional compression.
//   - pkg/emitter writes messages to stdout or Kafka.
//   - internal/sync orchestrates a run; cmd/ticketsync is the CLI.
//
// # Quick Start
//
//	ticketsync discover --config config.yaml > catalog.json
//	ticketsync sync --config config.yaml --catalog catalog.json --select tickets
package ticketsync
