// Package simpletracking correlates camouflage HTTP traffic into a stream
// of document access events and aggregates it into dashboard statistics.
//
// The library is organized around three pieces:
//
//   - a fingerprint extractor (subpackage fingerprint) turning raw request
//     headers into normalized OS/browser/client-application facts,
//   - an ingestion pipeline (Service.Ingest) resolving document references,
//     deciding first-access status and appending immutable access events,
//   - an aggregation engine computing bounded rollups (hourly histograms,
//     top endpoints/countries/clients/ISPs, device classes, per-document
//     leaderboards) over the event store.
//
// Storage is pluggable through the Repository interface; in-memory,
// PostgreSQL and SQLite implementations live under repo/.
//
// Ingestion never fails a tracked request on purpose: malformed input is
// degraded to defaults and storage failures drop the event while the
// camouflage response proceeds unaffected.
package simpletracking
