// Package ingestion turns stored documents into searchable embedding records.
//
// The Orchestrator runs one embedding pass over a document:
//   - Claims the document by moving it to the embedding state
//   - Derives units (chunks, or the whole document)
//   - Embeds every unit not already embedded for the current revision
//   - Flips the document to ready and publishes a notification
//
// A document can be claimed by only one run at a time; a second trigger is
// rejected with a state conflict rather than queued. If the document is
// edited while a run is in flight, the run's writes are rejected as stale.
//
// The Pipeline schedules runs in the background on a worker pool and retries
// runs that failed because an upstream service was unavailable.
package ingestion
