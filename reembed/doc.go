// Package reembed re-runs embedding passes over stored documents, for example
// after switching to a new embedding model or recovering from an outage.
//
// Documents are walked in pages, each document is handed to the embedding
// orchestrator with retry and exponential backoff, and progress is reported
// to a writer as the run advances.
package reembed
