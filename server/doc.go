// Package server exposes documents and conversations over HTTP.
//
// Routes are served by gin under /api. Handlers are thin adapters over
// documents.Store, conversation.Manager and conversation.Chat; domain errors
// map to status codes by kind:
//
//	core.ErrValidation    400
//	core.ErrNotFound      404
//	core.ErrStateConflict 409
//	core.ErrUpstream      502
package server
