// Package documents implements the document store: creation, editing, soft
// deletion, listing and lexical search of uploaded documents.
//
// Creating a document persists it synchronously, publishes a
// document_upload notification and schedules an embedding run. Editing the
// content bumps the document's revision and clears its readiness until the
// embedding run for the new revision completes.
//
//	store, err := documents.NewStore(repos.Documents,
//	    documents.WithScheduler(pipeline),
//	    documents.WithNotifier(notifier),
//	)
//	id, err := store.Create(ctx, documents.NewDocument{Title: "Recipe", Content: text})
package documents
