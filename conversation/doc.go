// Package conversation manages conversations over a fixed set of documents
// and answers questions within them.
//
// Manager owns conversations and their turns. Chat is the orchestration on
// top of it: it stores the user's question, retrieves evidence over the
// conversation's documents, asks the generation service for an answer and
// stores that answer with its sources.
//
//	manager, _ := conversation.NewManager(repos.Conversations, repos.Documents)
//	chat, _ := conversation.NewChat(manager, retriever, provider.Generator())
//	id, _ := manager.CreateConversation(ctx, conversation.NewConversation{
//	    SessionID:   "session-1",
//	    DocumentIDs: []core.ID{docID},
//	})
//	reply, err := chat.Ask(ctx, id, "What is step 2?")
package conversation
