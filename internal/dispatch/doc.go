// Package dispatch turns inbound client events into feature work.
//
// Every event is decoded into its typed payload and validated before a
// handler sees it; a failure short-circuits with {success:false} on the
// event's result kind and never reaches the processing backend. Handlers
// that need the backend schedule the call on a bounded TaskPool so one slow
// request never blocks the connection's read loop or anyone else's. The
// call's context is the session's context, and results for sessions that
// closed in the meantime are discarded.
//
// Conversation messages are moderated, deduplicated by client message id,
// stamped with a ULID and broadcast to the room without echoing to the sender.
package dispatch
