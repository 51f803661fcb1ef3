// Package channel routes broadcast frames to the sessions that joined a named
// channel.
//
// Channels are pure membership indices: translation, accessibility and
// analytics are pinned for the life of the process, while user:<id> and
// conversation:<id> channels are created on first join and dropped once the
// last member leaves. Membership is tracked in both directions so that a
// disconnecting session can be purged from every channel it joined.
package channel
