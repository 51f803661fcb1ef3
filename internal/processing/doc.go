// Package processing is the gateway's only path to AI inference.
//
// Adapter exposes one typed method per feature. Backends (Simulated,
// HTTPBackend, OpenAIBackend, GeminiBackend) implement it directly; the
// decorators WithTimeout, NewCached and Instrumented wrap any Adapter to add
// the timeout budget, the translation cache and latency metrics. New wires the
// stack selected in config.
//
// Timeout policy lives here and nowhere else: callers never race their own
// timers against an Adapter call, they only cancel its context when the
// session that asked for the work goes away.
package processing
