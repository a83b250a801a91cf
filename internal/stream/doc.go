// Package stream reconciles a model backend's event stream into a single
// authoritative answer for one turn.
//
// Backends differ in how they deliver text: some stream pure deltas, some
// stream cumulative snapshots, some repeat the final chunk, and delegating
// teams interleave member drafts with the coordinator's output. The
// Reconciler folds all of these into one result by classifying each raw
// event (Classifier), merging overlapping text fragments (MergeText) and
// deduplicating observed tool invocations by name.
//
// A Reconciler is single-use: one instance per turn, owned by that turn's
// goroutine. Nothing in this package is shared across turns.
package stream
