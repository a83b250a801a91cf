package stream

import "strings"

// MergeText folds one text fragment into the accumulated answer without
// assuming a delivery mode. Backends variously send pure deltas, cumulative
// snapshots, or re-send already-delivered text, and a single rule set
// covers all three. Rules, in order:
//
//  1. accumulated empty: take the fragment
//  2. fragment extends the accumulated text (cumulative snapshot): replace
//  3. accumulated text starts with the fragment (stale snapshot): keep
//  4. fragment already contained in the accumulated text (duplicate): keep
//  5. otherwise: append
func MergeText(accumulated, fragment string) string {
	if accumulated == "" {
		return fragment
	}
	if strings.HasPrefix(fragment, accumulated) {
		return fragment
	}
	if strings.HasPrefix(accumulated, fragment) {
		return accumulated
	}
	if strings.Contains(accumulated, fragment) {
		return accumulated
	}
	return accumulated + fragment
}
