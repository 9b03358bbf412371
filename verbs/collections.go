package verbs

import "strings"

// isBroadcastCollection reports whether a membership change to
// collectionIRI must synthesize an Update broadcast (SPEC_FULL.md
// section 4.6 only calls this out for followers and liked).
func isBroadcastCollection(collectionIRI string) bool {
	return strings.HasSuffix(collectionIRI, "/followers") || strings.HasSuffix(collectionIRI, "/liked")
}
