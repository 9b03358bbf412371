// Package iri centralizes the URL shapes this instance mints for local
// actors and their collections, so every component agrees on the same
// layout without importing each other.
package iri

// Actor returns the IRI of a local actor given its bare username.
func Actor(baseURL, username string) string {
	return baseURL + "/u/" + username
}

// Outbox returns a local actor's outbox collection IRI.
func Outbox(baseURL, username string) string {
	return baseURL + "/outbox/" + username
}

// Inbox returns a local actor's inbox IRI.
func Inbox(baseURL, username string) string {
	return baseURL + "/inbox/" + username
}

// Followers returns a local actor's followers collection IRI.
func Followers(baseURL, username string) string {
	return baseURL + "/u/" + username + "/followers"
}

// Following returns a local actor's following collection IRI.
func Following(baseURL, username string) string {
	return baseURL + "/u/" + username + "/following"
}

// Liked returns a local actor's liked collection IRI.
func Liked(baseURL, username string) string {
	return baseURL + "/u/" + username + "/liked"
}

// Blocked returns a local actor's blocked collection IRI. It is never
// exposed over HTTP, only used internally to index Block activities.
func Blocked(baseURL, username string) string {
	return baseURL + "/u/" + username + "/blocked"
}

// Rejected returns the collection Follow requests move into on Reject.
func Rejected(baseURL, username string) string {
	return baseURL + "/u/" + username + "/rejected"
}

// Named returns a per-actor custom-named collection IRI.
func Named(baseURL, username, name string) string {
	return baseURL + "/u/" + username + "/c/" + name
}

// Username extracts the trailing username segment from a local actor
// IRI minted by Actor. Returns "" if iri isn't shaped like one.
func Username(baseURL, iri string) string {
	prefix := baseURL + "/u/"
	if len(iri) <= len(prefix) || iri[:len(prefix)] != prefix {
		return ""
	}
	rest := iri[len(prefix):]
	for i, c := range rest {
		if c == '/' {
			return rest[:i]
		}
	}
	return rest
}
