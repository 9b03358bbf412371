package models

// PublicKey mirrors the AS2/Security-vocab publicKey shape used to
// federate an actor's signing key.
type PublicKey struct {
	ID           string
	Owner        string
	PublicKeyPem string
}

// Object is any non-activity addressable thing: a Note, an Actor, a
// Tombstone, a Collection summary, and so on. Actors carry the extra
// inbox/outbox/collection fields; everything else leaves them empty.
type Object struct {
	ID           string
	Type         []string
	AttributedTo []string
	Name         []string
	Content      []string
	Summary      []string
	URL          []string
	Published    []string
	Updated      []string
	Deleted      []string
	To           []string
	Cc           []string
	Audience     []string

	// Actor-only fields.
	PreferredUsername []string
	Inbox             []string
	SharedInbox       []string
	Outbox            []string
	Followers         []string
	Following         []string
	Liked             []string
	PublicKey         *PublicKey

	// PrivateKeyPem holds signing key material for local actors only.
	// It must never survive into External().
	PrivateKeyPem string
	// Local is true iff this object represents an actor hosted on this
	// instance. Never serialized.
	Local bool

	Extra map[string][]interface{}
}

// IsTombstone reports whether the object has already been replaced by
// a Delete side effect.
func (o *Object) IsTombstone() bool {
	for _, t := range o.Type {
		if t == "Tombstone" {
			return true
		}
	}
	return false
}

// Tombstone replaces o's fields in place, per invariant 5: only id,
// type, deleted and updated survive.
func (o *Object) Tombstone(deletedAt, updatedAt string) {
	*o = Object{
		ID:      o.ID,
		Type:    []string{"Tombstone"},
		Deleted: []string{deletedAt},
		Updated: []string{updatedAt},
	}
}

// MergeFrom applies a partial update: every field explicitly present
// (i.e. non-nil) in partial overwrites the corresponding field on o,
// leaving fields partial does not mention untouched. Used by Update.
func (o *Object) MergeFrom(partial *Object) {
	if partial.Type != nil {
		o.Type = partial.Type
	}
	if partial.Name != nil {
		o.Name = partial.Name
	}
	if partial.Content != nil {
		o.Content = partial.Content
	}
	if partial.Summary != nil {
		o.Summary = partial.Summary
	}
	if partial.URL != nil {
		o.URL = partial.URL
	}
	if partial.Updated != nil {
		o.Updated = partial.Updated
	}
	if partial.To != nil {
		o.To = partial.To
	}
	if partial.Cc != nil {
		o.Cc = partial.Cc
	}
	if partial.Audience != nil {
		o.Audience = partial.Audience
	}
	for k, v := range partial.Extra {
		if o.Extra == nil {
			o.Extra = map[string][]interface{}{}
		}
		o.Extra[k] = v
	}
}

// External produces a copy of o with every local-only or process-internal
// field stripped: private key material, and (per SPEC_FULL.md's Open
// Question resolution) every _meta/_local-prefixed extra field. Safe to
// serialize onto the wire to any recipient, local or remote.
func (o *Object) External() *Object {
	cp := *o
	cp.PrivateKeyPem = ""
	cp.Local = false
	if o.Extra != nil {
		cp.Extra = make(map[string][]interface{}, len(o.Extra))
		for k, v := range o.Extra {
			if hasStrippedPrefix(k) {
				continue
			}
			cp.Extra[k] = v
		}
	}
	return &cp
}

func hasStrippedPrefix(key string) bool {
	const (
		metaPrefix  = "_meta"
		localPrefix = "_local"
	)
	return len(key) >= len(metaPrefix) && key[:len(metaPrefix)] == metaPrefix ||
		len(key) >= len(localPrefix) && key[:len(localPrefix)] == localPrefix
}
