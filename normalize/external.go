package normalize

import (
	"time"

	"github.com/koshroy/outpost/models"
)

// ExternalActivity de-normalizes a canonical Activity into the
// JSON-LD-compact map handed to federated peers: every single-element
// list collapses back to a scalar, @context is re-added, and bto/bcc
// are stripped (section 3, invariant 2; section 4.8).
//
// embedObject controls whether a.Object is rendered as the embedded
// object map or as a bare IRI string — Announce's explicit carve-out
// (SPEC_FULL.md section 9) always passes false.
func ExternalActivity(a *models.Activity, embedObject bool) map[string]interface{} {
	doc := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"type":     a.Type,
	}
	if a.ID != "" {
		doc["id"] = a.ID
	}
	setCollapsed(doc, "actor", a.Actor)
	setCollapsed(doc, "target", a.Target)
	setCollapsed(doc, "result", a.Result)
	setCollapsed(doc, "origin", a.Origin)
	setCollapsed(doc, "instrument", a.Instrument)
	setCollapsed(doc, "to", a.To)
	setCollapsed(doc, "cc", a.Cc)
	setCollapsed(doc, "audience", a.Audience)
	if !a.Published.IsZero() {
		doc["published"] = a.Published.UTC().Format(time.RFC3339)
	}

	if len(a.Object) > 0 {
		if len(a.Object) == 1 {
			doc["object"] = objectValue(a.Object[0], embedObject)
		} else {
			vals := make([]interface{}, len(a.Object))
			for i, v := range a.Object {
				vals[i] = objectValue(v, embedObject)
			}
			doc["object"] = vals
		}
	}

	for k, v := range a.Extra {
		doc[k] = collapseRaw(v)
	}

	return doc
}

func objectValue(v models.Value, embed bool) interface{} {
	if !embed || v.Embedded == nil {
		return v.ID()
	}
	return ExternalObject(v.Embedded)
}

// ExternalObject de-normalizes an Object, stripping local-only fields
// via models.Object.External before rendering.
func ExternalObject(o *models.Object) map[string]interface{} {
	ext := o.External()

	doc := map[string]interface{}{}
	if ext.ID != "" {
		doc["id"] = ext.ID
	}
	setCollapsedStr(doc, "type", ext.Type)
	setCollapsed(doc, "attributedTo", ext.AttributedTo)
	setCollapsedStr(doc, "name", ext.Name)
	setCollapsedStr(doc, "content", ext.Content)
	setCollapsedStr(doc, "summary", ext.Summary)
	setCollapsed(doc, "url", ext.URL)
	setCollapsedStr(doc, "published", ext.Published)
	setCollapsedStr(doc, "updated", ext.Updated)
	setCollapsedStr(doc, "deleted", ext.Deleted)
	setCollapsed(doc, "to", ext.To)
	setCollapsed(doc, "cc", ext.Cc)
	setCollapsed(doc, "audience", ext.Audience)
	setCollapsedStr(doc, "preferredUsername", ext.PreferredUsername)
	setCollapsed(doc, "inbox", ext.Inbox)
	setCollapsed(doc, "outbox", ext.Outbox)
	setCollapsed(doc, "followers", ext.Followers)
	setCollapsed(doc, "following", ext.Following)
	setCollapsed(doc, "liked", ext.Liked)

	if ext.PublicKey != nil {
		doc["publicKey"] = map[string]interface{}{
			"id":           ext.PublicKey.ID,
			"owner":        ext.PublicKey.Owner,
			"publicKeyPem": ext.PublicKey.PublicKeyPem,
		}
	}

	for k, v := range ext.Extra {
		doc[k] = collapseRaw(v)
	}

	return doc
}

func setCollapsed(doc map[string]interface{}, key string, vals []string) {
	if len(vals) == 0 {
		return
	}
	if len(vals) == 1 {
		doc[key] = vals[0]
		return
	}
	ifaces := make([]interface{}, len(vals))
	for i, v := range vals {
		ifaces[i] = v
	}
	doc[key] = ifaces
}

func setCollapsedStr(doc map[string]interface{}, key string, vals []string) {
	setCollapsed(doc, key, vals)
}

func collapseRaw(vals []interface{}) interface{} {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}
