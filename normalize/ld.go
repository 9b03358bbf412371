// Package normalize implements C1, the normalizer: it turns an incoming
// JSON-LD document into the internal canonical shape where every
// property is an ordered list (SPEC_FULL.md section 4.1), and reverses
// that shape on the way back out to federated peers.
//
// Expansion is driven by piprate/json-gold/ld, the same JSON-LD
// processor the teacher's inbox controller used. JSON-LD expansion
// already coerces every property into a list of value objects keyed by
// fully-qualified predicate IRI, so C1's list-coercion invariant falls
// out of the expansion step directly; normalize only has to walk the
// expanded graph into our field-shaped model.
package normalize

import (
	"fmt"
	"net/http"

	"github.com/koshroy/outpost/apierr"
	"github.com/koshroy/outpost/models"
	"github.com/piprate/json-gold/ld"
)

const asNS = "https://www.w3.org/ns/activitystreams#"
const secNS = "https://w3id.org/security#"

const (
	predType         = "@type"
	predActor        = asNS + "actor"
	predObject       = asNS + "object"
	predTarget       = asNS + "target"
	predResult       = asNS + "result"
	predOrigin       = asNS + "origin"
	predInstrument   = asNS + "instrument"
	predTo           = asNS + "to"
	predCc           = asNS + "cc"
	predBto          = asNS + "bto"
	predBcc          = asNS + "bcc"
	predAudience     = asNS + "audience"
	predPublished    = asNS + "published"
	predUpdated      = asNS + "updated"
	predDeleted      = asNS + "deleted"
	predContent      = asNS + "content"
	predName         = asNS + "name"
	predSummary      = asNS + "summary"
	predURL          = asNS + "url"
	predAttributedTo = asNS + "attributedTo"
	predPreferredUsr = asNS + "preferredUsername"
	predInbox        = asNS + "inbox"
	predOutbox       = asNS + "outbox"
	predFollowers    = asNS + "followers"
	predFollowing    = asNS + "following"
	predLiked        = asNS + "liked"
	predPublicKey    = secNS + "publicKey"
	predPublicKeyPem = secNS + "publicKeyPem"
)

// known fields already promoted to typed struct fields; everything else
// on an expanded node lands in Extra, still list-shaped.
var knownActivityPreds = map[string]bool{
	predActor: true, predObject: true, predTarget: true, predResult: true,
	predOrigin: true, predInstrument: true, predTo: true, predCc: true,
	predBto: true, predBcc: true, predAudience: true, predPublished: true,
}

// knownActivityVerbs is the AS2 "Activity Types" vocabulary (the
// subtypes of Activity, as opposed to plain Object subtypes like Note
// or Article). A node whose @type is one of these is an activity and
// must carry an actor; it is never eligible for bare-object wrapping
// even if actor is missing.
var knownActivityVerbs = map[string]bool{
	"Accept": true, "Add": true, "Announce": true, "Arrive": true,
	"Block": true, "Create": true, "Delete": true, "Dislike": true,
	"Flag": true, "Follow": true, "Ignore": true, "Invite": true,
	"Join": true, "Leave": true, "Like": true, "Listen": true,
	"Move": true, "Offer": true, "Question": true, "Read": true,
	"Reject": true, "Remove": true, "TentativeAccept": true,
	"TentativeReject": true, "Travel": true, "Undo": true,
	"Update": true, "View": true,
}

var knownObjectPreds = map[string]bool{
	predAttributedTo: true, predName: true, predContent: true, predSummary: true,
	predURL: true, predUpdated: true, predDeleted: true, predTo: true, predCc: true,
	predAudience: true, predPreferredUsr: true, predInbox: true, predOutbox: true,
	predFollowers: true, predFollowing: true, predLiked: true, predPublicKey: true,
}

// Normalizer wraps a JSON-LD processor configured with a caching
// document loader, exactly as the teacher's Inbox controller does.
type Normalizer struct {
	proc   *ld.JsonLdProcessor
	opts   *ld.JsonLdOptions
	loader *ld.RFC7324CachingDocumentLoader
}

// New builds a Normalizer. client is used to fetch (and cache) the
// activitystreams context document; pass a client with a mock
// transport in tests to avoid network access.
func New(client *http.Client) *Normalizer {
	loader := ld.NewRFC7324CachingDocumentLoader(client)
	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = loader

	return &Normalizer{
		proc:   ld.NewJsonLdProcessor(),
		opts:   opts,
		loader: loader,
	}
}

// Normalize expands raw and converts it into the canonical Activity
// shape. It fails with apierr.ErrInvalidActivity if raw has no type, or
// is missing an actor and is not a bare object (callers decide bare-ness
// via IsBareObject before wrapping).
func (n *Normalizer) Normalize(raw map[string]interface{}) (*models.Activity, error) {
	expanded, err := n.proc.Expand(raw, n.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrInvalidActivity, err)
	}

	if len(expanded) == 0 {
		return nil, fmt.Errorf("%w: empty document", apierr.ErrInvalidActivity)
	}

	node, ok := expanded[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top-level document is not a node", apierr.ErrInvalidActivity)
	}

	return nodeToActivity(node)
}

// NormalizeObject expands raw the same way Normalize does but converts
// the result into the canonical Object shape instead of Activity. Used
// by the pipeline to build the embedded object of the synthetic Create
// it wraps a bare object post in (section 4.1, 4.5 step 4).
func (n *Normalizer) NormalizeObject(raw map[string]interface{}) (*models.Object, error) {
	expanded, err := n.proc.Expand(raw, n.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrInvalidActivity, err)
	}

	if len(expanded) == 0 {
		return nil, fmt.Errorf("%w: empty document", apierr.ErrInvalidActivity)
	}

	node, ok := expanded[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top-level document is not a node", apierr.ErrInvalidActivity)
	}

	return nodeToObject(node), nil
}

// IsBareObject reports whether a parsed Activity actually carries no
// actor, meaning the pipeline must wrap it in a synthetic Create
// (section 4.1, 4.5 step 4). nodeToActivity already rejects a known
// activity verb (Follow, Delete, Undo, ...) with no actor as
// apierr.ErrInvalidActivity, so by the time Normalize returns
// successfully, actor-less always means bare object.
func IsBareObject(a *models.Activity) bool {
	return len(a.Actor) == 0
}

func nodeToActivity(node map[string]interface{}) (*models.Activity, error) {
	a := &models.Activity{
		ID:    stringOrEmpty(node["@id"]),
		Extra: map[string][]interface{}{},
	}

	types := valueList(node[predType])
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: missing type", apierr.ErrInvalidActivity)
	}
	a.Type = shortType(stringOrEmpty(types[0]))

	a.Actor = idList(node[predActor])
	if len(a.Actor) == 0 && knownActivityVerbs[a.Type] {
		return nil, fmt.Errorf("%w: %s activity requires an actor", apierr.ErrInvalidActivity, a.Type)
	}
	a.Target = idList(node[predTarget])
	a.Result = idList(node[predResult])
	a.Origin = idList(node[predOrigin])
	a.Instrument = idList(node[predInstrument])
	a.To = idList(node[predTo])
	a.Cc = idList(node[predCc])
	a.Bto = idList(node[predBto])
	a.Bcc = idList(node[predBcc])
	a.Audience = idList(node[predAudience])

	objNodes, _ := node[predObject].([]interface{})
	for _, raw := range objNodes {
		a.Object = append(a.Object, valueFromRaw(raw))
	}

	for pred, raw := range node {
		if pred == "@id" || pred == predType || knownActivityPreds[pred] {
			continue
		}
		if list, ok := raw.([]interface{}); ok {
			a.Extra[pred] = list
		}
	}

	return a, nil
}

// valueFromRaw converts one element of an expanded object/actor list
// into a models.Value: either an embedded Object, or a bare IRI
// reference (a node with nothing but an @id, i.e. Announce's carve-out
// per SPEC_FULL.md section 9).
func valueFromRaw(raw interface{}) models.Value {
	node, ok := raw.(map[string]interface{})
	if !ok {
		return models.Value{}
	}

	if len(node) == 1 {
		if id, ok := node["@id"].(string); ok {
			return models.Value{IRI: id}
		}
	}

	return models.Value{Embedded: nodeToObject(node)}
}

func nodeToObject(node map[string]interface{}) *models.Object {
	o := &models.Object{
		ID:                stringOrEmpty(node["@id"]),
		Type:              stringList(node[predType]),
		AttributedTo:      idList(node[predAttributedTo]),
		Name:              stringList(node[predName]),
		Content:           stringList(node[predContent]),
		Summary:           stringList(node[predSummary]),
		URL:               idList(node[predURL]),
		Updated:           stringList(node[predUpdated]),
		Deleted:           stringList(node[predDeleted]),
		To:                idList(node[predTo]),
		Cc:                idList(node[predCc]),
		Audience:          idList(node[predAudience]),
		PreferredUsername: stringList(node[predPreferredUsr]),
		Inbox:             idList(node[predInbox]),
		Outbox:            idList(node[predOutbox]),
		Followers:         idList(node[predFollowers]),
		Following:         idList(node[predFollowing]),
		Liked:             idList(node[predLiked]),
		Extra:             map[string][]interface{}{},
	}

	if pkList, ok := node[predPublicKey].([]interface{}); ok && len(pkList) > 0 {
		if pkNode, ok := pkList[0].(map[string]interface{}); ok {
			o.PublicKey = &models.PublicKey{
				ID:           stringOrEmpty(pkNode["@id"]),
				PublicKeyPem: stringOrEmpty(first(valueList(pkNode[predPublicKeyPem]))),
			}
		}
	}

	for pred, raw := range node {
		if pred == "@id" || pred == predType || knownObjectPreds[pred] {
			continue
		}
		if list, ok := raw.([]interface{}); ok {
			o.Extra[pred] = list
		}
	}

	return o
}

func valueList(v interface{}) []interface{} {
	list, _ := v.([]interface{})
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			if val, ok := m["@value"]; ok {
				out = append(out, val)
				continue
			}
			if id, ok := m["@id"]; ok {
				out = append(out, id)
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

func idList(v interface{}) []string {
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			if id, ok := m["@id"].(string); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

func stringList(v interface{}) []string {
	out := make([]string, 0)
	for _, item := range valueList(v) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}

func first(vs []interface{}) interface{} {
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// shortType compacts a fully-qualified activitystreams type IRI back to
// its bare vocabulary term (e.g. "Create"), falling back to the raw
// value for non-AS2 types.
func shortType(iri string) string {
	if len(iri) > len(asNS) && iri[:len(asNS)] == asNS {
		return iri[len(asNS):]
	}
	return iri
}
