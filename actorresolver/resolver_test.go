package actorresolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/koshroy/outpost/models"
	"github.com/koshroy/outpost/store"
)

func newBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(req *http.Request, status int, body interface{}) *http.Response {
	b, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       newBody(b),
		Request:    req,
		Header:     make(http.Header),
	}
}

func TestResolveLocalActor(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	local := &models.Object{ID: "https://localhost/u/test", Type: []string{"Person"}}
	if err := s.SaveObject(ctx, local); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	r := New(s, http.DefaultClient, nil, "https://localhost")

	obj, kind, err := r.Resolve(ctx, "https://localhost/u/test")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if kind != KindLocal {
		t.Errorf("expected KindLocal, got %v", kind)
	}
	if obj.ID != local.ID {
		t.Errorf("unexpected actor id: %s", obj.ID)
	}
}

func TestResolveDoesNotTreatLookalikeHostAsLocal(t *testing.T) {
	t.Parallel()

	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(req, http.StatusOK, map[string]interface{}{
				"id":    "https://localhost.attacker.example/u/test",
				"type":  "Person",
				"inbox": "https://localhost.attacker.example/inbox/test",
			}), nil
		}),
	}

	s := store.NewMemoryStore()
	r := New(s, client, nil, "https://localhost")

	_, kind, err := r.Resolve(context.Background(), "https://localhost.attacker.example/u/test")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if kind != KindRemote {
		t.Errorf("expected a lookalike host to resolve as remote, got %v", kind)
	}
}

func TestResolveUnknownUsername(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	r := New(s, http.DefaultClient, nil, "https://localhost")

	_, err := r.ResolveLocalByUsername(context.Background(), "noone")
	if err == nil {
		t.Fatal("expected an error for an unprovisioned username")
	}
}

func TestResolveRemoteActorAndCache(t *testing.T) {
	t.Parallel()

	var fetches int32

	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&fetches, 1)
			return jsonResponse(req, http.StatusOK, map[string]interface{}{
				"id":    "https://mocked.com/user/mocked",
				"type":  "Person",
				"inbox": "https://mocked.com/inbox/mocked",
			}), nil
		}),
	}

	s := store.NewMemoryStore()
	r := New(s, client, NewCache(nil), "https://localhost")

	for i := 0; i < 3; i++ {
		obj, kind, err := r.Resolve(context.Background(), "https://mocked.com/user/mocked")
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if kind != KindRemote {
			t.Errorf("expected KindRemote, got %v", kind)
		}
		if obj.Inbox[0] != "https://mocked.com/inbox/mocked" {
			t.Errorf("unexpected inbox: %v", obj.Inbox)
		}
	}

	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Errorf("expected exactly 1 upstream fetch due to caching, got %d", got)
	}
}

func TestResolveRemoteTombstone(t *testing.T) {
	t.Parallel()

	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusGone,
				Body:       newBody(nil),
				Request:    req,
				Header:     make(http.Header),
			}, nil
		}),
	}

	s := store.NewMemoryStore()
	r := New(s, client, nil, "https://localhost")

	_, kind, err := r.Resolve(context.Background(), "https://mocked.com/user/gone")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if kind != KindTombstone {
		t.Errorf("expected KindTombstone, got %v", kind)
	}
}

func TestResolveUpstreamFailureIsWrapped(t *testing.T) {
	t.Parallel()

	client := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("network down")
		}),
	}

	s := store.NewMemoryStore()
	r := New(s, client, nil, "https://localhost")

	_, _, err := r.Resolve(context.Background(), "https://mocked.com/user/unreachable")
	if err == nil {
		t.Fatal("expected an upstream fetch failure")
	}
}
