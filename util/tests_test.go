package util

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestMockTransportServesFixtureForActivityStreamsContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "activitystreams.jsonld")
	if err := os.WriteFile(path, []byte(`{"@context":{}}`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	transport := NewMockTransport(path, nil)
	req, _ := http.NewRequest(http.MethodGet, "https://www.w3.org/ns/activitystreams", nil)

	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(body) != `{"@context":{}}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestMockTransportFallsBackForOtherHosts(t *testing.T) {
	t.Parallel()

	transport := NewMockTransport("unused", nil)
	req, _ := http.NewRequest(http.MethodGet, "https://remote.example/u/alice", nil)

	if _, err := transport.RoundTrip(req); err == nil {
		t.Error("expected the rejecting fallback to error on an unexpected fetch")
	}
}
