// Package util holds small test fixtures shared across package test
// files that otherwise cannot see each other's unexported helpers.
package util

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

// MockTransport serves a local JSON-LD fixture in place of a real
// fetch to https://www.w3.org/ns/activitystreams, the one remote
// document the normalizer and its dependents fetch during a test run.
// TestDataPath is relative to the test binary's working directory
// (the package under test), matching how go test invokes tests.
type MockTransport struct {
	TestDataPath string
	Fallback     http.RoundTripper
}

// NewMockTransport builds a MockTransport serving testDataPath for the
// activitystreams context document and falling back to fallback (or a
// rejecting stub if nil) for anything else.
func NewMockTransport(testDataPath string, fallback http.RoundTripper) *MockTransport {
	if fallback == nil {
		fallback = rejectingTransport{}
	}
	return &MockTransport{TestDataPath: testDataPath, Fallback: fallback}
}

type rejectingTransport struct{}

func (rejectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("unexpected fetch to %s", req.URL)
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != "www.w3.org" || req.URL.Path != "/ns/activitystreams" {
		return m.Fallback.RoundTrip(req)
	}

	f, err := os.Open(m.TestDataPath)
	if err != nil {
		return nil, fmt.Errorf("error opening testdata for mock transport: %v", err)
	}

	s, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("error getting filesize for mock transport: %v", err)
	}

	header := make(http.Header)
	header.Add("Content-Length", fmt.Sprintf("%d", s.Size()))
	header.Add("Content-Type", "application/ld+json")
	header.Add("Date", s.ModTime().Format(time.RFC1123))

	return &http.Response{
		Status:        http.StatusText(http.StatusOK),
		StatusCode:    http.StatusOK,
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		ContentLength: s.Size(),
		Request:       req,
		Header:        header,
		Body:          f,
	}, nil
}
