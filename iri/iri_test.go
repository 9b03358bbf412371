package iri

import "testing"

func TestUsernameExtractsFromActorIRI(t *testing.T) {
	t.Parallel()

	const baseURL = "https://localhost"
	got := Username(baseURL, Actor(baseURL, "alice"))
	if got != "alice" {
		t.Errorf("expected alice, got %q", got)
	}
}

func TestUsernameExtractsFromSubPath(t *testing.T) {
	t.Parallel()

	const baseURL = "https://localhost"
	got := Username(baseURL, Followers(baseURL, "alice"))
	if got != "alice" {
		t.Errorf("expected alice, got %q", got)
	}
}

func TestUsernameEmptyForUnrelatedIRI(t *testing.T) {
	t.Parallel()

	const baseURL = "https://localhost"
	if got := Username(baseURL, "https://remote.example/u/bob"); got != "" {
		t.Errorf("expected empty username for a foreign IRI, got %q", got)
	}
}
