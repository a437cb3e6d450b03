package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexofarma/whatsapp-backend/internal/identity"
)

func TestSearchByDNI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("dni"); got != "22598630" {
			t.Errorf("expected dni=22598630, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"clientes":[{"id":"c-100","razon_social":"PEDROZO, ADELA MARIA","dni":"22598630","activo":true}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ids, err := c.Search(context.Background(), identity.LookupQuery{Document: "22598630"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(ids))
	}
	got := ids[0]
	if got.ID != "c-100" || got.FullName != "PEDROZO, ADELA MARIA" || got.DocumentNumber != "22598630" {
		t.Errorf("unexpected identity %+v", got)
	}
	if !got.ValidForIdentification {
		t.Error("expected identity to be valid for identification")
	}
}

func TestSearchRoutesElevenDigitsAsCUIT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cuit"); got != "27225986304" {
			t.Errorf("expected cuit=27225986304, got %q", got)
		}
		w.Write([]byte(`{"clientes":[]}`))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k"})
	if _, err := c.Search(context.Background(), identity.LookupQuery{Document: "27225986304"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearchSkipsUnusableAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"clientes":[
			{"id":"c-1","razon_social":"","dni":"22598630","activo":true},
			{"id":"c-2","razon_social":"GOMEZ, MARIA","dni":"","cuit":"","activo":true},
			{"id":"c-3","razon_social":"GOMEZ, MARIA","dni":"30111222","activo":false}
		]}`))
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k"})
	ids, err := c.Search(context.Background(), identity.LookupQuery{Document: "22598630"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, id := range ids {
		if id.ValidForIdentification {
			t.Errorf("expected %s to be unusable for identification", id.ID)
		}
	}
}

func TestSearchNotFoundIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k"})
	ids, err := c.Search(context.Background(), identity.LookupQuery{Document: "99999999"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no identities, got %d", len(ids))
	}
}

func TestSearchServerErrorWrapsCollaborator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Search(context.Background(), identity.LookupQuery{Document: "22598630"})
	if !errors.Is(err, identity.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Error("expected error for missing BaseURL")
	}
	if _, err := New(Config{BaseURL: "http://x"}); err == nil {
		t.Error("expected error for missing APIKey")
	}
}
