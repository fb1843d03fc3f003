package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFormula(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"Finance", "{Department}='Finance'"},
		{"R&D", "{Department}='R&D'"},
		{"O'Brien", `{Department}='O\'Brien'`},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := Formula("Department", tt.value); got != tt.want {
				t.Errorf("Formula() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	t.Run("returns records", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/appBase/People" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if got := r.URL.Query().Get("filterByFormula"); got != "{Department}='Finance'" {
				t.Errorf("unexpected formula: %s", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("unexpected auth header: %s", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"records":[{"id":"rec1","fields":{"Name":"Ada","Department":"Finance"}}]}`))
		}))
		defer srv.Close()

		c, err := New(Config{Token: "tok", BaseID: "appBase", Table: "People", BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("new failed: %v", err)
		}

		records, err := c.Query(context.Background(), "Department", "Finance")
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(records) != 1 || records[0].Fields["Name"] != "Ada" {
			t.Errorf("unexpected records: %+v", records)
		}
	})

	t.Run("non-200 is an APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusUnauthorized)
		}))
		defer srv.Close()

		c, _ := New(Config{Token: "tok", BaseID: "b", Table: "t", BaseURL: srv.URL})
		_, err := c.Query(context.Background(), "Department", "Finance")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("unexpected status: %d", apiErr.StatusCode)
		}
	})

	t.Run("missing config", func(t *testing.T) {
		if _, err := New(Config{}); !errors.Is(err, ErrNoToken) {
			t.Errorf("expected ErrNoToken, got %v", err)
		}
		if _, err := New(Config{Token: "x"}); !errors.Is(err, ErrNoTable) {
			t.Errorf("expected ErrNoTable, got %v", err)
		}
	})
}
