package location_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkmilan/travel-server/pkg/location"
)

func TestReverse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		wantLabel string
		wantErr   bool
	}{
		{
			name:      "city",
			body:      `{"name":"Interlaken","display_name":"Interlaken, Bern, Switzerland","type":"town","address":{"town":"Interlaken","country":"Switzerland"}}`,
			status:    http.StatusOK,
			wantLabel: "Interlaken, Switzerland",
		},
		{
			name:      "village without country",
			body:      `{"name":"","display_name":"Somewhere","address":{"village":"Grindelwald"}}`,
			status:    http.StatusOK,
			wantLabel: "Grindelwald",
		},
		{
			name:      "display name fallback",
			body:      `{"display_name":"North Sea","address":{}}`,
			status:    http.StatusOK,
			wantLabel: "North Sea",
		},
		{
			name:    "unable to geocode",
			body:    `{"error":"Unable to geocode"}`,
			status:  http.StatusOK,
			wantErr: true,
		},
		{
			name:    "server error",
			body:    `oops`,
			status:  http.StatusBadGateway,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/reverse" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.URL.Query().Get("lat") != "46.686400" || r.URL.Query().Get("format") != "json" {
					t.Errorf("query = %s", r.URL.RawQuery)
				}
				if r.Header.Get("User-Agent") == "" {
					t.Errorf("missing User-Agent")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := location.NewClient(srv.URL, srv.Client()).Reverse(context.Background(), 46.6864, 7.8632)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Reverse() expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reverse() returned error: %v", err)
			}
			if got.Label() != tt.wantLabel {
				t.Errorf("Label() = %q, want %q", got.Label(), tt.wantLabel)
			}
		})
	}
}
