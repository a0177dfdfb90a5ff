package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
	tu "github.com/desertthunder/clipsync/internal/testing"
)

func writeEnvelope(w http.ResponseWriter, status int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	env := map[string]any{"data": data, "error": nil}
	if msg != "" {
		env = map[string]any{"data": nil, "error": msg}
	}
	json.NewEncoder(w).Encode(env)
}

func TestClient(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("defaults", func(t *testing.T) {
			c := NewClient("", "", nil)
			if c.BaseURL() != "http://localhost:3000" {
				t.Errorf("expected default base url, got %s", c.BaseURL())
			}
			if c.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})

		t.Run("trims trailing slash", func(t *testing.T) {
			c := NewClient("http://example.com/", "", &http.Client{})
			if c.BaseURL() != "http://example.com" {
				t.Errorf("expected trimmed base url, got %s", c.BaseURL())
			}
		})
	})

	t.Run("Sync sends JSON with credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/core/v1/clipboard/sync" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer cpb_key" {
				t.Errorf("unexpected authorization header %q", got)
			}

			var req SyncRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode body: %v", err)
			}
			if req.ContentHash != "hash" {
				t.Errorf("unexpected hash %s", req.ContentHash)
			}
			writeEnvelope(w, http.StatusCreated, SyncResult{ID: "item-1", Seq: 7, Created: true}, "")
		}))
		defer server.Close()

		c := NewClient(server.URL, "cpb_key", nil)
		result, err := c.Sync(context.Background(), SyncRequest{Type: "text", Content: "c", ContentHash: "hash", SizeBytes: 1})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}
		if result.Seq != 7 || !result.Created {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("Poll advances last seq", func(t *testing.T) {
		var sinces []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			sinces = append(sinces, q.Get("since"))
			if q.Get("excludeDevice") != "true" {
				t.Errorf("expected excludeDevice=true, got %q", q.Get("excludeDevice"))
			}
			if q.Get("wait") != "20" {
				t.Errorf("expected wait=20, got %q", q.Get("wait"))
			}

			result := PollResult{Items: []models.ClipboardItemView{{ID: "a", Seq: 12}}, LastSeq: 12, Count: 1}
			if q.Get("since") == "12" {
				result = PollResult{Items: []models.ClipboardItemView{}, LastSeq: 12}
			}
			writeEnvelope(w, http.StatusOK, result, "")
		}))
		defer server.Close()

		c := NewClient(server.URL, "cpb_key", nil)
		c.SetLastSeq(3)

		for range 2 {
			if _, err := c.Poll(context.Background(), 10, 20*time.Second); err != nil {
				t.Fatalf("Poll() error = %v", err)
			}
		}

		if c.LastSeq() != 12 {
			t.Errorf("expected last seq 12, got %d", c.LastSeq())
		}
		if strings.Join(sinces, ",") != "3,12" {
			t.Errorf("unexpected since values %v", sinces)
		}
	})

	t.Run("maps error envelopes to sentinels", func(t *testing.T) {
		tc := []struct {
			status int
			want   error
		}{
			{status: http.StatusBadRequest, want: shared.ErrInvalidInput},
			{status: http.StatusUnauthorized, want: shared.ErrUnauthorized},
			{status: http.StatusForbidden, want: shared.ErrForbidden},
			{status: http.StatusNotFound, want: shared.ErrNotFound},
			{status: http.StatusTooManyRequests, want: shared.ErrRateLimited},
			{status: http.StatusInternalServerError, want: shared.ErrAPIRequest},
		}

		for _, tt := range tc {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeEnvelope(w, tt.status, nil, "something went wrong")
				}))
				defer server.Close()

				err := NewClient(server.URL, "", nil).Health(context.Background())
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
				if err != nil && !strings.Contains(err.Error(), "something went wrong") {
					t.Errorf("expected server message in error, got %v", err)
				}
			})
		}
	})

	t.Run("non-JSON error response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer server.Close()

		if err := NewClient(server.URL, "", nil).Health(context.Background()); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("network down"))}
		if err := NewClient("http://example.com", "", client).Health(context.Background()); err == nil {
			t.Error("expected transport error")
		}
	})

	t.Run("unreadable body", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}, Header: http.Header{}}
		client := &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}
		if err := NewClient("http://example.com", "", client).Health(context.Background()); err == nil {
			t.Error("expected read error")
		}
	})

	t.Run("Me ListItems and ClearItems", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method + " " + r.URL.Path {
			case "GET /api/core/v1/users":
				writeEnvelope(w, http.StatusOK, map[string]any{"user": map[string]string{"id": "u1", "email": "me@example.com"}}, "")
			case "GET /api/core/v1/clipboard":
				if r.URL.Query().Get("limit") != "5" {
					t.Errorf("expected limit=5, got %q", r.URL.Query().Get("limit"))
				}
				writeEnvelope(w, http.StatusOK, []models.ClipboardItemView{{ID: "x"}, {ID: "y"}}, "")
			case "DELETE /api/core/v1/clipboard/clear":
				writeEnvelope(w, http.StatusOK, map[string]any{"deletedCount": 2}, "")
			default:
				writeEnvelope(w, http.StatusNotFound, nil, "no route")
			}
		}))
		defer server.Close()

		c := NewClient(server.URL, "session", nil)
		ctx := context.Background()

		me, err := c.Me(ctx)
		if err != nil || me.ID != "u1" {
			t.Errorf("Me() = %+v, %v", me, err)
		}

		items, err := c.ListItems(ctx, 0, 5)
		if err != nil || len(items) != 2 {
			t.Errorf("ListItems() = %d items, %v", len(items), err)
		}

		n, err := c.ClearItems(ctx)
		if err != nil || n != 2 {
			t.Errorf("ClearItems() = %d, %v", n, err)
		}

		if err := c.DeleteItem(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("registration", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method + " " + r.URL.Path {
			case "POST /api/core/v1/devices/registrations":
				writeEnvelope(w, http.StatusCreated, map[string]any{"token": "dev_linux-la_1"}, "")
			case "POST /api/core/v1/devices/register":
				writeEnvelope(w, http.StatusOK, APIKeyResult{APIKey: "cpb_new", DeviceID: laptopID}, "")
			case "GET /api/core/v1/devices/register":
				if r.URL.Query().Get("token") != "dev_linux-la_1" {
					t.Errorf("unexpected token %q", r.URL.Query().Get("token"))
				}
				writeEnvelope(w, http.StatusOK, APIKeyResult{APIKey: "cpb_rotated", DeviceID: laptopID}, "")
			}
		}))
		defer server.Close()

		c := NewClient(server.URL, "", nil)
		ctx := context.Background()

		token, err := c.CreateRegistration(ctx, "linux-la", "")
		if err != nil || token != "dev_linux-la_1" {
			t.Fatalf("CreateRegistration() = %q, %v", token, err)
		}

		result, err := c.Register(ctx, RegistrationRequest{Token: token, DeviceID: laptopID})
		if err != nil || result.APIKey != "cpb_new" {
			t.Errorf("Register() = %+v, %v", result, err)
		}

		completed, err := c.CompleteRegistration(ctx, token)
		if err != nil || completed.APIKey != "cpb_rotated" {
			t.Errorf("CompleteRegistration() = %+v, %v", completed, err)
		}
	})
}
