package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/etl-dispatch/internal/api/handler"
	"github.com/cuongbtq/etl-dispatch/internal/api/model"
	"github.com/cuongbtq/etl-dispatch/internal/api/storage"
	"github.com/cuongbtq/etl-dispatch/internal/payload"
	"github.com/cuongbtq/etl-dispatch/internal/producer"
	"github.com/cuongbtq/etl-dispatch/shared/rabbitmq"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePublisher struct {
	configured bool
	err        error
	bodies     []string
}

func (f *fakePublisher) Configured() bool                  { return f.configured }
func (f *fakePublisher) ConnectOnce(context.Context) error { return nil }

func (f *fakePublisher) Publish(_ context.Context, queue string, msg rabbitmq.Message) error {
	if f.err != nil {
		return &rabbitmq.PublishError{Queue: queue, Err: f.err}
	}
	f.bodies = append(f.bodies, string(msg.Body))
	return nil
}

type fakeItems struct {
	items  []model.Item
	err    error
	filter storage.ItemFilter
}

func (f *fakeItems) ListItems(_ context.Context, filter storage.ItemFilter) ([]model.Item, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	out := f.items
	if len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func serve(t *testing.T, r *gin.Engine, method, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestHealth(t *testing.T) {
	r := SetupRouter(&handler.Dependencies{Logger: testLogger()})

	code, body := serve(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "ok"}, body)
}

func TestSubmitJob(t *testing.T) {
	tests := []struct {
		name       string
		publisher  *fakePublisher
		body       string
		wantCode   int
		wantBody   map[string]any
		wantQueued int
	}{
		{
			name:       "queued",
			publisher:  &fakePublisher{configured: true},
			body:       `{"job_name":"t1","batch":[1,2]}`,
			wantCode:   http.StatusOK,
			wantBody:   map[string]any{"status": "queued", "queue": "jobs"},
			wantQueued: 1,
		},
		{
			name:      "queue not configured",
			publisher: &fakePublisher{configured: false},
			body:      `{"job_name":"t1"}`,
			wantCode:  http.StatusBadRequest,
			wantBody:  map[string]any{"status": "error", "message": "queue not configured"},
		},
		{
			name:      "publish failure",
			publisher: &fakePublisher{configured: true, err: errors.New("channel/connection is not open")},
			body:      `{"job_name":"t1"}`,
			wantCode:  http.StatusInternalServerError,
			wantBody: map[string]any{
				"status":  "error",
				"message": `failed to publish to queue "jobs": channel/connection is not open`,
			},
		},
		{
			name:      "body is not an object",
			publisher: &fakePublisher{configured: true},
			body:      `[1,2,3]`,
			wantCode:  http.StatusBadRequest,
			wantBody:  map[string]any{"status": "error", "message": "request body must be a JSON object"},
		},
		{
			name:      "empty body",
			publisher: &fakePublisher{configured: true},
			body:      ``,
			wantCode:  http.StatusBadRequest,
			wantBody:  map[string]any{"status": "error", "message": "request body must be a JSON object"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SetupRouter(&handler.Dependencies{
				Logger:   testLogger(),
				Producer: producer.New(tt.publisher, "jobs", testLogger()),
			})

			code, body := serve(t, r, http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, body)
			assert.Len(t, tt.publisher.bodies, tt.wantQueued)
		})
	}
}

func TestSubmitJob_PayloadForwardedVerbatim(t *testing.T) {
	pub := &fakePublisher{configured: true}
	r := SetupRouter(&handler.Dependencies{
		Logger:   testLogger(),
		Producer: producer.New(pub, "jobs", testLogger()),
	})

	code, _ := serve(t, r, http.MethodPost, "/jobs", `{"job_name":"t1","big":12345678901234567890,"nested":{"ok":true}}`)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, pub.bodies, 1)

	decoded, err := payload.Decode([]byte(pub.bodies[0]))
	require.NoError(t, err)
	big, ok := decoded["big"].AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 1.2345678901234567e19, big, 1e4)
	assert.JSONEq(t, `{"job_name":"t1","big":12345678901234567890,"nested":{"ok":true}}`, pub.bodies[0])
}

func TestListItems_StoreNotConfigured(t *testing.T) {
	r := SetupRouter(&handler.Dependencies{Logger: testLogger()})

	code, body := serve(t, r, http.MethodGet, "/items", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"items": []any{}, "note": "store not configured"}, body)
}

func TestListItems(t *testing.T) {
	v := 10.5
	var all []model.Item
	for i := int64(1); i <= 12; i++ {
		all = append(all, model.Item{ID: i, Name: "item", Value: &v, CreatedAt: "2024-01-01 10:00:00"})
	}

	t.Run("default page size", func(t *testing.T) {
		items := &fakeItems{items: all}
		r := SetupRouter(&handler.Dependencies{Logger: testLogger(), Items: items})

		code, body := serve(t, r, http.MethodGet, "/items", "")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["items"], 10)
		assert.Equal(t, 10, items.filter.PageSize)
		assert.Nil(t, items.filter.AfterID)
		assert.Equal(t, handler.EncodeItemCursor(10), body["next_cursor"])
		assert.NotContains(t, body, "note")
	})

	t.Run("cursor is forwarded", func(t *testing.T) {
		items := &fakeItems{items: all[10:]}
		r := SetupRouter(&handler.Dependencies{Logger: testLogger(), Items: items})

		code, body := serve(t, r, http.MethodGet, "/items?page_size=5&cursor="+handler.EncodeItemCursor(10), "")
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, body["items"], 2)
		require.NotNil(t, items.filter.AfterID)
		assert.Equal(t, int64(10), *items.filter.AfterID)
		assert.NotContains(t, body, "next_cursor")
	})

	t.Run("invalid cursor", func(t *testing.T) {
		r := SetupRouter(&handler.Dependencies{Logger: testLogger(), Items: &fakeItems{}})

		code, body := serve(t, r, http.MethodGet, "/items?cursor=%25%25", "")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "error", body["status"])
	})

	t.Run("store error", func(t *testing.T) {
		r := SetupRouter(&handler.Dependencies{Logger: testLogger(), Items: &fakeItems{err: errors.New("relation \"items\" does not exist")}})

		code, body := serve(t, r, http.MethodGet, "/items", "")
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "error", body["status"])
	})
}

func TestCORSPreflight(t *testing.T) {
	r := SetupRouter(&handler.Dependencies{Logger: testLogger()})

	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
