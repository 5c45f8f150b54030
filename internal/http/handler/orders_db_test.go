package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nyroxsystems-boop/autoteile-assistent/internal/db"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/documents"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/http/handler"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/jobs"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/orders"
	"github.com/nyroxsystems-boop/autoteile-assistent/internal/tenant"
)

type testEnv struct {
	DB     *gorm.DB
	Scope  tenant.Scope
	Router http.Handler
	Worker *jobs.Worker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	gdb, err := db.Connect(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))

	tenantID := uuid.NewString()
	t.Cleanup(func() {
		gdb.Exec(`delete from jobs where tenant_id = ?`, tenantID)
		gdb.Exec(`delete from orders where tenant_id = ?`, tenantID)
		gdb.Exec(`delete from documents where tenant_id = ?`, tenantID)
		gdb.Exec(`delete from number_sequences where tenant_id = ?`, tenantID)
	})
	scope := tenant.NewScope(tenantID)

	ordersSvc := &orders.Service{DB: gdb}
	jobsRepo := &jobs.Repo{DB: gdb}
	docs := &documents.Pipeline{
		DB:       gdb,
		Renderer: documents.PDFShellRenderer{},
		Blobs:    &documents.DirBlobStore{Root: t.TempDir()},
		Events:   &documents.LogSink{Log: zap.NewNop()},
	}

	oh := &handler.OrderHandler{DB: gdb, Orders: ordersSvc, Jobs: jobsRepo, Docs: docs}
	dh := &handler.DocumentHandler{DB: gdb, Orders: ordersSvc, Jobs: jobsRepo, Docs: docs}
	jh := &handler.JobHandler{Jobs: jobsRepo}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenant.With(req.Context(), scope)))
		})
	})
	r.Put("/orders/{id}", oh.Upsert)
	r.Get("/orders/{id}", oh.Get)
	r.Post("/orders/{id}/documents", dh.Create)
	r.Get("/documents/{id}/pdf", dh.Download)
	r.Get("/jobs/{id}", jh.Get)

	w := &jobs.Worker{
		ID:   "test-worker",
		Repo: jobsRepo,
		Log:  zap.NewNop(),
		Handlers: jobs.Handlers{
			UpsertOrder:            ordersSvc.HandleUpsert,
			GenerateDocument:       docs.Generate,
			GenerateDocumentFailed: docs.RecordFailure,
		},
	}

	return &testEnv{DB: gdb, Scope: scope, Router: r, Worker: w}
}

func (e *testEnv) do(t *testing.T, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestUpsertIdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	body := `{"status":"CONFIRMED","version":1,"customer":{"name":"Muster GmbH"},"lines":[{"sku":"br-pad-01","name":"Bremse","qty":2,"unit_price":39.9}]}`

	// missing key
	rec := env.do(t, http.MethodPut, "/orders/ord-1", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// first delivery
	rec = env.do(t, http.MethodPut, "/orders/ord-1", "key-1", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	first := decode(t, rec)
	jobID := first["job_id"].(string)
	assert.NotEmpty(t, jobID)

	// redelivery while queued
	rec = env.do(t, http.MethodPut, "/orders/ord-1", "key-1", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, jobID, decode(t, rec)["job_id"])

	require.NoError(t, env.Worker.RunOnce(context.Background()))

	// redelivery after the job settled returns the current state
	rec = env.do(t, http.MethodPut, "/orders/ord-1", "key-1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode(t, rec)
	assert.Equal(t, "ord-1", state["order_id"])
	assert.Equal(t, float64(1), state["version"])

	// same key for a different order is rejected
	rec = env.do(t, http.MethodPut, "/orders/ord-2", "key-1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// job status endpoint
	rec = env.do(t, http.MethodGet, "/jobs/"+jobID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	js := decode(t, rec)
	assert.Equal(t, string(jobs.StatusSucceeded), js["status"])
}

func TestUpsertStaleVersionConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/orders/ord-9", "key-a",
		`{"status":"CONFIRMED","version":5,"lines":[]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(t, http.MethodPut, "/orders/ord-9", "key-b",
		`{"status":"CONFIRMED","version":3,"lines":[]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/orders/ord-d1", "key-up",
		`{"status":"CONFIRMED","version":1,"customer":{"name":"K"},"lines":[{"sku":"oil-5w30","name":"Öl","qty":1,"unit_price":12}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, env.Worker.RunOnce(context.Background()))

	// document for an unknown order
	rec = env.do(t, http.MethodPost, "/orders/nope/documents", "key-d0", `{"type":"INVOICE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// bad type
	rec = env.do(t, http.MethodPost, "/orders/ord-d1/documents", "key-d1", `{"type":"RECEIPT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/orders/ord-d1/documents", "key-d2", `{"type":"INVOICE"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	created := decode(t, rec)
	docID := created["document_id"].(string)

	// not ready yet
	rec = env.do(t, http.MethodGet, "/documents/"+docID+"/pdf", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, env.Worker.RunOnce(context.Background()))

	// redelivery after completion
	rec = env.do(t, http.MethodPost, "/orders/ord-d1/documents", "key-d2", `{"type":"INVOICE"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(documents.StatusReady), decode(t, rec)["status"])

	// download
	rec = env.do(t, http.MethodGet, "/documents/"+docID+"/pdf", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	// reusing the upsert key for a document create is a type mismatch
	rec = env.do(t, http.MethodPost, "/orders/ord-d1/documents", "key-up", `{"type":"INVOICE"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
