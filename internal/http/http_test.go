package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kerem-kaynak/tablecat/internal/appcontext"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/jobs"
	"github.com/kerem-kaynak/tablecat/internal/lock"
	"github.com/kerem-kaynak/tablecat/internal/metrics"
	"github.com/kerem-kaynak/tablecat/internal/search/searchtest"
	"github.com/kerem-kaynak/tablecat/internal/storage"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"github.com/kerem-kaynak/tablecat/internal/testutil"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"github.com/kerem-kaynak/tablecat/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = []byte("test-secret")

type testServer struct {
	ctx    *appcontext.Context
	engine *searchtest.Memory
	router *gin.Engine
	user   *entity.User
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	logger := zap.NewNop()
	engine := searchtest.NewMemory()
	store := storage.NewLocal(t.TempDir())
	collections := dataset.Collections{Rows: "rows", Catalog: "datasets", Uncategorized: "uncategorized"}

	taskStore := tasks.NewStore(db)
	runner := tasks.NewRunner(taskStore, logger, tasks.WithEager())
	registry := upload.NewRegistry()
	registry.Register(".csv", tasks.Import, upload.NewCSV(store))
	uploads := upload.NewStore(db)

	datasetStore := dataset.NewStore(db)
	datasetStore.OnDelete(dataset.NewIndexPurger(engine, collections, logger).AfterDelete)
	locks := lock.NewManager(lock.NewGormStore(db), logger)
	datasets := dataset.NewService(datasetStore, locks, engine, taskStore, runner, registry, collections, logger)
	j := jobs.New(datasets, uploads, registry, store, taskStore, 100, logger)
	j.Register(runner)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	ctx := &appcontext.Context{
		DB:            db,
		Logger:        logger,
		Engine:        engine,
		Storage:       store,
		Metrics:       reg,
		Datasets:      datasets,
		Uploads:       uploads,
		Registry:      registry,
		Tasks:         taskStore,
		Runner:        runner,
		Jobs:          j,
		CatalogIndex:  collections.Catalog,
		JWTSecret:     testSecret,
		MaxUploadSize: 1 << 20,
	}

	user := testutil.CreateUser(t, db, "Ada", "Lovelace")
	token, err := utils.GenerateJWT(testSecret, user.ID.String(), time.Hour)
	require.NoError(t, err)

	return &testServer{ctx: ctx, engine: engine, router: NewHTTPService(ctx).Engine(), user: user, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, path, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *testServer) createDataset(t *testing.T, name string) entity.Dataset {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/datasets", gin.H{"name": name, "description": "test data"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var ds entity.Dataset
	decode(t, w, &ds)
	return ds
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user entity.User
	decode(t, w, &user)
	assert.Equal(t, s.user.ID, user.ID)
}

func TestDatasetCRUD(t *testing.T) {
	s := newTestServer(t)

	ds := s.createDataset(t, "Bike Counts")
	assert.Equal(t, "bike-counts", ds.Slug)

	w := s.do(t, http.MethodGet, "/api/v1/datasets/bike-counts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/datasets/bike-counts", gin.H{"description": "hourly counts"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated entity.Dataset
	decode(t, w, &updated)
	assert.Equal(t, "hourly counts", updated.Description)

	w = s.do(t, http.MethodGet, "/api/v1/search?q=hourly", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &found)
	assert.Equal(t, int64(1), found.Total)

	w = s.do(t, http.MethodDelete, "/api/v1/datasets/bike-counts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, s.engine.Count("datasets", nil))

	w = s.do(t, http.MethodGet, "/api/v1/datasets/bike-counts", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateDataset_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/datasets", gin.H{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.createDataset(t, "Taken")
	w = s.do(t, http.MethodPost, "/api/v1/datasets", gin.H{"name": "Other", "slug": "taken"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/datasets", gin.H{"name": "Other", "slug": "has space/and slash"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAndImport(t *testing.T) {
	s := newTestServer(t)
	s.createDataset(t, "Cities")

	w := s.upload(t, "/api/v1/uploads", "cities.txt", "a,b\n1,2\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, "/api/v1/uploads", "cities.csv", "id,city\nc1,Berlin\nc2,Oslo\n")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var up entity.DataUpload
	decode(t, w, &up)
	assert.Equal(t, []string{"id", "city"}, []string(up.Columns))

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/datasets/cities/import/%s", up.ID), gin.H{"external_id_field": 0})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var started struct {
		TaskID string `json:"task_id"`
	}
	decode(t, w, &started)

	w = s.do(t, http.MethodGet, "/api/v1/tasks/"+started.TaskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var task entity.TaskStatus
	decode(t, w, &task)
	assert.Equal(t, entity.TaskSucceeded, task.Status, task.Message)

	w = s.do(t, http.MethodGet, "/api/v1/datasets/cities/data/c2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var row rowResponse
	decode(t, w, &row)
	assert.Equal(t, rowResponse{ExternalID: "c2", Data: []string{"c2", "Oslo"}}, row)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/datasets/cities/import/%s", up.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestRows(t *testing.T) {
	s := newTestServer(t)
	ds := s.createDataset(t, "Rivers")
	s.setSchema(t, ds.Slug, "name", "length")

	w := s.do(t, http.MethodPut, "/api/v1/datasets/rivers/data/rhine", gin.H{"data": []string{"Rhine", "1233"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/datasets/rivers/data", gin.H{"data": []string{"Danube", "2850"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPut, "/api/v1/datasets/rivers/data", gin.H{"rows": []gin.H{
		{"data": []string{"Rhine", "1230"}, "external_id": "rhine"},
		{"data": []string{"Elbe", "1094"}, "external_id": "elbe"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch struct {
		Message  string `json:"message"`
		RowCount int64  `json:"row_count"`
	}
	decode(t, w, &batch)
	assert.Equal(t, "1 row added and 1 updated", batch.Message)
	assert.Equal(t, int64(3), batch.RowCount)

	w = s.do(t, http.MethodPut, "/api/v1/datasets/rivers/data/bad", gin.H{"data": []string{"too", "many", "values"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/datasets/rivers/data?q=rhine&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Rows  []rowResponse `json:"rows"`
		Total int64         `json:"total"`
	}
	decode(t, w, &found)
	require.Len(t, found.Rows, 1)
	assert.Equal(t, []string{"Rhine", "1230"}, found.Rows[0].Data)

	w = s.do(t, http.MethodGet, "/api/v1/datasets/rivers/data?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/datasets/rivers/data/elbe", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/datasets/rivers/data/elbe", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/datasets/rivers/data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &batch)
	assert.Equal(t, "All 2 rows deleted", batch.Message)
	assert.Zero(t, s.engine.Count("rows", nil))
}

func TestSearchAllRows(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"Rivers", "Canals"} {
		ds := s.createDataset(t, name)
		s.setSchema(t, ds.Slug, "name")
	}
	w := s.do(t, http.MethodPut, "/api/v1/datasets/rivers/data", gin.H{"rows": []gin.H{
		{"data": []string{"Rhine"}, "external_id": "rhine"},
		{"data": []string{"Rhone"}, "external_id": "rhone"},
		{"data": []string{"Elbe"}, "external_id": "elbe"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPut, "/api/v1/datasets/canals/data", gin.H{"rows": []gin.H{
		{"data": []string{"Rhine-Herne"}, "external_id": "rhine-herne"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/data?q=rh&group_limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var found struct {
		Groups []struct {
			Slug    string          `json:"dataset_slug"`
			Dataset *entity.Dataset `json:"dataset"`
			Rows    []rowResponse   `json:"rows"`
			Total   int64           `json:"total"`
		} `json:"groups"`
		Total int `json:"total"`
	}
	decode(t, w, &found)
	assert.Equal(t, 2, found.Total)
	require.Len(t, found.Groups, 2)
	assert.Equal(t, "rivers", found.Groups[0].Slug)
	require.NotNil(t, found.Groups[0].Dataset)
	assert.Equal(t, "Rivers", found.Groups[0].Dataset.Name)
	assert.Equal(t, int64(2), found.Groups[0].Total)
	assert.Len(t, found.Groups[0].Rows, 1)
	assert.Equal(t, "canals", found.Groups[1].Slug)
	assert.Equal(t, []string{"Rhine-Herne"}, found.Groups[1].Rows[0].Data)

	w = s.do(t, http.MethodGet, "/api/v1/data?q=rh&limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &found)
	assert.Equal(t, 2, found.Total)
	require.Len(t, found.Groups, 1)
	assert.Equal(t, "canals", found.Groups[0].Slug)

	w = s.do(t, http.MethodGet, "/api/v1/data?group_limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLockedDatasetConflicts(t *testing.T) {
	s := newTestServer(t)
	ds := s.createDataset(t, "Busy")
	s.setSchema(t, ds.Slug, "a")

	require.NoError(t, s.ctx.DB.Model(&entity.Dataset{}).Where("id = ?", ds.ID).
		Updates(map[string]interface{}{"locked": true, "locked_at": time.Now().UTC()}).Error)

	w := s.do(t, http.MethodPost, "/api/v1/datasets/busy/reindex", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/datasets/busy/export", gin.H{"filename": "out.csv"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTaskEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/tasks/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	task, err := s.ctx.Tasks.Create(context.Background(), tasks.Export, &s.user.ID)
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID.String()+"/abort", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	got, err := s.ctx.Tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskAbortRequested, got.Status)
}

func TestRelatedUploadIsSearchable(t *testing.T) {
	s := newTestServer(t)
	s.createDataset(t, "Parks")

	w := s.upload(t, "/api/v1/datasets/parks/related", "methodology.pdf", "%PDF")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/search?q=methodology", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &found)
	assert.Equal(t, int64(1), found.Total)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{dataset.ErrDatasetLocked, http.StatusConflict},
		{fmt.Errorf("row 2: %w", dataset.ErrInvalidRow), http.StatusBadRequest},
		{dataset.ErrInvalidOverride, http.StatusBadRequest},
		{dataset.ErrSlugTaken, http.StatusBadRequest},
		{dataset.ErrNotFound, http.StatusNotFound},
		{lock.ErrNotFound, http.StatusNotFound},
		{tasks.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func (s *testServer) setSchema(t *testing.T, slug string, columns ...string) {
	t.Helper()
	ctx := context.Background()

	ds, err := s.ctx.Datasets.GetBySlug(ctx, slug)
	require.NoError(t, err)
	descriptors := make([]entity.ColumnDescriptor, len(columns))
	for i, c := range columns {
		descriptors[i] = entity.ColumnDescriptor{Name: c, Type: "unicode"}
	}
	ds.ColumnSchema = descriptors
	require.NoError(t, s.ctx.Datasets.Save(ctx, ds))
}
