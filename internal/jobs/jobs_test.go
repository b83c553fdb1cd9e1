package jobs

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/dataset"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/kerem-kaynak/tablecat/internal/lock"
	"github.com/kerem-kaynak/tablecat/internal/schema"
	"github.com/kerem-kaynak/tablecat/internal/search"
	"github.com/kerem-kaynak/tablecat/internal/search/searchtest"
	"github.com/kerem-kaynak/tablecat/internal/storage"
	"github.com/kerem-kaynak/tablecat/internal/tasks"
	"github.com/kerem-kaynak/tablecat/internal/testutil"
	"github.com/kerem-kaynak/tablecat/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var collections = dataset.Collections{Rows: "rows", Catalog: "datasets", Uncategorized: "uncategorized"}

const cities = `id,city,population
c1,Berlin,3645000
c2,Oslo,697010
c3,Bern,
c4,Lyon,513275
c5,Porto,"231,800"
`

type env struct {
	db       *gorm.DB
	engine   *searchtest.Memory
	storage  *storage.Local
	uploads  *upload.Store
	tasks    *tasks.Store
	runner   *tasks.Runner
	datasets *dataset.Service
	user     *entity.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil, tasks.WithEager())
}

// newEnvWith builds an env whose jobs consult aborts, or the task store when
// aborts is nil.
func newEnvWith(t *testing.T, aborts AbortChecker, opts ...tasks.Option) *env {
	t.Helper()

	db := testutil.NewDB(t)
	e := &env{
		db:      db,
		engine:  searchtest.NewMemory(),
		storage: storage.NewLocal(t.TempDir()),
		uploads: upload.NewStore(db),
		tasks:   tasks.NewStore(db),
		user:    testutil.CreateUser(t, db, "Grace", "Hopper"),
	}
	if aborts == nil {
		aborts = e.tasks
	}

	registry := upload.NewRegistry()
	registry.Register(".csv", tasks.Import, upload.NewCSV(e.storage))

	e.runner = tasks.NewRunner(e.tasks, zap.NewNop(), opts...)
	store := dataset.NewStore(db)
	store.OnDelete(dataset.NewIndexPurger(e.engine, collections, zap.NewNop()).AfterDelete)
	locks := lock.NewManager(lock.NewGormStore(db), zap.NewNop())
	e.datasets = dataset.NewService(store, locks, e.engine, e.tasks, e.runner, registry, collections, zap.NewNop())

	New(e.datasets, e.uploads, registry, e.storage, aborts, 2, zap.NewNop()).Register(e.runner)
	return e
}

func (e *env) putUpload(t *testing.T, name, body string) *entity.DataUpload {
	t.Helper()
	ctx := context.Background()

	path := "uploads/" + name
	_, err := e.storage.Put(ctx, path, strings.NewReader(body))
	require.NoError(t, err)
	in, err := upload.Inspect(strings.NewReader(body))
	require.NoError(t, err)

	u := &entity.DataUpload{
		Filename:         path,
		OriginalFilename: name,
		Columns:          in.Columns,
		GuessedTypes:     in.GuessedTypes,
		SampleData:       in.SampleData,
		CreatorID:        e.user.ID,
	}
	require.NoError(t, e.uploads.Create(ctx, u))
	return u
}

func (e *env) task(t *testing.T, ds *entity.Dataset) *entity.TaskStatus {
	t.Helper()
	require.NotNil(t, ds.CurrentTaskID)
	task, err := e.tasks.Get(context.Background(), *ds.CurrentTaskID)
	require.NoError(t, err)
	return task
}

func TestImport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ds, err := e.datasets.Create(ctx, e.user, dataset.CreateInput{Name: "Cities"})
	require.NoError(t, err)
	u := e.putUpload(t, "cities.csv", cities)
	field := 0

	_, err = e.datasets.ImportData(ctx, ds.ID, e.user, u, &field)
	require.NoError(t, err)

	stored, err := e.datasets.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	assert.Equal(t, int64(5), stored.Count())
	assert.Equal(t, "5 rows imported from cities.csv", *stored.LastModification)
	assert.Equal(t, e.user.ID, *stored.LastModifiedByID)
	assert.Equal(t, []string{"id", "city", "population"}, stored.ColumnNames())
	assert.Len(t, stored.SampleData, 5)

	task := e.task(t, stored)
	assert.Equal(t, entity.TaskSucceeded, task.Status)
	assert.Equal(t, "5 rows imported from cities.csv", task.Message)

	imported, err := e.uploads.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, imported.Imported)
	assert.Equal(t, ds.ID, *imported.DatasetID)

	doc, err := e.datasets.GetRow(ctx, stored, "c2")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "Oslo", "697010"}, doc.Data())

	res, err := e.engine.Query(ctx, collections.Catalog, search.Query{Text: "cities.csv", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.NumFound)

	_, err = e.datasets.ImportData(ctx, ds.ID, e.user, imported, nil)
	assert.ErrorIs(t, err, dataset.ErrAlreadyImported)
}

func TestImport_InvalidExternalIDFailsAndUnlocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ds, err := e.datasets.Create(ctx, e.user, dataset.CreateInput{Name: "Cities"})
	require.NoError(t, err)
	u := e.putUpload(t, "cities.csv", "id,city\nok,Berlin\nnot ok,Oslo\n")
	field := 0

	_, err = e.datasets.ImportData(ctx, ds.ID, e.user, u, &field)
	require.NoError(t, err)

	stored, err := e.datasets.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	task := e.task(t, stored)
	assert.Equal(t, entity.TaskFailed, task.Status)
	assert.Contains(t, task.Message, "line 3")
}

func TestReindex(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ds, err := e.datasets.Create(ctx, e.user, dataset.CreateInput{Name: "Cities"})
	require.NoError(t, err)
	field := 0
	_, err = e.datasets.ImportData(ctx, ds.ID, e.user, e.putUpload(t, "cities.csv", cities), &field)
	require.NoError(t, err)

	yes := true
	_, err = e.datasets.ReindexData(ctx, ds.ID, e.user, []*bool{nil, &yes, &yes}, nil)
	require.NoError(t, err)

	stored, err := e.datasets.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	assert.Equal(t, int64(5), stored.Count())
	assert.Equal(t, schema.TypeInt, stored.ColumnSchema[2].Type)
	assert.Equal(t, entity.TaskSucceeded, e.task(t, stored).Status)

	doc, err := e.datasets.GetRow(ctx, stored, "c5")
	require.NoError(t, err)
	assert.Equal(t, "Porto", doc["column_unicode_city"])
	assert.Equal(t, int64(231800), doc["column_int_population"])

	doc, err = e.datasets.GetRow(ctx, stored, "c3")
	require.NoError(t, err)
	assert.NotContains(t, doc, "column_int_population")
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ds, err := e.datasets.Create(ctx, e.user, dataset.CreateInput{Name: "Cities"})
	require.NoError(t, err)
	field := 0
	_, err = e.datasets.ImportData(ctx, ds.ID, e.user, e.putUpload(t, "cities.csv", cities), &field)
	require.NoError(t, err)

	_, err = e.datasets.ExportData(ctx, ds.ID, e.user, "exports/cities.csv")
	require.NoError(t, err)

	stored, err := e.datasets.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	task := e.task(t, stored)
	assert.Equal(t, entity.TaskSucceeded, task.Status)
	assert.Contains(t, task.Message, "5 rows exported")

	f, err := e.storage.Open(ctx, "exports/cities.csv")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "id,city,population", lines[0])
	assert.Contains(t, lines, `c5,Porto,"231,800"`)
	assert.Contains(t, lines, "c3,Bern,")
}

// abortOnCall records an abort request for the task on the given check, the
// way a delete in another process would, then reads it back from the store.
type abortOnCall struct {
	store *tasks.Store
	on    int
	calls int
}

func (a *abortOnCall) AbortRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	a.calls++
	if a.calls == a.on {
		if err := a.store.RequestAbort(ctx, id); err != nil {
			return false, err
		}
	}
	return a.store.AbortRequested(ctx, id)
}

func TestImport_PersistedAbortStopsBetweenBatches(t *testing.T) {
	checker := &abortOnCall{on: 2}
	e := newEnvWith(t, checker, tasks.WithEager())
	checker.store = e.tasks
	ctx := context.Background()
	ds, err := e.datasets.Create(ctx, e.user, dataset.CreateInput{Name: "Cities"})
	require.NoError(t, err)
	field := 0

	_, err = e.datasets.ImportData(ctx, ds.ID, e.user, e.putUpload(t, "cities.csv", cities), &field)
	require.NoError(t, err)

	stored, err := e.datasets.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)
	assert.Equal(t, entity.TaskAborted, e.task(t, stored).Status)
	assert.Equal(t, 2, e.engine.Count(collections.Rows, search.DatasetRowsFilter(stored.Slug)))
}

func TestExport_AbortedWhileQueuedUnlocks(t *testing.T) {
	e := newEnvWith(t, nil, tasks.WithConcurrency(1))
	ctx := context.Background()

	started := make(chan struct{})
	unblock := make(chan struct{})
	e.runner.Register("hold", func(ctx context.Context, req tasks.Request) (string, error) {
		close(started)
		<-unblock
		return "", nil
	})
	hold, err := e.tasks.Create(ctx, "hold", nil)
	require.NoError(t, err)
	require.NoError(t, e.runner.ApplyAsync(ctx, tasks.Request{Name: "hold", TaskID: hold.ID}))
	<-started

	ds, err := e.datasets.Create(ctx, e.user, dataset.CreateInput{Name: "Queued"})
	require.NoError(t, err)
	ds, err = e.datasets.ExportData(ctx, ds.ID, e.user, "")
	require.NoError(t, err)
	require.NoError(t, e.runner.RequestAbort(ctx, *ds.CurrentTaskID))

	assert.Eventually(t, func() bool {
		task, err := e.tasks.Get(ctx, *ds.CurrentTaskID)
		return err == nil && task.Status == entity.TaskAborted
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := e.datasets.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.False(t, stored.Locked)

	close(unblock)
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.runner.Shutdown(shutdownCtx))

	_, err = e.datasets.ExportData(ctx, ds.ID, e.user, "")
	assert.ErrorIs(t, err, tasks.ErrShutdown)
}

func TestFit(t *testing.T) {
	assert.Equal(t, []string{"a", ""}, fit([]string{"a"}, 2))
	assert.Equal(t, []string{"a"}, fit([]string{"a", "b"}, 1))
	assert.Equal(t, []string{"a", "b"}, fit([]string{"a", "b"}, 2))
}
