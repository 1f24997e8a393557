package batch_test

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/szsalyi/customization-poc-sub000/internal/repositories/identity"
	"github.com/szsalyi/customization-poc-sub000/internal/repositories/preference"
	"github.com/szsalyi/customization-poc-sub000/internal/repositories/sortable"
	"github.com/szsalyi/customization-poc-sub000/pkg/batch"
	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "customization"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.New(db, getTestLogger())
}

type fixture struct {
	db          database.DB
	identityID  int64
	sortables   *sortable.Repository
	prefs       *preference.Repository
	coordinator *batch.Coordinator
}

func newFixture(t *testing.T) *fixture {
	db := getTestDB(t)
	logger := getTestLogger()

	identities := identity.NewRepository(db, logger)
	resolved, err := identities.Resolve(context.Background(), uuid.New().String(), nil, true)
	require.NoError(t, err)

	sortables := sortable.NewRepository(db, logger)
	prefs := preference.NewRepository(db, logger)
	return &fixture{
		db:          db,
		identityID:  resolved.ID,
		sortables:   sortables,
		prefs:       prefs,
		coordinator: batch.NewCoordinator(db, sortables, prefs, logger),
	}
}

func domainIDs(entries []models.SortableEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.DomainID
	}
	return ids
}

func TestApplySortables_RejectsDuplicateOperations(t *testing.T) {
	// validation happens before any store access, so no database is needed
	coordinator := batch.NewCoordinator(nil, nil, nil, getTestLogger())

	_, err := coordinator.ApplySortables(context.Background(), 1, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-a", Position: 10},
			{DomainID: "acc-a", Position: 20},
		},
	}, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeDuplicateItem, errs.Code(err))
}

func TestApplySortables_RejectsNonPositivePositions(t *testing.T) {
	coordinator := batch.NewCoordinator(nil, nil, nil, getTestLogger())

	_, err := coordinator.ApplySortables(context.Background(), 1, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 0}},
	}, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidPosition, errs.Code(err))

	// a delete carries no position and must pass
	_, err = coordinator.ApplySortables(context.Background(), 1, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-a", Position: -5},
			{DomainID: "acc-b", Delete: true},
		},
	}, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidPosition, errs.Code(err))
}

func TestApply_RejectsUnknownMode(t *testing.T) {
	// mode is caller input, so a bad value is a 400, not a server error
	coordinator := batch.NewCoordinator(nil, nil, nil, getTestLogger())

	_, err := coordinator.ApplySortables(context.Background(), 1, models.DomainTypeAccount, models.BatchSortableRequest{
		Mode:       models.BatchMode("replace"),
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 10}},
	}, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	_, err = coordinator.ApplyPreferences(context.Background(), 1, models.BatchPreferenceRequest{
		CompatVersion: "v1",
		Mode:          models.BatchMode("merge"),
		Entries:       []models.BatchPreferenceEntry{{Key: "theme", Value: "dark"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestApplySortables_ReorderAndReplaceAll(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	// seed A=10, B=20, C=30 in one batch
	seeded, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-a", Position: 10},
			{DomainID: "acc-b", Position: 20},
			{DomainID: "acc-c", Position: 30},
		},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, seeded.Summary.Created)
	require.NotEmpty(t, seeded.ETag)

	// move C between A and B with the collection token as precondition
	moved, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-c", Position: 15}},
	}, seeded.ETag)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Summary.Updated)

	entries, err := f.sortables.List(ctx, f.identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-a", "acc-c", "acc-b"}, domainIDs(entries))

	// replace the whole scope with D then A
	replaced, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-d", Position: 1},
			{DomainID: "acc-a", Position: 2},
		},
		ReplaceAll: true,
	}, moved.ETag)
	require.NoError(t, err)
	assert.Equal(t, 1, replaced.Summary.Created)
	assert.Equal(t, 1, replaced.Summary.Updated)
	assert.Equal(t, 2, replaced.Summary.Deleted)

	entries, err = f.sortables.List(ctx, f.identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	assert.Equal(t, []string{"acc-d", "acc-a"}, domainIDs(entries))

	// replaying the same batch changes nothing
	replayed, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-d", Position: 1},
			{DomainID: "acc-a", Position: 2},
		},
		ReplaceAll: true,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, replayed.Summary.Unchanged)
	assert.Equal(t, 0, replayed.Summary.Created)
	assert.Equal(t, 0, replayed.Summary.Deleted)
	assert.Equal(t, replaced.ETag, replayed.ETag)
}

func TestApplySortables_StaleCollectionToken(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 10}},
	}, "")
	require.NoError(t, err)

	// a second write invalidates the first token
	_, err = f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-b", Position: 20}},
	}, "")
	require.NoError(t, err)

	_, err = f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 30}},
	}, first.ETag)
	require.Error(t, err)
	assert.Equal(t, errs.CodePreconditionFailed, errs.Code(err))

	// nothing moved
	entries, err := f.sortables.List(ctx, f.identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10), entries[0].Position)
}

func TestApplySortables_ConcurrentBatchesSerialize(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-a", Position: 10},
			{DomainID: "acc-b", Position: 20},
		},
	}, "")
	require.NoError(t, err)

	// without preconditions the row locks serialize the two batches and
	// neither write is lost
	batches := []models.BatchSortableRequest{
		{Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 100}}},
		{Operations: []models.SortableOperation{{DomainID: "acc-b", Position: 200}}},
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(batches))
	for _, req := range batches {
		wg.Add(1)
		go func(req models.BatchSortableRequest) {
			defer wg.Done()
			_, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, req, "")
			errCh <- err
		}(req)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		assert.NoError(t, err)
	}

	entries, err := f.sortables.List(ctx, f.identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	positions := map[string]int64{}
	for _, e := range entries {
		positions[e.DomainID] = e.Position
	}
	assert.Equal(t, int64(100), positions["acc-a"])
	assert.Equal(t, int64(200), positions["acc-b"])
}

func TestApplySortables_UpdateOnlyRollsBackWholeBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-a", Position: 10},
			{DomainID: "acc-b", Position: 20},
		},
	}, "")
	require.NoError(t, err)

	// acc-a would move, but the unknown acc-x must roll it back
	_, err = f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{
			{DomainID: "acc-a", Position: 50},
			{DomainID: "acc-x", Position: 60},
		},
		Mode: models.BatchModeUpdateOnly,
	}, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeBatchFailed, errs.Code(err))

	entries, err := f.sortables.List(ctx, f.identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(10), entries[0].Position, "partial batch must not persist")
}

func TestApplySortables_PerItemTokens(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	seeded, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 10}},
	}, "")
	require.NoError(t, err)
	itemTag := seeded.Results[0].ETag
	require.NotEmpty(t, itemTag)

	// matching item token passes and the move bumps the version
	moved, err := f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 20, ExpectedTag: itemTag}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, moved.Summary.Updated)
	assert.NotEqual(t, itemTag, moved.Results[0].ETag)

	// the consumed token is now stale
	_, err = f.coordinator.ApplySortables(ctx, f.identityID, models.DomainTypeAccount, models.BatchSortableRequest{
		Operations: []models.SortableOperation{{DomainID: "acc-a", Position: 30, ExpectedTag: itemTag}},
	}, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeBatchFailed, errs.Code(err))

	entries, err := f.sortables.List(ctx, f.identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(20), entries[0].Position)
}

func TestApplyPreferences_AtomicUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	result, err := f.coordinator.ApplyPreferences(ctx, f.identityID, models.BatchPreferenceRequest{
		CompatVersion: "v1",
		Entries: []models.BatchPreferenceEntry{
			{Key: "theme", Value: "dark"},
			{Key: "zoom", Value: "1.5"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Created)
	require.NotEmpty(t, result.ETag)

	// replay: identical values leave everything unchanged, token included
	replayed, err := f.coordinator.ApplyPreferences(ctx, f.identityID, models.BatchPreferenceRequest{
		CompatVersion: "v1",
		Entries: []models.BatchPreferenceEntry{
			{Key: "theme", Value: "dark"},
			{Key: "zoom", Value: "1.5"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, replayed.Summary.Unchanged)
	assert.Equal(t, result.ETag, replayed.ETag)
}

func TestApplyPreferences_UpdateOnlyRollsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coordinator.ApplyPreferences(ctx, f.identityID, models.BatchPreferenceRequest{
		CompatVersion: "v1",
		Entries:       []models.BatchPreferenceEntry{{Key: "theme", Value: "dark"}},
	})
	require.NoError(t, err)

	_, err = f.coordinator.ApplyPreferences(ctx, f.identityID, models.BatchPreferenceRequest{
		CompatVersion: "v1",
		Mode:          models.BatchModeUpdateOnly,
		Entries: []models.BatchPreferenceEntry{
			{Key: "theme", Value: "light"},
			{Key: "never-written", Value: "x"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeBatchFailed, errs.Code(err))

	current, err := f.prefs.Get(ctx, f.identityID, "theme", "v1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "dark", current.Value, "failed batch must not leak partial writes")
}
