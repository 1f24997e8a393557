package sorting_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/szsalyi/customization-poc-sub000/internal/repositories/identity"
	"github.com/szsalyi/customization-poc-sub000/internal/repositories/sortable"
	"github.com/szsalyi/customization-poc-sub000/pkg/database"
	"github.com/szsalyi/customization-poc-sub000/pkg/errs"
	"github.com/szsalyi/customization-poc-sub000/pkg/models"
	"github.com/szsalyi/customization-poc-sub000/pkg/ordering"
	"github.com/szsalyi/customization-poc-sub000/pkg/sorting"
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

func newTestEngine(t *testing.T) (*sorting.Engine, int64) {
	db := getTestDB(t)
	logger := getTestLogger()

	identities := identity.NewRepository(db, logger)
	resolved, err := identities.Resolve(context.Background(), uuid.New().String(), nil, true)
	require.NoError(t, err)

	repo := sortable.NewRepository(db, logger)
	// nil locker: single-instance mode, compaction relies on row locks only
	return sorting.NewEngine(db, repo, nil, logger), resolved.ID
}

func int64Ptr(v int64) *int64 { return &v }

func TestAdd_RejectsNonPositivePosition(t *testing.T) {
	// fails before any store access
	engine := sorting.NewEngine(nil, nil, nil, getTestLogger())

	_, err := engine.Add(context.Background(), 1, models.DomainTypeAccount, models.AddSortableRequest{
		DomainID: "acc-a",
		Position: int64Ptr(0),
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidPosition, errs.Code(err))
}

func TestReorder_RejectsBadInput(t *testing.T) {
	engine := sorting.NewEngine(nil, nil, nil, getTestLogger())

	_, err := engine.Reorder(context.Background(), 1, models.DomainTypeAccount, "acc-a", models.ReorderSortableRequest{Position: -1})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidPosition, errs.Code(err))

	// a token that never came from this service is a precondition failure
	_, err = engine.Reorder(context.Background(), 1, models.DomainTypeAccount, "acc-a", models.ReorderSortableRequest{
		Position:    10,
		ExpectedTag: "!!not-a-token!!",
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodePreconditionFailed, errs.Code(err))
}

func TestAdd_AppendsWithGapSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine, identityID := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{DomainID: "acc-a"})
	require.NoError(t, err)
	assert.Equal(t, ordering.GapStep, first.Position)

	second, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{DomainID: "acc-b"})
	require.NoError(t, err)
	assert.Equal(t, 2*ordering.GapStep, second.Position)

	// explicit positions are honored as-is
	third, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{
		DomainID: "acc-c",
		Position: int64Ptr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), third.Position)

	list, err := engine.List(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, list.Items, 3)
	assert.Equal(t, "acc-c", list.Items[0].DomainID)
	assert.NotEmpty(t, list.ETag)
	for _, item := range list.Items {
		assert.NotEmpty(t, item.ETag)
	}
}

func TestReorder_MovesSingleRow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine, identityID := newTestEngine(t)
	ctx := context.Background()

	for _, seed := range []struct {
		id       string
		position int64
	}{{"acc-a", 10}, {"acc-b", 20}, {"acc-c", 30}} {
		_, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{
			DomainID: seed.id,
			Position: int64Ptr(seed.position),
		})
		require.NoError(t, err)
	}

	// move C between A and B
	position, ok, err := engine.PositionBetween(ctx, identityID, models.DomainTypeAccount, "acc-a", "acc-b")
	require.NoError(t, err)
	require.True(t, ok)

	moved, err := engine.Reorder(ctx, identityID, models.DomainTypeAccount, "acc-c", models.ReorderSortableRequest{Position: position})
	require.NoError(t, err)
	assert.Equal(t, position, moved.Position)

	list, err := engine.List(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	assert.Equal(t, "acc-a", list.Items[0].DomainID)
	assert.Equal(t, "acc-c", list.Items[1].DomainID)
	assert.Equal(t, "acc-b", list.Items[2].DomainID)

	// siblings kept their positions and were never written: versions untouched
	assert.Equal(t, int64(10), list.Items[0].Position)
	assert.Equal(t, int64(20), list.Items[2].Position)
	assert.Equal(t, int64(1), list.Items[0].Version)
	assert.Equal(t, int64(1), list.Items[2].Version)
	assert.Equal(t, int64(2), list.Items[1].Version)
}

func TestReorder_DistinctItemsDoNotContend(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine, identityID := newTestEngine(t)
	ctx := context.Background()

	for i, id := range []string{"acc-a", "acc-b", "acc-c", "acc-d", "acc-e", "acc-f"} {
		_, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{
			DomainID: id,
			Position: int64Ptr(int64(i+1) * 10),
		})
		require.NoError(t, err)
	}

	// move four different items at once; acc-e and acc-f stay put
	moves := map[string]int64{
		"acc-a": 15,
		"acc-b": 25,
		"acc-c": 35,
		"acc-d": 45,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(moves))
	for id, position := range moves {
		wg.Add(1)
		go func(id string, position int64) {
			defer wg.Done()
			_, err := engine.Reorder(ctx, identityID, models.DomainTypeAccount, id, models.ReorderSortableRequest{Position: position})
			errCh <- err
		}(id, position)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		assert.NoError(t, err, "moves of distinct items must not contend")
	}

	list, err := engine.List(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, list.Items, 6)
	for _, item := range list.Items {
		if position, moved := moves[item.DomainID]; moved {
			assert.Equal(t, position, item.Position)
			assert.Equal(t, int64(2), item.Version)
		} else {
			assert.Equal(t, int64(1), item.Version, "untouched items must never be written")
		}
	}
}

func TestPositionBetween_ExhaustedGap(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine, identityID := newTestEngine(t)
	ctx := context.Background()

	for _, seed := range []struct {
		id       string
		position int64
	}{{"acc-a", 10}, {"acc-b", 11}} {
		_, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{
			DomainID: seed.id,
			Position: int64Ptr(seed.position),
		})
		require.NoError(t, err)
	}

	_, ok, err := engine.PositionBetween(ctx, identityID, models.DomainTypeAccount, "acc-a", "acc-b")
	require.NoError(t, err)
	assert.False(t, ok, "adjacent positions leave no slot")

	// compaction restores the spacing
	compacted, err := engine.Compact(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	assert.Equal(t, 2, compacted.Renumbered)

	position, ok, err := engine.PositionBetween(ctx, identityID, models.DomainTypeAccount, "acc-a", "acc-b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, position, ordering.GapStep)
	assert.Less(t, position, 2*ordering.GapStep)
}

func TestCompact_PreservesOrderAndIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine, identityID := newTestEngine(t)
	ctx := context.Background()

	for _, seed := range []struct {
		id       string
		position int64
	}{{"acc-a", 7}, {"acc-b", 8}, {"acc-c", 40}} {
		_, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{
			DomainID: seed.id,
			Position: int64Ptr(seed.position),
		})
		require.NoError(t, err)
	}

	compacted, err := engine.Compact(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	assert.Equal(t, 3, compacted.Renumbered)

	list, err := engine.List(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, list.Items, 3)
	for i, item := range list.Items {
		assert.Equal(t, int64(i+1)*ordering.GapStep, item.Position)
	}
	assert.Equal(t, "acc-a", list.Items[0].DomainID)
	assert.Equal(t, "acc-b", list.Items[1].DomainID)
	assert.Equal(t, "acc-c", list.Items[2].DomainID)

	// a second pass has nothing to do
	again, err := engine.Compact(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Renumbered)
}

func TestRemove_LeavesGapBehind(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	engine, identityID := newTestEngine(t)
	ctx := context.Background()

	for _, seed := range []struct {
		id       string
		position int64
	}{{"acc-a", 10}, {"acc-b", 20}, {"acc-c", 30}} {
		_, err := engine.Add(ctx, identityID, models.DomainTypeAccount, models.AddSortableRequest{
			DomainID: seed.id,
			Position: int64Ptr(seed.position),
		})
		require.NoError(t, err)
	}

	require.NoError(t, engine.Remove(ctx, identityID, models.DomainTypeAccount, "acc-b", ""))

	list, err := engine.List(ctx, identityID, models.DomainTypeAccount)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, int64(10), list.Items[0].Position)
	assert.Equal(t, int64(30), list.Items[1].Position)

	err = engine.Remove(ctx, identityID, models.DomainTypeAccount, "acc-b", "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeItemNotFound, errs.Code(err))
}
