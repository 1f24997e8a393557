package preference_test

import (
	"context"
	"os"
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
	"github.com/szsalyi/customization-poc-sub000/internal/repositories/preference"
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

func newTestIdentity(t *testing.T, db database.DB) int64 {
	repo := identity.NewRepository(db, getTestLogger())
	resolved, err := repo.Resolve(context.Background(), uuid.New().String(), nil, true)
	require.NoError(t, err)
	return resolved.ID
}

func TestUpsert_CreateUpdateUnchanged(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := preference.NewRepository(db, getTestLogger())
	ctx := context.Background()
	identityID := newTestIdentity(t, db)

	created, outcome, err := repo.Upsert(ctx, identityID, "theme", "dark", "v1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, outcome)
	assert.Equal(t, int64(1), created.Version)

	// same value again must not bump the version
	same, outcome, err := repo.Upsert(ctx, identityID, "theme", "dark", "v1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnchanged, outcome)
	assert.Equal(t, int64(1), same.Version)

	updated, outcome, err := repo.Upsert(ctx, identityID, "theme", "light", "v1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUpdated, outcome)
	assert.Equal(t, int64(2), updated.Version)

	// the same key under another compat version is an independent row
	other, outcome, err := repo.Upsert(ctx, identityID, "theme", "dark", "v2")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, outcome)
	assert.Equal(t, int64(1), other.Version)
}

func TestUpdateWithVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := preference.NewRepository(db, getTestLogger())
	ctx := context.Background()
	identityID := newTestIdentity(t, db)

	_, _, err := repo.Upsert(ctx, identityID, "layout", "grid", "v1")
	require.NoError(t, err)

	_, err = repo.UpdateWithVersion(ctx, identityID, "layout", "list", "v1", 99)
	require.Error(t, err)
	assert.Equal(t, errs.CodePreconditionFailed, errs.Code(err))

	updated, err := repo.UpdateWithVersion(ctx, identityID, "layout", "list", "v1", 1)
	require.NoError(t, err)
	assert.Equal(t, "list", updated.Value)
	assert.Equal(t, int64(2), updated.Version)

	_, err = repo.UpdateWithVersion(ctx, identityID, "missing", "x", "v1", 1)
	require.Error(t, err)
	assert.Equal(t, errs.CodeItemNotFound, errs.Code(err))
}

func TestListAndVersions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := preference.NewRepository(db, getTestLogger())
	ctx := context.Background()
	identityID := newTestIdentity(t, db)

	for _, seed := range []struct{ key, value, compat string }{
		{"zoom", "1.5", "v1"},
		{"theme", "dark", "v1"},
		{"theme", "light", "v2"},
	} {
		_, _, err := repo.Upsert(ctx, identityID, seed.key, seed.value, seed.compat)
		require.NoError(t, err)
	}

	entries, err := repo.List(ctx, identityID, "v1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "theme", entries[0].Key)
	assert.Equal(t, "zoom", entries[1].Key)

	versions, err := repo.ListVersions(ctx, identityID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, versions)
}

func TestDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := preference.NewRepository(db, getTestLogger())
	ctx := context.Background()
	identityID := newTestIdentity(t, db)

	_, _, err := repo.Upsert(ctx, identityID, "theme", "dark", "v1")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, identityID, "theme", "v1"))

	gone, err := repo.Get(ctx, identityID, "theme", "v1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	err = repo.Delete(ctx, identityID, "theme", "v1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeItemNotFound, errs.Code(err))
}
