package sqlrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-service/applications"
	"github.com/jrsteele09/go-token-service/applications/sqlrepo"
	"github.com/jrsteele09/go-token-service/tokens/sqlstore"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *sqlrepo.Repo {
	t.Helper()
	db, err := sqlstore.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := sqlrepo.New(db)
	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

func testApplication(id, clientID string) *applications.Application {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	return &applications.Application{
		ID:                     id,
		ClientID:               clientID,
		ClientSecret:           "$encrypted$AESGCM$payload",
		Name:                   "stored app",
		OrganizationID:         "org-1",
		ClientType:             applications.ClientTypeConfidential,
		AuthorizationGrantType: applications.GrantPassword,
		Created:                now,
		Modified:               now,
	}
}

func TestUpsertAndGet(t *testing.T) {
	repo := newRepo(t)

	app := testApplication("app-1", "client-1")
	require.NoError(t, repo.Upsert(app))

	got, err := repo.Get("app-1")
	require.NoError(t, err)
	require.Equal(t, app.ID, got.ID)
	require.Equal(t, app.ClientID, got.ClientID)
	require.Equal(t, app.ClientSecret, got.ClientSecret)
	require.Equal(t, app.AuthorizationGrantType, got.AuthorizationGrantType)
	require.True(t, app.Created.Equal(got.Created))

	byClient, err := repo.GetByClientID("client-1")
	require.NoError(t, err)
	require.Equal(t, app.ID, byClient.ID)
}

func TestUpsertUpdatesInPlace(t *testing.T) {
	repo := newRepo(t)

	app := testApplication("app-1", "client-1")
	require.NoError(t, repo.Upsert(app))

	app.Name = "renamed"
	app.RedirectURIs = "http://localhost/callback"
	require.NoError(t, repo.Upsert(app))

	got, err := repo.Get("app-1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Name)
	require.Equal(t, "http://localhost/callback", got.RedirectURIs)

	list, err := repo.List(0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestDelete(t *testing.T) {
	repo := newRepo(t)

	require.NoError(t, repo.Upsert(testApplication("app-1", "client-1")))
	require.NoError(t, repo.Delete("app-1"))

	_, err := repo.Get("app-1")
	require.Error(t, err)
}
