package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBunRepo(t *testing.T) *BunUserRepository {
	t.Helper()
	repo, err := OpenBunUserRepository(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBunRepositoryInsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newTestBunRepo(t)

	ok, err := repo.Insert(ctx, "alice", "hash-a", "Alice Liddell", RoleUser)
	require.NoError(t, err)
	require.True(t, ok)

	u, err := repo.FindActiveByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "hash-a", u.PasswordHash)
	require.Equal(t, "Alice Liddell", u.FullName)
	require.Equal(t, RoleUser, u.Role)
	require.True(t, u.Active)
	require.False(t, u.CreatedAt.IsZero())

	missing, err := repo.FindActiveByUsername(ctx, "bob")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestBunRepositoryUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := newTestBunRepo(t)

	ok, err := repo.Insert(ctx, "alice", "h", "Alice", RoleUser)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Insert(ctx, "Alice", "h", "Alice again", RoleUser)
	require.NoError(t, err)
	require.False(t, ok)

	exists, err := repo.ExistsByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, "carol")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestBunRepositoryUnicodeUsernames(t *testing.T) {
	ctx := context.Background()
	repo := newTestBunRepo(t)

	ok, err := repo.Insert(ctx, "Иван", "h", "Иван Петров", RoleUser)
	require.NoError(t, err)
	require.True(t, ok)

	for _, name := range []string{"иван", "ИВАН", "иВаН"} {
		u, err := repo.FindActiveByUsername(ctx, name)
		require.NoError(t, err)
		require.NotNil(t, u, name)
		require.Equal(t, "иван", u.Username)

		exists, err := repo.ExistsByUsername(ctx, name)
		require.NoError(t, err)
		require.True(t, exists, name)
	}

	ok, err = repo.Insert(ctx, "ИВАН", "h", "Another Ivan", RoleUser)
	require.NoError(t, err)
	require.False(t, ok)

	// Lowercasing keeps ß, so these are two accounts.
	ok, err = repo.Insert(ctx, "STRAẞE", "h", "Eszett", RoleUser)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.Insert(ctx, "strasse", "h", "Double s", RoleUser)
	require.NoError(t, err)
	require.True(t, ok)

	u, err := repo.FindActiveByUsername(ctx, "straße")
	require.NoError(t, err)
	require.Equal(t, "Eszett", u.FullName)
}

func TestBunRepositoryInactiveIsHidden(t *testing.T) {
	ctx := context.Background()
	repo := newTestBunRepo(t)

	_, err := repo.Insert(ctx, "alice", "h", "Alice", RoleUser)
	require.NoError(t, err)
	u, err := repo.FindActiveByUsername(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, repo.SetActive(ctx, u.ID, false))
	hidden, err := repo.FindActiveByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, hidden)

	got, err := repo.Get(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestBunRepositoryAdminOperations(t *testing.T) {
	ctx := context.Background()
	repo := newTestBunRepo(t)

	has, err := repo.HasAdmin(ctx)
	require.NoError(t, err)
	require.False(t, has)

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := repo.Insert(ctx, name, "h", name, RoleUser)
		require.NoError(t, err)
	}
	items, total, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 2)
	require.Equal(t, "alice", items[0].Username)

	require.NoError(t, repo.SetRole(ctx, items[1].ID, RoleAdmin))
	has, err = repo.HasAdmin(ctx)
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, repo.UpdatePasswordHash(ctx, items[0].ID, "new-hash"))
	u, err := repo.Get(ctx, items[0].ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", u.PasswordHash)

	require.NoError(t, repo.Delete(ctx, items[0].ID))
	_, err = repo.Get(ctx, items[0].ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, repo.Delete(ctx, items[0].ID), ErrUserNotFound)
	require.ErrorIs(t, repo.SetRole(ctx, 9999, RoleUser), ErrUserNotFound)

	_, _, err = repo.List(ctx, 0, 10)
	require.Error(t, err)
}

func TestBunRepositoryAccessLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestBunRepo(t)

	_, err := repo.Insert(ctx, "alice", "h", "Alice", RoleUser)
	require.NoError(t, err)
	u, err := repo.FindActiveByUsername(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, repo.AppendAccessLog(ctx, &u.ID, ActionLogin, "signed in"))
	require.NoError(t, repo.AppendAccessLog(ctx, nil, ActionRegister, "new account"))

	events, err := repo.AccessLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, ActionRegister, events[0].Action)
	require.Nil(t, events[0].UserID)
	require.Equal(t, ActionLogin, events[1].Action)
	require.NotNil(t, events[1].UserID)
	require.Equal(t, u.ID, *events[1].UserID)

	// Deleting the user keeps the log row with a NULL user id.
	require.NoError(t, repo.Delete(ctx, u.ID))
	events, err = repo.AccessLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Nil(t, events[1].UserID)
}
