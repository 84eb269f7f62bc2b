package postgres_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/easysave/easysave/pkg/credentials"
	"github.com/easysave/easysave/pkg/errs"
	"github.com/easysave/easysave/pkg/identifier"
	"github.com/easysave/easysave/pkg/models"
	"github.com/easysave/easysave/pkg/store"
	"github.com/easysave/easysave/pkg/store/postgres"
)

func newTestStore(t *testing.T) *postgres.PostgresStore {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	s, err := postgres.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(t *testing.T, username, email string, env identifier.Environment) *models.User {
	t.Helper()
	hash, err := credentials.HashPassword("pw1")
	require.NoError(t, err)
	key, err := credentials.GenerateAccessKey()
	require.NoError(t, err)
	return &models.User{
		Username:     username,
		UniqueID:     identifier.Root(env, username),
		Email:        email,
		AccessKey:    key,
		PasswordHash: hash,
	}
}

func countUsers(t *testing.T, s *postgres.PostgresStore, username string) int {
	t.Helper()
	user, err := s.FindUser(context.Background(), store.FindUserQuery{Username: username})
	require.NoError(t, err)
	if user == nil {
		return 0
	}
	return 1
}

func TestCreateUserUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := newUser(t, "alice", "a@x.com", identifier.EnvProd)
	require.NoError(t, s.CreateUser(ctx, alice))

	t.Run("DuplicateUsername", func(t *testing.T) {
		dup := newUser(t, "alice", "other@x.com", identifier.EnvProd)
		err := s.CreateUser(ctx, dup)
		require.Error(t, err)
		assert.Equal(t, errs.NonuniqueUsername, errs.KindOf(err))

		// Exactly one row remains and the failed attempt consumed no
		// uniqueness state: its email is still free for another account.
		assert.Equal(t, 1, countUsers(t, s, "alice"))
		bob := newUser(t, "bob", "other@x.com", identifier.EnvProd)
		require.NoError(t, s.CreateUser(ctx, bob))
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := newUser(t, "carol", "a@x.com", identifier.EnvProd)
		err := s.CreateUser(ctx, dup)
		require.Error(t, err)
		assert.Equal(t, errs.DuplicateEmail, errs.KindOf(err))
		assert.Equal(t, 0, countUsers(t, s, "carol"))
	})

	t.Run("DuplicateAccessKey", func(t *testing.T) {
		dup := newUser(t, "dave", "d@x.com", identifier.EnvProd)
		dup.AccessKey = alice.AccessKey
		err := s.CreateUser(ctx, dup)
		require.Error(t, err)
		assert.Equal(t, errs.DuplicateAccessKey, errs.KindOf(err))
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		bad := newUser(t, "erin", "not-an-email", identifier.EnvProd)
		err := s.CreateUser(ctx, bad)
		require.Error(t, err)
		assert.Equal(t, errs.InvalidEmail, errs.KindOf(err))
		assert.Equal(t, 0, countUsers(t, s, "erin"))
	})
}

func TestFindUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := newUser(t, "alice", "a@x.com", identifier.EnvTest)
	require.NoError(t, s.CreateUser(ctx, alice))

	rules := []struct {
		Name  string
		Query store.FindUserQuery
	}{
		{Name: "ByUsername", Query: store.FindUserQuery{Username: "alice"}},
		{Name: "ByUniqueID", Query: store.FindUserQuery{UniqueID: "test.alice"}},
		{Name: "ByEmail", Query: store.FindUserQuery{Email: "a@x.com"}},
		{Name: "ByAccessKey", Query: store.FindUserQuery{AccessKey: alice.AccessKey}},
	}
	for _, rule := range rules {
		t.Run(rule.Name, func(t *testing.T) {
			user, err := s.FindUser(ctx, rule.Query)
			require.NoError(t, err)
			require.NotNil(t, user)
			assert.Equal(t, "alice", user.Username)
			assert.Equal(t, "test.alice", user.UniqueID)
		})
	}

	t.Run("Missing", func(t *testing.T) {
		user, err := s.FindUser(ctx, store.FindUserQuery{Username: "nobody"})
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		_, err := s.FindUser(ctx, store.FindUserQuery{})
		require.Error(t, err)
	})
}

func TestVerifyCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := newUser(t, "alice", "a@x.com", identifier.EnvProd)
	require.NoError(t, s.CreateUser(ctx, alice))

	user, err := s.VerifyCredentials(ctx, "alice", alice.AccessKey)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "prod.alice", user.UniqueID)

	// Any single-character mutation of the key must fail verification.
	for i := 0; i < len(alice.AccessKey); i += 17 {
		mutated := []byte(alice.AccessKey)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		user, err := s.VerifyCredentials(ctx, "alice", string(mutated))
		require.NoError(t, err)
		assert.Nil(t, user, "mutation at index %d must not verify", i)
	}

	user, err = s.VerifyCredentials(ctx, "bob", alice.AccessKey)
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = s.VerifyCredentials(ctx, "alice", "short")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpdateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := newUser(t, "alice", "a@x.com", identifier.EnvProd)
	bob := newUser(t, "bob", "b@x.com", identifier.EnvProd)
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	t.Run("PatchEmail", func(t *testing.T) {
		email := "new@x.com"
		require.NoError(t, s.UpdateUser(ctx, "alice", store.UserPatch{Email: &email}))
		user, err := s.FindUser(ctx, store.FindUserQuery{Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "new@x.com", user.Email)
		assert.Equal(t, alice.AccessKey, user.AccessKey)
	})

	t.Run("PatchAccessKey", func(t *testing.T) {
		key, err := credentials.GenerateAccessKey()
		require.NoError(t, err)
		require.NoError(t, s.UpdateUser(ctx, "alice", store.UserPatch{AccessKey: &key}))
		user, err := s.VerifyCredentials(ctx, "alice", key)
		require.NoError(t, err)
		require.NotNil(t, user)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		email := "nope"
		err := s.UpdateUser(ctx, "alice", store.UserPatch{Email: &email})
		assert.Equal(t, errs.InvalidEmail, errs.KindOf(err))
	})

	t.Run("MalformedAccessKey", func(t *testing.T) {
		key := "tooshort"
		err := s.UpdateUser(ctx, "alice", store.UserPatch{AccessKey: &key})
		assert.Equal(t, errs.InvalidUpdateField, errs.KindOf(err))
	})

	t.Run("EmptyPatch", func(t *testing.T) {
		err := s.UpdateUser(ctx, "alice", store.UserPatch{})
		assert.Equal(t, errs.InvalidUpdateField, errs.KindOf(err))
	})

	t.Run("MissingUser", func(t *testing.T) {
		email := "x@x.com"
		err := s.UpdateUser(ctx, "nobody", store.UserPatch{Email: &email})
		assert.Equal(t, errs.NotFound, errs.KindOf(err))
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		email := "b@x.com"
		err := s.UpdateUser(ctx, "alice", store.UserPatch{Email: &email})
		assert.Equal(t, errs.DuplicateEmail, errs.KindOf(err))
	})
}

func TestBlockLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := identifier.Root(identifier.EnvProd, "alice")

	create := func(suffix, value string) {
		t.Helper()
		id, err := identifier.ExtendPath(root, suffix)
		require.NoError(t, err)
		require.NoError(t, s.CreateBlock(ctx, &models.Block{Identifier: id, Value: value}))
	}

	create("doc", "parent")
	create("doc.sub", "child")
	create("doc2", "sibling")
	create("notes", "loose")

	t.Run("DuplicateIdentifier", func(t *testing.T) {
		err := s.CreateBlock(ctx, &models.Block{Identifier: root + ".doc", Value: "again"})
		require.Error(t, err)
		assert.Equal(t, errs.DuplicateIdentifier, errs.KindOf(err))
	})

	t.Run("PrefixIsSegmentWise", func(t *testing.T) {
		blocks, err := s.GetBlocks(ctx, root+".doc")
		require.NoError(t, err)
		ids := identifiers(blocks)
		assert.ElementsMatch(t, []string{root + ".doc", root + ".doc.sub"}, ids)
		assert.NotContains(t, ids, root+".doc2")
	})

	t.Run("RootPrefixReturnsEverything", func(t *testing.T) {
		blocks, err := s.GetBlocks(ctx, root)
		require.NoError(t, err)
		assert.Len(t, blocks, 4)
	})

	t.Run("UpdateExisting", func(t *testing.T) {
		require.NoError(t, s.UpdateBlock(ctx, root+".doc", "rewritten"))
		blocks, err := s.GetBlocks(ctx, root+".doc.sub")
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, "child", blocks[0].Value)

		blocks, err = s.GetBlocks(ctx, root+".doc")
		require.NoError(t, err)
		for _, b := range blocks {
			if b.Identifier == root+".doc" {
				assert.Equal(t, "rewritten", b.Value)
			}
		}
	})

	t.Run("UpdateMissingIsNotFound", func(t *testing.T) {
		before, err := s.GetBlocks(ctx, root)
		require.NoError(t, err)

		err = s.UpdateBlock(ctx, root+".ghost", "boo")
		require.Error(t, err)
		assert.Equal(t, errs.NotFound, errs.KindOf(err))

		after, err := s.GetBlocks(ctx, root)
		require.NoError(t, err)
		assert.ElementsMatch(t, before, after)
	})

	t.Run("DeleteDoesNotCascade", func(t *testing.T) {
		require.NoError(t, s.DeleteBlock(ctx, root+".doc"))
		blocks, err := s.GetBlocks(ctx, root+".doc")
		require.NoError(t, err)
		assert.Equal(t, []string{root + ".doc.sub"}, identifiers(blocks))
	})

	t.Run("DeleteMissingIsIdempotent", func(t *testing.T) {
		require.NoError(t, s.DeleteBlock(ctx, root+".doc"))
		require.NoError(t, s.DeleteBlock(ctx, root+".never.existed"))
	})
}

func TestGetBlocksNamespaceIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBlock(ctx, &models.Block{Identifier: "prod.alice.docs.note1", Value: "mine"}))
	require.NoError(t, s.CreateBlock(ctx, &models.Block{Identifier: "prod.alicia.docs.note1", Value: "hers"}))
	require.NoError(t, s.CreateBlock(ctx, &models.Block{Identifier: "test.alice.docs.note1", Value: "sandbox"}))

	blocks, err := s.GetBlocks(ctx, "prod.alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"prod.alice.docs.note1"}, identifiers(blocks))
}

func identifiers(blocks []models.Block) []string {
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.Identifier)
	}
	return ids
}
