// Package store defines the persistence interface for the EasySave service.
//
// The [Store] interface covers the user directory (account records and
// credential resolution) and the block store (namespaced key-value records
// with prefix retrieval). Implementations back both onto an
// ACID-transactional relational database; see
// [github.com/easysave/easysave/pkg/store/postgres] for the GORM-based
// implementation used in production and in tests.
//
// Method conventions, shared by every implementation:
//   - Find/Verify methods return (nil, nil) for a missing record; the
//     caller decides whether absence is an error.
//   - Mutations run inside a single transaction with automatic rollback,
//     so a failed call never leaves a partially applied row set.
//   - Uniqueness is enforced by the database's unique constraints, not by
//     a preceding read, and constraint violations are translated into the
//     matching domain error from [github.com/easysave/easysave/pkg/errs].
//   - Any unclassified database error is wrapped as errs.StoreFailure with
//     the cause preserved.
package store

import (
	"context"

	"github.com/easysave/easysave/pkg/models"
)

// FindUserQuery selects users by any combination of its fields; empty
// fields are ignored and set fields are combined with AND. Callers that
// require exactly one criterion enforce that before reaching the store.
type FindUserQuery struct {
	Username  string
	UniqueID  string
	Email     string
	AccessKey string
}

// Empty reports whether no criterion is set.
func (q FindUserQuery) Empty() bool {
	return q.Username == "" && q.UniqueID == "" && q.Email == "" && q.AccessKey == ""
}

// UserPatch enumerates the only user fields that may change after
// creation. Username, uniqueid, and environment are deliberately absent:
// patching them is a compile-time impossibility rather than a runtime
// check. Nil fields are left untouched.
type UserPatch struct {
	Email        *string
	AccessKey    *string
	PasswordHash *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.AccessKey == nil && p.PasswordHash == nil
}

// Store is the persistence boundary for users and blocks.
type Store interface {
	// Migrate creates or updates the users and data tables, including
	// their unique constraints. Safe to run repeatedly.
	Migrate(ctx context.Context) error

	// Close releases the underlying database connection.
	Close() error

	// CreateUser inserts a new account record. Fails with
	// errs.NonuniqueUsername, errs.DuplicateEmail, or
	// errs.DuplicateAccessKey when the corresponding unique constraint is
	// violated.
	CreateUser(ctx context.Context, user *models.User) error

	// FindUser returns the first user matching the query, or (nil, nil)
	// when none matches.
	FindUser(ctx context.Context, query FindUserQuery) (*models.User, error)

	// UpdateUser applies the patch to the single row owned by username.
	// Fails with errs.NotFound when the user does not exist, and with the
	// matching duplicate error when a patched value collides with another
	// row's unique value.
	UpdateUser(ctx context.Context, username string, patch UserPatch) error

	// VerifyCredentials resolves a (username, accessKey) pair to the
	// stored user, or (nil, nil) when either does not match. A key that
	// is not even shaped like an access key short-circuits without a
	// database round trip.
	VerifyCredentials(ctx context.Context, username, accessKey string) (*models.User, error)

	// CreateBlock inserts a block under its full identifier. Fails with
	// errs.DuplicateIdentifier when the identifier already exists.
	CreateBlock(ctx context.Context, block *models.Block) error

	// GetBlocks returns every block whose identifier has prefix as a
	// segment-wise prefix, including the block stored at prefix itself.
	// Order is store-native and stable within one call only.
	GetBlocks(ctx context.Context, prefix string) ([]models.Block, error)

	// UpdateBlock replaces the value of the block stored at exactly id.
	// Fails with errs.NotFound when no such block exists; it never
	// upserts.
	UpdateBlock(ctx context.Context, id, value string) error

	// DeleteBlock removes the block stored at exactly id. Deleting a
	// missing block is a no-op, and children sharing id as a prefix are
	// left in place.
	DeleteBlock(ctx context.Context, id string) error
}
