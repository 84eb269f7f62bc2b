// Package postgres provides the relational implementation of the
// [github.com/easysave/easysave/pkg/store.Store] interface using GORM.
//
// PostgreSQL is the production backend. The implementation itself is
// dialector-generic: [Open] accepts any GORM dialector with error
// translation support, which the package tests use to run the full store
// against an in-memory SQLite database.
//
// # Uniqueness enforcement
//
// The users table carries four unique constraints (username, uniqueid,
// email, accesskey) and the data table one (identifier primary key). The
// database constraint is the single source of truth: the store never does
// a check-then-insert, because that cannot be made atomic under concurrent
// creators without an explicit lock. Instead the insert is attempted and a
// translated [gorm.ErrDuplicatedKey] is mapped to the matching domain
// error. When several constraints could have fired, a follow-up read on a
// clean session classifies which value collided; the classification is
// diagnostic only and the constraint remains authoritative.
//
// # Transactions
//
// Every mutation runs inside [gorm.DB.Transaction], which rolls back
// automatically when the enclosed function returns an error. Reads use
// single statements and need no explicit transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/easysave/easysave/pkg/credentials"
	"github.com/easysave/easysave/pkg/errs"
	"github.com/easysave/easysave/pkg/identifier"
	"github.com/easysave/easysave/pkg/models"
	"github.com/easysave/easysave/pkg/store"
)

// PostgresStore implements store.Store on a relational database through GORM.
type PostgresStore struct {
	db *gorm.DB
}

var _ store.Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL with the given DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	return Open(postgres.Open(dsn))
}

// Open builds a store on any GORM dialector. Error translation is enabled
// so unique constraint violations surface as gorm.ErrDuplicatedKey
// regardless of the engine.
func Open(dialector gorm.Dialector) (*PostgresStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the users and data tables with their unique constraints.
// Safe to run repeatedly; it only adds missing schema elements.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Block{})
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser inserts a new account row. Email format is validated before
// any statement is issued; uniqueness violations are classified into
// NonuniqueUsername, DuplicateEmail, or DuplicateAccessKey.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if !models.ValidEmail(user.Email) {
		return errs.Newf(errs.InvalidEmail, "invalid email format: %q", user.Email)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.classifyUserConflict(ctx, user, err)
	}
	return errs.Wrap(errs.StoreFailure, "failed to create user", err)
}

// classifyUserConflict determines which unique value collided after a
// failed insert or update. The probe runs on a clean session; when it is
// inconclusive (e.g. the colliding row was removed in between) the
// username error is reported, matching the most common cause.
func (s *PostgresStore) classifyUserConflict(ctx context.Context, user *models.User, cause error) error {
	var count int64
	if user.Email != "" {
		s.db.WithContext(ctx).Model(&models.User{}).
			Where("email = ? AND username <> ?", user.Email, user.Username).
			Count(&count)
		if count > 0 {
			return errs.Wrap(errs.DuplicateEmail, fmt.Sprintf("email %q already registered", user.Email), cause)
		}
	}
	if user.AccessKey != "" {
		s.db.WithContext(ctx).Model(&models.User{}).
			Where("accesskey = ? AND username <> ?", user.AccessKey, user.Username).
			Count(&count)
		if count > 0 {
			return errs.Wrap(errs.DuplicateAccessKey, "access key already in use", cause)
		}
	}
	return errs.Wrap(errs.NonuniqueUsername, fmt.Sprintf("user %q already exists", user.Username), cause)
}

// FindUser returns the first user matching the query, or nil when none does.
func (s *PostgresStore) FindUser(ctx context.Context, query store.FindUserQuery) (*models.User, error) {
	if query.Empty() {
		return nil, errs.New(errs.StoreFailure, "find query must set at least one criterion")
	}

	q := s.db.WithContext(ctx)
	if query.Username != "" {
		q = q.Where("username = ?", query.Username)
	}
	if query.UniqueID != "" {
		q = q.Where("uniqueid = ?", query.UniqueID)
	}
	if query.Email != "" {
		q = q.Where("email = ?", query.Email)
	}
	if query.AccessKey != "" {
		q = q.Where("accesskey = ?", query.AccessKey)
	}

	var user models.User
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.StoreFailure, "failed to query users", err)
	}
	return &user, nil
}

// UpdateUser applies the patch to the row owned by username. The patch is
// a closed struct, so disallowed fields cannot reach this method; a patch
// email is format-validated before any statement is issued.
func (s *PostgresStore) UpdateUser(ctx context.Context, username string, patch store.UserPatch) error {
	if patch.Empty() {
		return errs.New(errs.InvalidUpdateField, "update patch must set at least one field")
	}
	if patch.Email != nil && !models.ValidEmail(*patch.Email) {
		return errs.Newf(errs.InvalidEmail, "invalid email format: %q", *patch.Email)
	}
	if patch.AccessKey != nil && !credentials.ValidAccessKey(*patch.AccessKey) {
		return errs.New(errs.InvalidUpdateField, "access key must be 128 hexadecimal characters")
	}

	values := map[string]any{}
	if patch.Email != nil {
		values["email"] = *patch.Email
	}
	if patch.AccessKey != nil {
		values["accesskey"] = *patch.AccessKey
	}
	if patch.PasswordHash != nil {
		values["password"] = *patch.PasswordHash
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("username = ?", username).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errs.Newf(errs.NotFound, "no user %q", username)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		probe := models.User{Username: username}
		if patch.Email != nil {
			probe.Email = *patch.Email
		}
		if patch.AccessKey != nil {
			probe.AccessKey = *patch.AccessKey
		}
		return s.classifyUserConflict(ctx, &probe, err)
	}
	return errs.Wrap(errs.StoreFailure, "failed to update user", err)
}

// VerifyCredentials resolves a (username, accessKey) pair. A key without
// the access key shape never reaches the database.
func (s *PostgresStore) VerifyCredentials(ctx context.Context, username, accessKey string) (*models.User, error) {
	if username == "" || !credentials.ValidAccessKey(accessKey) {
		return nil, nil
	}
	return s.FindUser(ctx, store.FindUserQuery{Username: username, AccessKey: accessKey})
}

// CreateBlock inserts a block at its full identifier.
func (s *PostgresStore) CreateBlock(ctx context.Context, block *models.Block) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(block).Error
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Wrap(errs.DuplicateIdentifier,
			fmt.Sprintf("block %q already exists", block.Identifier), err)
	}
	return errs.Wrap(errs.StoreFailure, "failed to create block", err)
}

// GetBlocks returns every block whose identifier has prefix as a
// segment-wise prefix, including the block stored at prefix itself.
//
// The SQL LIKE narrows the candidate set; the segment-wise test decides.
// LIKE alone would be wrong twice over: "a.doc%" matches the sibling
// "a.doc2", and LIKE metacharacters inside stored segments would act as
// wildcards.
func (s *PostgresStore) GetBlocks(ctx context.Context, prefix string) ([]models.Block, error) {
	pattern := escapeLike(prefix) + identifier.Separator + "%"

	var rows []models.Block
	err := s.db.WithContext(ctx).
		Where("identifier = ? OR identifier LIKE ? ESCAPE '\\'", prefix, pattern).
		Find(&rows).Error
	if err != nil {
		return nil, errs.Wrap(errs.StoreFailure, "failed to query blocks", err)
	}

	blocks := make([]models.Block, 0, len(rows))
	for _, row := range rows {
		if identifier.IsPrefixOf(prefix, row.Identifier) {
			blocks = append(blocks, row)
		}
	}
	return blocks, nil
}

// UpdateBlock replaces the value stored at exactly id. There is no upsert:
// a missing identifier is NotFound and the table is left unchanged.
func (s *PostgresStore) UpdateBlock(ctx context.Context, id, value string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Block{}).Where("identifier = ?", id).Update("value", value)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errs.Newf(errs.NotFound, "no block %q", id)
		}
		return nil
	})
	if err == nil || errs.KindOf(err) != "" {
		return err
	}
	return errs.Wrap(errs.StoreFailure, "failed to update block", err)
}

// DeleteBlock removes the block stored at exactly id. Deleting a missing
// block succeeds, and children sharing id as a prefix are not cascaded.
func (s *PostgresStore) DeleteBlock(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("identifier = ?", id).Delete(&models.Block{}).Error
	})
	if err != nil {
		return errs.Wrap(errs.StoreFailure, "failed to delete block", err)
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
