// Package sqlstore persists identities in a single SQL table through gorm.
// Open targets SQLite; NewFromDB accepts any gorm dialect.
package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/samber/oops"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User is the persisted row. Email carries a unique index so concurrent
// inserts for one address cannot both succeed.
type User struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Email        string    `gorm:"type:varchar(254);uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (User) TableName() string {
	return "users"
}

// Store implements authcore.IdentityStore on a gorm handle.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database at dsn and migrates the users table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, oops.Code("IDENTITY_STORE_OPEN_FAILED").With("dsn", dsn).Wrap(err)
	}

	// SQLite allows one writer at a time.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("IDENTITY_STORE_OPEN_FAILED").With("dsn", dsn).Wrap(err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewFromDB(db)
}

// NewFromDB wraps an existing handle. The handle should be opened with
// TranslateError enabled so duplicate emails surface as gorm.ErrDuplicatedKey.
func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, oops.Code("IDENTITY_STORE_OPEN_FAILED").Errorf("sqlstore requires a database handle")
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, oops.Code("IDENTITY_STORE_MIGRATE_FAILED").Wrap(err)
	}
	return &Store{db: db}, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (authcore.IdentityRecord, error) {
	email = authcore.NormalizeEmail(email)

	var u User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authcore.IdentityRecord{}, authcore.ErrIdentityNotFound
	}
	if err != nil {
		return authcore.IdentityRecord{}, oops.
			Code("IDENTITY_STORE_UNAVAILABLE").
			With("email", email).
			Wrap(err)
	}

	return authcore.IdentityRecord{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}, nil
}

func (s *Store) Insert(ctx context.Context, rec authcore.IdentityRecord) error {
	u := User{
		ID:           rec.ID,
		Email:        authcore.NormalizeEmail(rec.Email),
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt.UTC(),
	}

	err := s.db.WithContext(ctx).Create(&u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return authcore.ErrEmailAlreadyRegistered
	}
	if err != nil {
		return oops.
			Code("IDENTITY_STORE_UNAVAILABLE").
			With("email", u.Email).
			Wrap(err)
	}
	return nil
}

// Count returns the number of stored identities.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error; err != nil {
		return 0, oops.Code("IDENTITY_STORE_UNAVAILABLE").Wrap(err)
	}
	return n, nil
}

// DB exposes the connection so other tables can share the database file.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
