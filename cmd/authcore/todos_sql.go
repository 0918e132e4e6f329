package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"github.com/MrEthical07/authcore"
)

// sqlTodos stores todos in the same database as the sqlite identity store,
// so both survive a restart.
type sqlTodos struct {
	db  *gorm.DB
	now func() time.Time
}

func newSQLTodos(db *gorm.DB, now func() time.Time) (*sqlTodos, error) {
	if err := db.AutoMigrate(&todo{}); err != nil {
		return nil, oops.Code("TODO_STORE_MIGRATE_FAILED").Wrap(err)
	}
	if now == nil {
		now = time.Now
	}
	return &sqlTodos{db: db, now: now}, nil
}

func (s *sqlTodos) Create(ctx context.Context, owner, title string, ddl *time.Time) (todo, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return todo{}, err
	}

	t := todo{Title: title, CreatedAt: s.now().UTC(), Owner: owner}
	if ddl != nil {
		d := ddl.UTC()
		t.DDL = &d
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return todo{}, todoStoreError(err, owner)
	}
	return t, nil
}

func (s *sqlTodos) List(ctx context.Context, owner string, skip, limit int) ([]todo, int, error) {
	q := s.db.WithContext(ctx).Model(&todo{}).Where("owner = ?", owner)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, todoStoreError(err, owner)
	}

	items := []todo{}
	if err := q.Order("id").Offset(skip).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, todoStoreError(err, owner)
	}
	return items, int(total), nil
}

func (s *sqlTodos) Get(ctx context.Context, owner string, id int64) (todo, error) {
	return s.get(s.db.WithContext(ctx), owner, id)
}

func (s *sqlTodos) Update(ctx context.Context, owner string, id int64, p todoPatch) (todo, error) {
	var out todo
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.get(tx, owner, id)
		if err != nil {
			return err
		}
		if err := p.apply(&t); err != nil {
			return err
		}
		if err := tx.Save(&t).Error; err != nil {
			return todoStoreError(err, owner)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *sqlTodos) Delete(ctx context.Context, owner string, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).Delete(&todo{})
	if res.Error != nil {
		return todoStoreError(res.Error, owner)
	}
	if res.RowsAffected == 0 {
		return errTodoNotFound
	}
	return nil
}

func (s *sqlTodos) get(db *gorm.DB, owner string, id int64) (todo, error) {
	var t todo
	err := db.Where("id = ? AND owner = ?", id, owner).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return todo{}, errTodoNotFound
	}
	if err != nil {
		return todo{}, todoStoreError(err, owner)
	}
	return t, nil
}

// todoStoreError marks a backend failure so handlers answer 503.
func todoStoreError(err error, owner string) error {
	return oops.Code("TODO_STORE_UNAVAILABLE").
		With("owner", owner).
		Wrap(fmt.Errorf("%w: %v", authcore.ErrStoreUnavailable, err))
}
