package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const maxTodoTitle = 200

var (
	errInvalidTodo  = errors.New("todo title must be 1-200 characters")
	errTodoNotFound = errors.New("todo not found")
)

// todo is an owner-scoped task. Owner is the identity ID and is never
// serialized.
type todo struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string     `json:"title" gorm:"size:200;not null"`
	DDL       *time.Time `json:"ddl,omitempty" gorm:"index"`
	Done      bool       `json:"done" gorm:"not null;default:false"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
	Owner     string     `json:"-" gorm:"size:36;not null;index"`
}

func (todo) TableName() string {
	return "todos"
}

// todoPatch is a partial update. Nil fields are left unchanged.
type todoPatch struct {
	Title *string    `json:"title,omitempty"`
	DDL   *time.Time `json:"ddl,omitempty"`
	Done  *bool      `json:"done,omitempty"`
}

// apply validates p and merges it into t.
func (p todoPatch) apply(t *todo) error {
	if p.Title != nil {
		title, err := cleanTitle(*p.Title)
		if err != nil {
			return err
		}
		t.Title = title
	}
	if p.DDL != nil {
		ddl := p.DDL.UTC()
		t.DDL = &ddl
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
	return nil
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > maxTodoTitle {
		return "", errInvalidTodo
	}
	return title, nil
}

// todoRepository persists todos per owner. Another owner's todo is reported
// as errTodoNotFound, never as forbidden.
type todoRepository interface {
	Create(ctx context.Context, owner, title string, ddl *time.Time) (todo, error)
	// List returns at most limit of owner's todos in creation order after
	// skipping skip, plus the owner's total count.
	List(ctx context.Context, owner string, skip, limit int) ([]todo, int, error)
	Get(ctx context.Context, owner string, id int64) (todo, error)
	Update(ctx context.Context, owner string, id int64, p todoPatch) (todo, error)
	Delete(ctx context.Context, owner string, id int64) error
}

// memoryTodos keeps todos in process memory. It backs the memory and redis
// identity stores.
type memoryTodos struct {
	mu     sync.RWMutex
	nextID int64
	byUser map[string][]todo
	now    func() time.Time
}

func newMemoryTodos(now func() time.Time) *memoryTodos {
	if now == nil {
		now = time.Now
	}
	return &memoryTodos{byUser: make(map[string][]todo), now: now}
}

func (s *memoryTodos) Create(_ context.Context, owner, title string, ddl *time.Time) (todo, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := todo{
		ID:        s.nextID,
		Title:     title,
		CreatedAt: s.now().UTC(),
		Owner:     owner,
	}
	if ddl != nil {
		d := ddl.UTC()
		t.DDL = &d
	}
	s.byUser[owner] = append(s.byUser[owner], t)
	return t, nil
}

func (s *memoryTodos) List(_ context.Context, owner string, skip, limit int) ([]todo, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byUser[owner]
	total := len(all)
	if skip >= total {
		return []todo{}, total, nil
	}
	end := min(skip+limit, total)
	out := make([]todo, end-skip)
	copy(out, all[skip:end])
	return out, total, nil
}

func (s *memoryTodos) Get(_ context.Context, owner string, id int64) (todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(owner, id); i >= 0 {
		return s.byUser[owner][i], nil
	}
	return todo{}, errTodoNotFound
}

func (s *memoryTodos) Update(_ context.Context, owner string, id int64, p todoPatch) (todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(owner, id)
	if i < 0 {
		return todo{}, errTodoNotFound
	}
	t := s.byUser[owner][i]
	if err := p.apply(&t); err != nil {
		return todo{}, err
	}
	s.byUser[owner][i] = t
	return t, nil
}

func (s *memoryTodos) Delete(_ context.Context, owner string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(owner, id)
	if i < 0 {
		return errTodoNotFound
	}
	list := s.byUser[owner]
	s.byUser[owner] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (s *memoryTodos) indexLocked(owner string, id int64) int {
	for i, t := range s.byUser[owner] {
		if t.ID == id {
			return i
		}
	}
	return -1
}
