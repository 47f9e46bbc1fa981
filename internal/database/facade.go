package database

import (
	"context"
	"errors"
	"reflect"

	"gorm.io/gorm"

	appErrors "github.com/noticeboardhq/noticeboard/pkg/errors"
)

// ExecResult reports the outcome of a mutation.
type ExecResult struct {
	RowsAffected int64
	InsertID     int64
}

// Facade is the single entry point for parameterized SQL against the primary
// store. Services that need raw queries go through it instead of holding a
// connection themselves; all failures come back wrapped as ErrQuery so raw
// driver text never leaks into public responses.
type Facade struct {
	db *gorm.DB
}

// NewFacade wraps an open gorm handle.
func NewFacade(db *gorm.DB) (*Facade, error) {
	if db == nil {
		return nil, errors.New("database: facade requires an open handle")
	}
	return &Facade{db: db}, nil
}

// DB exposes the underlying gorm handle for model-based access.
func (f *Facade) DB() *gorm.DB {
	return f.db
}

// Select runs a parameterized read and scans all rows into dest, which must be
// a pointer to a slice. When no rows match, dest holds an empty slice, never nil.
func (f *Facade) Select(ctx context.Context, dest any, query string, args ...any) error {
	if err := f.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error; err != nil {
		return appErrors.ErrQuery.WithInternal(err)
	}
	ensureEmptySlice(dest)
	return nil
}

// SelectOne runs a parameterized read and scans the first row into dest.
// It returns false when no row matched; a missing row is not an error.
func (f *Facade) SelectOne(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	tx := f.db.WithContext(ctx).Raw(query, args...).Scan(dest)
	if tx.Error != nil {
		return false, appErrors.ErrQuery.WithInternal(tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// Execute runs a parameterized mutation. InsertID is driver-dependent and is
// zero on postgres; callers that need generated keys should create through
// gorm models instead.
func (f *Facade) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	res, err := f.connPool().ExecContext(ctx, query, args...)
	if err != nil {
		// Postgres rejects `?` placeholders at the driver level; gorm Exec
		// rewrites them, at the cost of no InsertID. Only that dialect falls
		// back: anywhere else the statement may already have been applied, so
		// it must not run a second time.
		if f.db.Dialector.Name() != "postgres" {
			return ExecResult{}, appErrors.ErrQuery.WithInternal(err)
		}
		tx := f.db.WithContext(ctx).Exec(query, args...)
		if tx.Error != nil {
			return ExecResult{}, appErrors.ErrQuery.WithInternal(tx.Error)
		}
		return ExecResult{RowsAffected: tx.RowsAffected}, nil
	}

	out := ExecResult{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.InsertID = id
	}
	return out, nil
}

// Transaction runs fn inside a database transaction. The transaction is
// rolled back when fn returns an error or panics, committed otherwise.
func (f *Facade) Transaction(ctx context.Context, fn func(tx *Facade) error) error {
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Facade{db: tx})
	})
	if err == nil {
		return nil
	}
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.ErrQuery.WithInternal(err)
}

// Begin opens an explicit transaction scope. The caller owns Commit/Rollback.
func (f *Facade) Begin(ctx context.Context) (*Facade, error) {
	tx := f.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, appErrors.ErrQuery.WithInternal(tx.Error)
	}
	return &Facade{db: tx}, nil
}

// Commit finishes an explicit transaction scope.
func (f *Facade) Commit() error {
	if err := f.db.Commit().Error; err != nil {
		return appErrors.ErrQuery.WithInternal(err)
	}
	return nil
}

// Rollback abandons an explicit transaction scope.
func (f *Facade) Rollback() error {
	if err := f.db.Rollback().Error; err != nil {
		return appErrors.ErrQuery.WithInternal(err)
	}
	return nil
}

func (f *Facade) connPool() gorm.ConnPool {
	if f.db.Statement != nil && f.db.Statement.ConnPool != nil {
		return f.db.Statement.ConnPool
	}
	return f.db.ConnPool
}

// ensureEmptySlice replaces a nil slice behind dest with a zero-length one so
// list responses encode as [] rather than null.
func ensureEmptySlice(dest any) {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	elem := v.Elem()
	if elem.Kind() == reflect.Slice && elem.IsNil() {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
}
