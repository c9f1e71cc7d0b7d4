package option

import (
	"strconv"
	"strings"
	"time"

	"github.com/anoteng/regnskap/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a query before it runs.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

func WithOrder(order string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if strings.TrimSpace(order) == "" {
			return db
		}
		return db.Order(order)
	})
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// ApplyPagination seeks past the cursor in page.PageToken and fetches one
// extra row so callers can tell whether another page exists. Rows must be
// ordered by created_at desc, id desc.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if cursor := decode(page.PageToken); cursor != nil {
			id, idErr := strconv.ParseInt(cursor.ID, 10, 64)
			createdAt, tsErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
			if idErr == nil && tsErr == nil {
				db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
			}
		}
		return db.Limit(PageLimit(page) + 1)
	})
}

// ApplyDatePagination is ApplyPagination for rows ordered by a DATE column
// desc, id desc.
func ApplyDatePagination(page pagination.Pagination, column string) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if cursor := decode(page.PageToken); cursor != nil {
			id, idErr := strconv.ParseInt(cursor.ID, 10, 64)
			date, dateErr := time.Parse(time.DateOnly, cursor.Date)
			if idErr == nil && dateErr == nil {
				db = db.Where("("+column+" < ?) OR ("+column+" = ? AND id < ?)", date, date, id)
			}
		}
		return db.Limit(PageLimit(page) + 1)
	})
}

// PageLimit is the page size after defaults and clamping.
func PageLimit(page pagination.Pagination) int {
	size := page.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if size > pagination.MaxPageSize {
		size = pagination.MaxPageSize
	}
	return size
}

func decode(token string) *pagination.Cursor {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil
	}
	return cursor
}
