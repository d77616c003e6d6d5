package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmpc-libros/apiserver/types"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// sortColumns whitelists the fields a caller may sort by. Keys accept both
// the API (camelCase) and column spellings; unknown fields fall back to the
// store-default ordering.
var sortColumns = map[string]string{
	"id":             "id",
	"title":          "title",
	"author":         "author",
	"editorial":      "editorial",
	"price":          "price",
	"gender":         "gender",
	"disponibilidad": "disponibilidad",
	"createdAt":      "created_at",
	"created_at":     "created_at",
	"updatedAt":      "updated_at",
	"updated_at":     "updated_at",
}

// ListFilter describes the optional criteria for a paginated book query.
// Zero-valued string fields and nil price bounds are omitted from the
// predicate entirely; the supplied criteria are AND-combined.
type ListFilter struct {
	// Search matches case-insensitively as a substring across title,
	// author, and editorial (OR-combined).
	Search string

	// Per-field filters. Title, Author, and Editorial match as
	// case-insensitive substrings; Gender matches exactly.
	Title     string
	Author    string
	Editorial string
	Gender    string

	// Inclusive price bounds. Either may be set independently.
	MinPrice *float64
	MaxPrice *float64

	// SortField and SortOrder control ordering. SortField must be one of
	// the whitelisted book columns; SortOrder is "ASC" or "DESC".
	SortField string
	SortOrder string

	Offset int
	Limit  int
}

// BookRepository handles persistence for books.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

const bookColumns = `id, title, author, editorial, price, disponibilidad, gender, image_url, created_at, updated_at, deleted_at`

func scanBook(row interface{ Scan(...any) error }) (types.Book, error) {
	var book types.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Editorial,
		&book.Price,
		&book.Disponibilidad,
		&book.Gender,
		&book.ImageURL,
		&book.CreatedAt,
		&book.UpdatedAt,
		&book.DeletedAt,
	)
	return book, err
}

// buildPredicate assembles the WHERE clause for a filter. Soft-deleted rows
// are always excluded here; callers that need them use ListAll.
func buildPredicate(filter ListFilter) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		pattern := arg("%" + filter.Search + "%")
		clauses = append(clauses, fmt.Sprintf(
			"(title ILIKE %[1]s OR author ILIKE %[1]s OR editorial ILIKE %[1]s)", pattern))
	}
	if filter.Title != "" {
		clauses = append(clauses, fmt.Sprintf("title ILIKE %s", arg("%"+filter.Title+"%")))
	}
	if filter.Author != "" {
		clauses = append(clauses, fmt.Sprintf("author ILIKE %s", arg("%"+filter.Author+"%")))
	}
	if filter.Editorial != "" {
		clauses = append(clauses, fmt.Sprintf("editorial ILIKE %s", arg("%"+filter.Editorial+"%")))
	}
	if filter.Gender != "" {
		clauses = append(clauses, fmt.Sprintf("gender = %s", arg(filter.Gender)))
	}
	if filter.MinPrice != nil {
		clauses = append(clauses, fmt.Sprintf("price >= %s", arg(*filter.MinPrice)))
	}
	if filter.MaxPrice != nil {
		clauses = append(clauses, fmt.Sprintf("price <= %s", arg(*filter.MaxPrice)))
	}

	return strings.Join(clauses, " AND "), args
}

func orderClause(filter ListFilter) string {
	column, ok := sortColumns[filter.SortField]
	if !ok {
		return "ORDER BY id"
	}
	direction := "ASC"
	if strings.EqualFold(filter.SortOrder, "DESC") {
		direction = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

// List returns the filtered page of non-deleted books plus the total number
// of rows matching the predicate.
func (r *BookRepository) List(ctx context.Context, filter ListFilter) ([]types.Book, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}

	predicate, args := buildPredicate(filter)

	countQuery := fmt.Sprintf(`SELECT COUNT(1) FROM books WHERE %s`, predicate)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM books WHERE %s %s OFFSET $%d LIMIT $%d`,
		bookColumns, predicate, orderClause(filter), len(args)+1, len(args)+2,
	)
	args = append(args, filter.Offset, filter.Limit)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	books := make([]types.Book, 0, filter.Limit)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return books, total, nil
}

// ListAll returns every book including soft-deleted ones, ordered by
// ascending id. Used by the export.
func (r *BookRepository) ListAll(ctx context.Context) ([]types.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books ORDER BY id`, bookColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []types.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// Get returns a non-deleted book by id.
func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1 AND deleted_at IS NULL`, bookColumns)
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

// GetByTitle returns the non-deleted book with the given title, if any.
// Used for the uniqueness check before create and title updates.
func (r *BookRepository) GetByTitle(ctx context.Context, title string) (types.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE title = $1 AND deleted_at IS NULL`, bookColumns)
	book, err := scanBook(r.db.QueryRowContext(ctx, query, title))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

// Create inserts a book. A duplicate title among non-deleted rows surfaces
// as ErrConflict via the partial unique index.
func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, author, editorial, price, disponibilidad, gender, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Editorial,
		book.Price,
		book.Disponibilidad,
		book.Gender,
		book.ImageURL,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, mapConflict(err)
	}
	return book, nil
}

// Update replaces the mutable fields of a non-deleted book.
func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			editorial = $3,
			price = $4,
			disponibilidad = $5,
			gender = $6,
			image_url = $7,
			updated_at = $8
		WHERE id = $9 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.Editorial,
		book.Price,
		book.Disponibilidad,
		book.Gender,
		book.ImageURL,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, mapConflict(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}
	return book, nil
}

// SoftDelete marks a book as deleted and unavailable. The row stays in
// place for audit and export reads.
func (r *BookRepository) SoftDelete(ctx context.Context, id int) error {
	const query = `
		UPDATE books
		SET deleted_at = $1,
			disponibilidad = FALSE,
			updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of books, soft-deleted rows included.
func (r *BookRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM books`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}
