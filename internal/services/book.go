package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/cmpc-libros/apiserver/types"
)

// ErrNoImage is returned when an image operation targets a book that has
// no cover image attached.
var ErrNoImage = errors.New("book has no image")

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, filter store.ListFilter) ([]types.Book, int, error)
	ListAll(ctx context.Context) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	GetByTitle(ctx context.Context, title string) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	SoftDelete(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)
}

// ImageUpload carries the raw bytes of an uploaded cover image.
type ImageUpload struct {
	Data     []byte
	MimeType string
	Filename string
}

// BookInput is the full field set for creating a book.
type BookInput struct {
	Title          string
	Author         string
	Editorial      string
	Price          float64
	Disponibilidad bool
	Gender         string
}

// BookPatch is a partial field set for updating a book. Nil fields keep
// their current value. ClearImage requests removal of the current cover
// without supplying a replacement.
type BookPatch struct {
	Title          *string
	Author         *string
	Editorial      *string
	Price          *float64
	Disponibilidad *bool
	Gender         *string
	ClearImage     bool
}

// ListParams describes a paginated book listing request.
type ListParams struct {
	Page      int
	Limit     int
	Search    string
	Title     string
	Author    string
	Editorial string
	Gender    string
	MinPrice  *float64
	MaxPrice  *float64
	SortField string
	SortOrder string
}

// PageMeta describes the window a listing response covers.
type PageMeta struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	Limit    int `json:"limit"`
	LastPage int `json:"last_page"`
}

// BookPage is one page of books plus its pagination metadata.
type BookPage struct {
	Data []types.Book `json:"data"`
	Meta PageMeta     `json:"meta"`
}

// BookService orchestrates the book lifecycle against the repository and
// the image asset manager, enforcing the title uniqueness invariant.
type BookService struct {
	repo   BookRepository
	images *ImageService
}

func NewBookService(repo BookRepository, images *ImageService) *BookService {
	return &BookService{repo: repo, images: images}
}

// List returns the filtered, sorted page of non-deleted books.
func (s *BookService) List(ctx context.Context, params ListParams) (BookPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 10
	}

	books, total, err := s.repo.List(ctx, store.ListFilter{
		Search:    params.Search,
		Title:     params.Title,
		Author:    params.Author,
		Editorial: params.Editorial,
		Gender:    params.Gender,
		MinPrice:  params.MinPrice,
		MaxPrice:  params.MaxPrice,
		SortField: params.SortField,
		SortOrder: params.SortOrder,
		Offset:    (params.Page - 1) * params.Limit,
		Limit:     params.Limit,
	})
	if err != nil {
		return BookPage{}, fmt.Errorf("list books: %w", err)
	}

	return BookPage{
		Data: books,
		Meta: PageMeta{
			Total:    total,
			Page:     params.Page,
			Limit:    params.Limit,
			LastPage: int(math.Ceil(float64(total) / float64(params.Limit))),
		},
	}, nil
}

// Get returns a non-deleted book by id.
func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a new book after checking the title is free among
// non-deleted books. The uniqueness check runs before the upload is
// consumed; if the insert still fails after the image was stored, the
// asset is cleaned up so no orphan is left behind.
func (s *BookService) Create(ctx context.Context, input BookInput, upload *ImageUpload) (types.Book, error) {
	if _, err := s.repo.GetByTitle(ctx, input.Title); err == nil {
		return types.Book{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Book{}, fmt.Errorf("check title: %w", err)
	}

	var imageURL *string
	if upload != nil {
		ref, err := s.images.Save(ctx, upload.Data, upload.MimeType, upload.Filename)
		if err != nil {
			return types.Book{}, err
		}
		imageURL = &ref
	}

	book, err := s.repo.Create(ctx, types.Book{
		Title:          input.Title,
		Author:         input.Author,
		Editorial:      input.Editorial,
		Price:          input.Price,
		Disponibilidad: input.Disponibilidad,
		Gender:         input.Gender,
		ImageURL:       imageURL,
	})
	if err != nil {
		s.images.Cleanup(ctx, imageURL)
		if errors.Is(err, store.ErrConflict) {
			return types.Book{}, err
		}
		return types.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// Update applies a partial update. A new upload replaces the current cover
// (deleting the old asset); ClearImage without an upload removes it. A
// changed title is re-checked for uniqueness against other live books.
func (s *BookService) Update(ctx context.Context, id int, patch BookPatch, upload *ImageUpload) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	if patch.Title != nil && *patch.Title != book.Title {
		if _, err := s.repo.GetByTitle(ctx, *patch.Title); err == nil {
			return types.Book{}, store.ErrConflict
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.Book{}, fmt.Errorf("check title: %w", err)
		}
		book.Title = *patch.Title
	}
	if patch.Author != nil {
		book.Author = *patch.Author
	}
	if patch.Editorial != nil {
		book.Editorial = *patch.Editorial
	}
	if patch.Price != nil {
		book.Price = *patch.Price
	}
	if patch.Disponibilidad != nil {
		book.Disponibilidad = *patch.Disponibilidad
	}
	if patch.Gender != nil {
		book.Gender = *patch.Gender
	}

	var replaced *string
	switch {
	case upload != nil:
		ref, err := s.images.Save(ctx, upload.Data, upload.MimeType, upload.Filename)
		if err != nil {
			return types.Book{}, err
		}
		replaced = book.ImageURL
		book.ImageURL = &ref
	case patch.ClearImage:
		replaced = book.ImageURL
		book.ImageURL = nil
	}

	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		if upload != nil {
			s.images.Cleanup(ctx, book.ImageURL)
		}
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
			return types.Book{}, err
		}
		return types.Book{}, fmt.Errorf("update book: %w", err)
	}

	// The old asset goes only once the row no longer references it.
	s.images.Cleanup(ctx, replaced)
	return updated, nil
}

// Delete soft-deletes a book and cleans up its cover asset. The row keeps
// its deleted_at timestamp and stays reachable for the export.
func (s *BookService) Delete(ctx context.Context, id int) error {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	s.images.Cleanup(ctx, book.ImageURL)

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// OpenImage returns a reader for a stored cover image by filename.
func (s *BookService) OpenImage(ctx context.Context, filename string) (io.ReadCloser, error) {
	return s.images.Open(ctx, filename)
}

// RemoveImage deletes a book's cover on explicit request and clears the
// reference. Unlike the replace flow, a missing underlying asset is
// reported to the caller.
func (s *BookService) RemoveImage(ctx context.Context, id int) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}
	if book.ImageURL == nil {
		return types.Book{}, ErrNoImage
	}

	if err := s.images.Remove(ctx, *book.ImageURL); err != nil {
		return types.Book{}, err
	}

	book.ImageURL = nil
	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, fmt.Errorf("clear image reference: %w", err)
	}
	return updated, nil
}
