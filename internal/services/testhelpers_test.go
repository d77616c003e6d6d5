package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/cmpc-libros/apiserver/internal/storage"
	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/cmpc-libros/apiserver/types"
	"go.uber.org/zap"
)

// fakeBookRepo is an in-memory BookRepository for service tests.
type fakeBookRepo struct {
	books  map[int]types.Book
	nextID int

	failCreate error
	failUpdate error
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: map[int]types.Book{}, nextID: 1}
}

func (f *fakeBookRepo) List(ctx context.Context, filter store.ListFilter) ([]types.Book, int, error) {
	var live []types.Book
	for id := 1; id < f.nextID; id++ {
		book, ok := f.books[id]
		if !ok || book.DeletedAt != nil {
			continue
		}
		if filter.Gender != "" && book.Gender != filter.Gender {
			continue
		}
		live = append(live, book)
	}
	total := len(live)
	if filter.Offset >= len(live) {
		return nil, total, nil
	}
	live = live[filter.Offset:]
	if filter.Limit > 0 && len(live) > filter.Limit {
		live = live[:filter.Limit]
	}
	return live, total, nil
}

func (f *fakeBookRepo) ListAll(ctx context.Context) ([]types.Book, error) {
	var all []types.Book
	for id := 1; id < f.nextID; id++ {
		if book, ok := f.books[id]; ok {
			all = append(all, book)
		}
	}
	return all, nil
}

func (f *fakeBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := f.books[id]
	if !ok || book.DeletedAt != nil {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (f *fakeBookRepo) GetByTitle(ctx context.Context, title string) (types.Book, error) {
	for _, book := range f.books {
		if book.DeletedAt == nil && book.Title == title {
			return book, nil
		}
	}
	return types.Book{}, store.ErrNotFound
}

func (f *fakeBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	if f.failCreate != nil {
		return types.Book{}, f.failCreate
	}
	now := time.Now()
	book.ID = f.nextID
	book.CreatedAt = now
	book.UpdatedAt = now
	f.books[book.ID] = book
	f.nextID++
	return book, nil
}

func (f *fakeBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if f.failUpdate != nil {
		return types.Book{}, f.failUpdate
	}
	current, ok := f.books[book.ID]
	if !ok || current.DeletedAt != nil {
		return types.Book{}, store.ErrNotFound
	}
	book.UpdatedAt = time.Now()
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeBookRepo) SoftDelete(ctx context.Context, id int) error {
	book, ok := f.books[id]
	if !ok || book.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	book.DeletedAt = &now
	book.Disponibilidad = false
	f.books[id] = book
	return nil
}

func (f *fakeBookRepo) Count(ctx context.Context) (int, error) {
	return len(f.books), nil
}

var _ BookRepository = (*fakeBookRepo)(nil)

// fakeUserRepo is an in-memory UserRepository for service tests.
type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range f.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := f.GetByUsername(ctx, user.Username); err == nil {
		return types.User{}, store.ErrConflict
	}
	user.ID = f.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	f.users[user.ID] = user
	f.nextID++
	return user, nil
}

var _ UserRepository = (*fakeUserRepo)(nil)

// newTestImageService builds an ImageService over a temp directory.
func newTestImageService(t *testing.T) *ImageService {
	t.Helper()
	client, err := storage.NewLocalClient(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalClient: %v", err)
	}
	return NewImageService(storage.NewStorage(client), zap.NewNop().Sugar())
}

// pngBytes renders a solid-color png of the given size.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// imageFilename extracts the stored filename from a public reference.
func imageFilename(ref string) string {
	return ref[strings.LastIndex(ref, "/")+1:]
}
