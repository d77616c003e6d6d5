package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"testing"
	"time"

	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/internal/storage"
	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/cmpc-libros/apiserver/types"
	"go.uber.org/zap"
)

// memBookRepo is an in-memory book repository for handler tests.
type memBookRepo struct {
	books  map[int]types.Book
	nextID int
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{books: map[int]types.Book{}, nextID: 1}
}

func (m *memBookRepo) List(ctx context.Context, filter store.ListFilter) ([]types.Book, int, error) {
	var live []types.Book
	for id := 1; id < m.nextID; id++ {
		book, ok := m.books[id]
		if ok && book.DeletedAt == nil {
			live = append(live, book)
		}
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

func (m *memBookRepo) ListAll(ctx context.Context) ([]types.Book, error) {
	var all []types.Book
	for id := 1; id < m.nextID; id++ {
		if book, ok := m.books[id]; ok {
			all = append(all, book)
		}
	}
	return all, nil
}

func (m *memBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := m.books[id]
	if !ok || book.DeletedAt != nil {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (m *memBookRepo) GetByTitle(ctx context.Context, title string) (types.Book, error) {
	for _, book := range m.books {
		if book.DeletedAt == nil && book.Title == title {
			return book, nil
		}
	}
	return types.Book{}, store.ErrNotFound
}

func (m *memBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.ID = m.nextID
	book.CreatedAt = now
	book.UpdatedAt = now
	m.books[book.ID] = book
	m.nextID++
	return book, nil
}

func (m *memBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	current, ok := m.books[book.ID]
	if !ok || current.DeletedAt != nil {
		return types.Book{}, store.ErrNotFound
	}
	book.UpdatedAt = time.Now()
	m.books[book.ID] = book
	return book, nil
}

func (m *memBookRepo) SoftDelete(ctx context.Context, id int) error {
	book, ok := m.books[id]
	if !ok || book.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	book.DeletedAt = &now
	book.Disponibilidad = false
	m.books[id] = book
	return nil
}

func (m *memBookRepo) Count(ctx context.Context) (int, error) {
	return len(m.books), nil
}

// memUserRepo is an in-memory user repository for handler tests.
type memUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (m *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := m.GetByUsername(ctx, user.Username); err == nil {
		return types.User{}, store.ErrConflict
	}
	user.ID = m.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = user
	m.nextID++
	return user, nil
}

// discardAuditRepo drops audit entries; handler tests assert responses,
// not the trail.
type discardAuditRepo struct{}

func (discardAuditRepo) Insert(ctx context.Context, entry types.AuditEntry) error { return nil }
func (discardAuditRepo) List(ctx context.Context, limit, offset int) ([]types.AuditEntry, error) {
	return nil, nil
}

func zapNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestBookService(t *testing.T) *services.BookService {
	t.Helper()
	client, err := storage.NewLocalClient(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalClient: %v", err)
	}
	images := services.NewImageService(storage.NewStorage(client), zap.NewNop().Sugar())
	return services.NewBookService(newMemBookRepo(), images)
}

// pngUpload renders a small png for multipart uploads.
func pngUpload(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for x := 0; x < 20; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 10, G: 10, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a multipart form with the given fields and an
// optional file part.
func multipartBody(t *testing.T, fields map[string]string, fileField, filename, contentType string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField(%s): %v", key, err)
		}
	}
	if fileData != nil {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="` + fileField + `"; filename="` + filename + `"`}
		header["Content-Type"] = []string{contentType}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := part.Write(fileData); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}
