package services

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/cmpc-libros/apiserver/internal/storage"
	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testInput(title string) BookInput {
	return BookInput{
		Title:          title,
		Author:         "Autor",
		Editorial:      "Planeta",
		Price:          19.5,
		Disponibilidad: true,
		Gender:         "Novela",
	}
}

func TestBookService_Create(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	book, err := svc.Create(context.Background(), testInput("Cien años de soledad"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, book.ID)
	assert.Nil(t, book.ImageURL)
	assert.False(t, book.CreatedAt.IsZero())
}

func TestBookService_Create_DuplicateTitle(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	_, err := svc.Create(context.Background(), testInput("Rayuela"), nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), testInput("Rayuela"), nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestBookService_Create_WithImage(t *testing.T) {
	repo := newFakeBookRepo()
	images := newTestImageService(t)
	svc := NewBookService(repo, images)

	upload := &ImageUpload{
		Data:     pngBytes(t, 100, 100),
		MimeType: "image/png",
		Filename: "cover.png",
	}
	book, err := svc.Create(context.Background(), testInput("Ficciones"), upload)
	require.NoError(t, err)
	require.NotNil(t, book.ImageURL)
	assert.Contains(t, *book.ImageURL, PublicImagePrefix+"/")

	reader, err := images.Open(context.Background(), imageFilename(*book.ImageURL))
	require.NoError(t, err)
	reader.Close()
}

func TestBookService_Create_CleansUpImageOnInsertFailure(t *testing.T) {
	repo := newFakeBookRepo()
	repo.failCreate = errors.New("insert failed")

	dir := t.TempDir()
	client, err := storage.NewLocalClient(dir)
	require.NoError(t, err)
	images := NewImageService(storage.NewStorage(client), zap.NewNop().Sugar())
	svc := NewBookService(repo, images)

	upload := &ImageUpload{
		Data:     pngBytes(t, 50, 50),
		MimeType: "image/png",
		Filename: "cover.png",
	}
	_, err = svc.Create(context.Background(), testInput("El Aleph"), upload)
	require.Error(t, err)

	// The stored asset must not be left orphaned.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestBookService_Update_PartialFields(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	book, err := svc.Create(context.Background(), testInput("La ciudad y los perros"), nil)
	require.NoError(t, err)

	price := 32.0
	updated, err := svc.Update(context.Background(), book.ID, BookPatch{Price: &price}, nil)
	require.NoError(t, err)
	assert.Equal(t, 32.0, updated.Price)
	assert.Equal(t, book.Title, updated.Title)
	assert.Equal(t, book.Author, updated.Author)
}

func TestBookService_Update_TitleConflict(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	_, err := svc.Create(context.Background(), testInput("Pedro Páramo"), nil)
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), testInput("El llano en llamas"), nil)
	require.NoError(t, err)

	title := "Pedro Páramo"
	_, err = svc.Update(context.Background(), second.ID, BookPatch{Title: &title}, nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestBookService_Update_SameTitleIsNotAConflict(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	book, err := svc.Create(context.Background(), testInput("Sobre héroes y tumbas"), nil)
	require.NoError(t, err)

	title := book.Title
	price := 40.0
	updated, err := svc.Update(context.Background(), book.ID, BookPatch{Title: &title, Price: &price}, nil)
	require.NoError(t, err)
	assert.Equal(t, 40.0, updated.Price)
}

func TestBookService_Update_ReplaceImageDeletesOldAsset(t *testing.T) {
	repo := newFakeBookRepo()
	images := newTestImageService(t)
	svc := NewBookService(repo, images)

	first := &ImageUpload{Data: pngBytes(t, 60, 60), MimeType: "image/png", Filename: "a.png"}
	book, err := svc.Create(context.Background(), testInput("Los detectives salvajes"), first)
	require.NoError(t, err)
	oldRef := *book.ImageURL

	second := &ImageUpload{Data: pngBytes(t, 70, 70), MimeType: "image/png", Filename: "b.png"}
	updated, err := svc.Update(context.Background(), book.ID, BookPatch{}, second)
	require.NoError(t, err)
	require.NotNil(t, updated.ImageURL)
	assert.NotEqual(t, oldRef, *updated.ImageURL)

	_, err = images.Open(context.Background(), imageFilename(oldRef))
	assert.ErrorIs(t, err, ErrImageNotFound)

	reader, err := images.Open(context.Background(), imageFilename(*updated.ImageURL))
	require.NoError(t, err)
	reader.Close()
}

func TestBookService_Update_KeepsOldAssetWhenPersistFails(t *testing.T) {
	repo := newFakeBookRepo()

	dir := t.TempDir()
	client, err := storage.NewLocalClient(dir)
	require.NoError(t, err)
	images := NewImageService(storage.NewStorage(client), zap.NewNop().Sugar())
	svc := NewBookService(repo, images)

	first := &ImageUpload{Data: pngBytes(t, 60, 60), MimeType: "image/png", Filename: "a.png"}
	book, err := svc.Create(context.Background(), testInput("Estrella distante"), first)
	require.NoError(t, err)
	oldRef := *book.ImageURL

	repo.failUpdate = errors.New("update failed")
	second := &ImageUpload{Data: pngBytes(t, 70, 70), MimeType: "image/png", Filename: "b.png"}
	_, err = svc.Update(context.Background(), book.ID, BookPatch{}, second)
	require.Error(t, err)

	// The row still references the old asset, which must survive, and the
	// replacement must not be left orphaned.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, imageFilename(oldRef), files[0].Name())
}

func TestBookService_Update_ClearImage(t *testing.T) {
	repo := newFakeBookRepo()
	images := newTestImageService(t)
	svc := NewBookService(repo, images)

	upload := &ImageUpload{Data: pngBytes(t, 60, 60), MimeType: "image/png", Filename: "a.png"}
	book, err := svc.Create(context.Background(), testInput("2666"), upload)
	require.NoError(t, err)
	ref := *book.ImageURL

	updated, err := svc.Update(context.Background(), book.ID, BookPatch{ClearImage: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)

	_, err = images.Open(context.Background(), imageFilename(ref))
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestBookService_Update_ClearImageWithoutImageIsNoOp(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	book, err := svc.Create(context.Background(), testInput("Conversación en La Catedral"), nil)
	require.NoError(t, err)
	require.Nil(t, book.ImageURL)

	updated, err := svc.Update(context.Background(), book.ID, BookPatch{ClearImage: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
}

func TestBookService_Delete(t *testing.T) {
	repo := newFakeBookRepo()
	images := newTestImageService(t)
	svc := NewBookService(repo, images)

	upload := &ImageUpload{Data: pngBytes(t, 60, 60), MimeType: "image/png", Filename: "a.png"}
	book, err := svc.Create(context.Background(), testInput("La casa de los espíritus"), upload)
	require.NoError(t, err)
	ref := *book.ImageURL

	require.NoError(t, svc.Delete(context.Background(), book.ID))

	_, err = svc.Get(context.Background(), book.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = images.Open(context.Background(), imageFilename(ref))
	assert.ErrorIs(t, err, ErrImageNotFound)

	// Export still sees the soft-deleted row.
	all, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)
	assert.False(t, all[0].Disponibilidad)
}

func TestBookService_Delete_NotFound(t *testing.T) {
	svc := NewBookService(newFakeBookRepo(), newTestImageService(t))
	err := svc.Delete(context.Background(), 123)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBookService_DeletedTitleCanBeReused(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	book, err := svc.Create(context.Background(), testInput("Paradiso"), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), book.ID))

	again, err := svc.Create(context.Background(), testInput("Paradiso"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, book.ID, again.ID)
}

func TestBookService_RemoveImage(t *testing.T) {
	repo := newFakeBookRepo()
	images := newTestImageService(t)
	svc := NewBookService(repo, images)

	upload := &ImageUpload{Data: pngBytes(t, 60, 60), MimeType: "image/png", Filename: "a.png"}
	book, err := svc.Create(context.Background(), testInput("Aura"), upload)
	require.NoError(t, err)

	updated, err := svc.RemoveImage(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.ImageURL)
}

func TestBookService_RemoveImage_NoImage(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	book, err := svc.Create(context.Background(), testInput("Terra Nostra"), nil)
	require.NoError(t, err)

	_, err = svc.RemoveImage(context.Background(), book.ID)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestBookService_List_Meta(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	for i := 0; i < 25; i++ {
		input := testInput("Libro " + string(rune('A'+i)))
		_, err := svc.Create(context.Background(), input, nil)
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), ListParams{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, 25, page.Meta.Total)
	assert.Equal(t, 3, page.Meta.Page)
	assert.Equal(t, 10, page.Meta.Limit)
	assert.Equal(t, 3, page.Meta.LastPage)
}

func TestBookService_List_Defaults(t *testing.T) {
	repo := newFakeBookRepo()
	svc := NewBookService(repo, newTestImageService(t))

	page, err := svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Meta.Page)
	assert.Equal(t, 10, page.Meta.Limit)
	assert.Equal(t, 0, page.Meta.LastPage)
}
