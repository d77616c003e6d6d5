package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/cmpc-libros/apiserver/internal/middleware"
	"github.com/cmpc-libros/apiserver/internal/services"
	"github.com/cmpc-libros/apiserver/internal/store"
	"github.com/cmpc-libros/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory = 32 << 20
	maxImageBytes      = 16 << 20

	formFieldImage          = "image"
	formFieldTitle          = "title"
	formFieldAuthor         = "author"
	formFieldEditorial      = "editorial"
	formFieldPrice          = "price"
	formFieldDisponibilidad = "disponibilidad"
	formFieldGender         = "gender"
	formFieldImageURL       = "imageUrl"
)

// BookResponse wraps a single book plus a human-readable message.
type BookResponse struct {
	Message string     `json:"message"`
	Book    types.Book `json:"book"`
}

// DeleteResponse acknowledges a soft-delete.
type DeleteResponse struct {
	Message string `json:"message"`
	BookID  int    `json:"bookId"`
}

// BookHandler provides HTTP handlers for the book catalog.
type BookHandler struct {
	bookService *services.BookService
}

// NewBookHandler constructs a handler with the provided service.
func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers book routes on the given router. Every route,
// image serving included, requires a session and is audited.
func BookRouter(
	r chi.Router,
	bookService *services.BookService,
	auditor *middleware.Auditor,
	requireAuth func(http.Handler) http.Handler,
) {
	handler := NewBookHandler(bookService)

	r.Use(requireAuth)

	r.With(auditor.Action("books.list")).Get("/", handler.ListBooks)
	r.With(auditor.Action("books.create")).Post("/", handler.CreateBook)
	r.With(auditor.Action("books.export")).Get("/export/excel", handler.ExportBooks)
	r.With(auditor.Action("books.serveImage")).Get("/images/{filename}", handler.ServeImage)
	r.Route("/{bookID}", func(r chi.Router) {
		r.With(auditor.Action("books.get")).Get("/", handler.GetBook)
		r.With(auditor.Action("books.update")).Put("/", handler.UpdateBook)
		r.With(auditor.Action("books.delete")).Delete("/", handler.DeleteBook)
		r.With(auditor.Action("books.removeImage")).Delete("/image", handler.RemoveImage)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	minPrice, err := queryFloat(r, "minPrice")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxPrice, err := queryFloat(r, "maxPrice")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	pageData, err := h.bookService.List(r.Context(), services.ListParams{
		Page:      page,
		Limit:     limit,
		Search:    strings.TrimSpace(q.Get("search")),
		Title:     strings.TrimSpace(q.Get("title")),
		Author:    strings.TrimSpace(q.Get("author")),
		Editorial: strings.TrimSpace(q.Get("editorial")),
		Gender:    strings.TrimSpace(q.Get("gender")),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		SortField: strings.TrimSpace(q.Get("sortField")),
		SortOrder: strings.TrimSpace(q.Get("sortOrder")),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	if pageData.Data == nil {
		pageData.Data = []types.Book{}
	}

	writeJSON(w, http.StatusOK, pageData)
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch book")
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	input, err := parseBookInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	upload, err := parseImageUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Create(r.Context(), input, upload)
	if err != nil {
		writeBookError(w, err, "failed to create book")
		return
	}

	writeJSON(w, http.StatusCreated, BookResponse{Message: "book created", Book: book})
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	patch, err := parseBookPatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	upload, err := parseImageUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Update(r.Context(), id, patch, upload)
	if err != nil {
		writeBookError(w, err, "failed to update book")
		return
	}

	writeJSON(w, http.StatusOK, BookResponse{Message: "book updated", Book: book})
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Message: "book deleted", BookID: id})
}

func (h *BookHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "bookID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.RemoveImage(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		case errors.Is(err, services.ErrNoImage):
			writeError(w, http.StatusNotFound, "book has no image")
		case errors.Is(err, services.ErrImageNotFound):
			writeError(w, http.StatusNotFound, "image not found")
		default:
			writeError(w, http.StatusInternalServerError, "failed to remove image")
		}
		return
	}

	writeJSON(w, http.StatusOK, BookResponse{Message: "image removed", Book: book})
}

func (h *BookHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	filename := path.Base(chi.URLParam(r, "filename"))
	if filename == "" || filename == "." || filename == "/" {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	reader, err := h.bookService.OpenImage(r.Context(), filename)
	if err != nil {
		if errors.Is(err, services.ErrImageNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	defer reader.Close()

	if ctype := mime.TypeByExtension(path.Ext(filename)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = io.Copy(w, reader)
}

func (h *BookHandler) ExportBooks(w http.ResponseWriter, r *http.Request) {
	filename, data, err := h.bookService.ExportExcel(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export books")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func writeBookError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "title already in use")
	case errors.Is(err, services.ErrUnsupportedImageType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported image type")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func parseBookInput(r *http.Request) (services.BookInput, error) {
	title := strings.TrimSpace(r.FormValue(formFieldTitle))
	author := strings.TrimSpace(r.FormValue(formFieldAuthor))
	editorial := strings.TrimSpace(r.FormValue(formFieldEditorial))
	gender := strings.TrimSpace(r.FormValue(formFieldGender))
	if title == "" || author == "" || editorial == "" || gender == "" {
		return services.BookInput{}, errors.New("missing required fields")
	}

	price, err := parsePrice(r.FormValue(formFieldPrice))
	if err != nil {
		return services.BookInput{}, err
	}

	disponibilidad := true
	if raw := strings.TrimSpace(r.FormValue(formFieldDisponibilidad)); raw != "" {
		disponibilidad, err = strconv.ParseBool(raw)
		if err != nil {
			return services.BookInput{}, errors.New("invalid disponibilidad")
		}
	}

	return services.BookInput{
		Title:          title,
		Author:         author,
		Editorial:      editorial,
		Price:          price,
		Disponibilidad: disponibilidad,
		Gender:         gender,
	}, nil
}

func parseBookPatch(r *http.Request) (services.BookPatch, error) {
	var patch services.BookPatch

	if value, ok := formField(r, formFieldTitle); ok {
		if strings.TrimSpace(value) == "" {
			return services.BookPatch{}, errors.New("title cannot be empty")
		}
		trimmed := strings.TrimSpace(value)
		patch.Title = &trimmed
	}
	if value, ok := formField(r, formFieldAuthor); ok {
		trimmed := strings.TrimSpace(value)
		patch.Author = &trimmed
	}
	if value, ok := formField(r, formFieldEditorial); ok {
		trimmed := strings.TrimSpace(value)
		patch.Editorial = &trimmed
	}
	if value, ok := formField(r, formFieldGender); ok {
		trimmed := strings.TrimSpace(value)
		patch.Gender = &trimmed
	}
	if value, ok := formField(r, formFieldPrice); ok {
		price, err := parsePrice(value)
		if err != nil {
			return services.BookPatch{}, err
		}
		patch.Price = &price
	}
	if value, ok := formField(r, formFieldDisponibilidad); ok {
		disponibilidad, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return services.BookPatch{}, errors.New("invalid disponibilidad")
		}
		patch.Disponibilidad = &disponibilidad
	}

	// An explicit null-ish imageUrl field without a new upload clears the
	// current cover. Any other value is ignored.
	if value, ok := formField(r, formFieldImageURL); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "", "null":
			patch.ClearImage = true
		}
	}

	return patch, nil
}

// formField reports whether a multipart field was present at all, so
// absent fields can be told apart from empty ones.
func formField(r *http.Request, name string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	values, ok := r.MultipartForm.Value[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func parsePrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || price < 0 {
		return 0, errors.New("invalid price")
	}
	return price, nil
}

// parseImageUpload reads the optional image file from a multipart form.
// Returns nil when no file was attached.
func parseImageUpload(r *http.Request) (*services.ImageUpload, error) {
	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, errors.New("invalid image upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return nil, errors.New("failed to read image upload")
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("image too large")
	}

	return &services.ImageUpload{
		Data:     data,
		MimeType: uploadMimeType(header, data),
		Filename: header.Filename,
	}, nil
}

// uploadMimeType prefers the declared Content-Type and falls back to
// content sniffing when the part carries none.
func uploadMimeType(header *multipart.FileHeader, data []byte) string {
	declared := strings.TrimSpace(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	return http.DetectContentType(data)
}
