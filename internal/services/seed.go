package services

import (
	"context"
	"fmt"

	"github.com/cmpc-libros/apiserver/types"
)

var (
	seedAuthors = []string{
		"Gabriel García Márquez",
		"Jorge Luis Borges",
		"Isabel Allende",
		"Mario Vargas Llosa",
		"Julio Cortázar",
	}
	seedEditorials = []string{"Penguin", "Random House", "Planeta", "Anaya", "Santillana"}
	seedGenres     = []string{"Ciencia Ficción", "Fantasía", "Histórico", "Biografía", "Poesía", "Ficción"}
)

const seedBookCount = 40

// SeedSampleBooks loads a starter catalog on first run. It is a no-op when
// the books table already has rows (deleted ones included).
func (s *BookService) SeedSampleBooks(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for i := 0; i < seedBookCount; i++ {
		author := seedAuthors[i%len(seedAuthors)]
		book := types.Book{
			Title:          fmt.Sprintf("Libro de %s %d", author, i+1),
			Author:         author,
			Editorial:      seedEditorials[i%len(seedEditorials)],
			Price:          10 + float64(i%9)*5.5,
			Disponibilidad: i%3 != 0,
			Gender:         seedGenres[i%len(seedGenres)],
		}
		if _, err := s.repo.Create(ctx, book); err != nil {
			return created, fmt.Errorf("seed book %q: %w", book.Title, err)
		}
		created++
	}
	return created, nil
}
