package types

import "time"

// Book represents a title in the catalog.
// It carries the bibliographic data, the availability flag, and an
// optional reference to a cover image stored outside the database.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book title. No two non-deleted books may share one.
	Title string `json:"title" db:"title"`

	// Author is the book author.
	Author string `json:"author" db:"author"`

	// Editorial is the publishing house.
	Editorial string `json:"editorial" db:"editorial"`

	// Price is the sale price. Always non-negative.
	Price float64 `json:"price" db:"price"`

	// Disponibilidad indicates whether the book is currently available.
	Disponibilidad bool `json:"disponibilidad" db:"disponibilidad"`

	// Gender is the free-text literary genre (e.g. "Novela", "Poesía").
	Gender string `json:"gender" db:"gender"`

	// ImageURL is the serving path of the cover image asset
	// (e.g. "/books/images/<uuid>.png"), or nil when the book has no cover.
	ImageURL *string `json:"imageUrl" db:"image_url"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// DeletedAt marks the book as soft-deleted when non-nil. Deleted books
	// are hidden from default queries but remain available to the export.
	DeletedAt *time.Time `json:"deletedAt" db:"deleted_at"`
}
