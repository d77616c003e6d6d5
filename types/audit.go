package types

import "time"

// AuditEntry is one immutable record of an inbound request/response pair.
// Entries are appended once and never updated or deleted by the application.
type AuditEntry struct {
	// ID is the unique identifier of the entry.
	ID int `json:"id" db:"id"`

	// Route is the matched route pattern (e.g. "/books/{bookID}").
	Route string `json:"route" db:"route"`

	// Method is the HTTP method of the request.
	Method string `json:"method" db:"method"`

	// StatusCode is the HTTP status the handler responded with.
	StatusCode int `json:"statusCode" db:"status_code"`

	// Username is the login name of the requester, or "anonymous".
	Username string `json:"username" db:"username"`

	// IPAddress is the client address the request originated from.
	IPAddress string `json:"ipAddress" db:"ip_address"`

	// UserAgent is the User-Agent header of the request.
	UserAgent string `json:"userAgent" db:"user_agent"`

	// Action names the component and operation, e.g. "books.create".
	Action string `json:"action" db:"action"`

	// Params holds the merged body, path, and query parameters of the
	// request. Sensitive values are redacted before recording.
	Params map[string]any `json:"params" db:"params"`

	// UserID is the id of the requester, or 0 when unauthenticated.
	UserID int `json:"userId" db:"user_id"`

	// CreatedAt is the timestamp at which the entry was recorded.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
