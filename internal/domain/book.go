package domain

// Book is a read-only catalog entry.
type Book struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	CoverImage  *string  `json:"coverImage"`
	Pages       []string `json:"pages"`
	DownloadURL *string  `json:"downloadUrl"`
}
