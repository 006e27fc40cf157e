package domain

// Metadata keys written onto payment sessions.
const (
	MetaDownloadURL = "downloadUrl"
	MetaCoverImage  = "coverImage"
	MetaBookName    = "bookName"
	MetaPageCount   = "pageCount"
)

// CheckoutSession is the subset of a processor session this system reads.
type CheckoutSession struct {
	ID       string
	URL      string
	Metadata map[string]string
}

// Deliverable is what a paid session resolves to.
type Deliverable struct {
	DownloadURL string `json:"downloadUrl"`
	CoverImage  string `json:"coverImage"`
}
