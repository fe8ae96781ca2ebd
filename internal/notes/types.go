package notes

import "time"

// Rating is one user's evaluation of a note. A note holds at most one
// rating per rater; rating again replaces the previous entry.
type Rating struct {
	RaterID string `bson:"rater_id" json:"raterId"`
	Value   int    `bson:"value" json:"value"`
	Comment string `bson:"comment,omitempty" json:"comment,omitempty"`
}

// Note is a catalog record for one uploaded study document.
// AvgRating is derived from Ratings and maintained by the store so the two
// never diverge.
type Note struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	Subject    string    `bson:"subject" json:"subject"`
	Year       string    `bson:"year,omitempty" json:"year,omitempty"`
	Section    string    `bson:"section,omitempty" json:"section,omitempty"`
	Faculty    string    `bson:"faculty,omitempty" json:"faculty,omitempty"`
	FilePath   string    `bson:"file_path" json:"filePath"`
	IsPaid     bool      `bson:"is_paid" json:"isPaid"`
	Price      float64   `bson:"price" json:"price"`
	UploaderID string    `bson:"uploader_id,omitempty" json:"uploaderId,omitempty"`
	Ratings    []Rating  `bson:"ratings" json:"ratings"`
	AvgRating  float64   `bson:"avg_rating" json:"avgRating"`
	Downloads  int64     `bson:"downloads" json:"downloads"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

// CreateNoteInput is the input for creating a note. IsPaid and Price arrive
// as raw form values and are coerced by the service.
type CreateNoteInput struct {
	Subject    string
	Year       string
	Section    string
	Faculty    string
	FilePath   string
	IsPaid     string
	Price      string
	UploaderID string
}

// ListQuery represents catalog list parameters. Query matches subject or
// faculty; Subject and Faculty narrow their own field. All matching is
// case-insensitive substring.
type ListQuery struct {
	Query   string
	Subject string
	Faculty string
	Page    int
	Limit   int
}

// ListResult is one page of the catalog plus the total match count, so the
// caller can compute page numbers.
type ListResult struct {
	Items []*Note `json:"notes"`
	Total int64   `json:"total"`
}
