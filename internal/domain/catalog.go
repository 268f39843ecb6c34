package domain

import "time"

type Product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Review struct {
	ID        int       `json:"id"`
	ProductID int       `json:"-"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

// SummaryEntry is a generated review summary for one product.
// It is usable while now < ExpiresAt.
type SummaryEntry struct {
	ProductID   int
	Content     string
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// Fresh reports whether the entry may still be served at now.
func (e SummaryEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
