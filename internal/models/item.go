package models

import (
	"fmt"
	"time"
)

// ItemCategory is the kind of catalog item. It never changes after creation.
type ItemCategory string

const (
	CategoryBook       ItemCategory = "Book"
	CategoryVideo      ItemCategory = "Video"
	CategoryAudiobook  ItemCategory = "Audiobook"
	CategoryMagazine   ItemCategory = "Magazine"
	CategoryCD         ItemCategory = "CD"
	CategoryVinyl      ItemCategory = "Vinyl"
	CategoryPeriodical ItemCategory = "Periodical"
)

var validCategories = map[ItemCategory]bool{
	CategoryBook:       true,
	CategoryVideo:      true,
	CategoryAudiobook:  true,
	CategoryMagazine:   true,
	CategoryCD:         true,
	CategoryVinyl:      true,
	CategoryPeriodical: true,
}

// IsValid reports whether the category is one of the known categories
func (c ItemCategory) IsValid() bool {
	return validCategories[c]
}

// BookDetails holds book specific catalog fields
type BookDetails struct {
	Author    string `json:"author"`
	ISBN      string `json:"isbn,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Pages     int    `json:"pages,omitempty"`
}

// VideoDetails holds video specific catalog fields
type VideoDetails struct {
	Director       string `json:"director,omitempty"`
	RuntimeMinutes int    `json:"runtime_minutes,omitempty"`
	Format         string `json:"format,omitempty"`
	Rating         string `json:"rating,omitempty"`
}

// AudiobookDetails holds audiobook specific catalog fields
type AudiobookDetails struct {
	Author          string `json:"author,omitempty"`
	Narrator        string `json:"narrator,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// MagazineDetails holds magazine specific catalog fields
type MagazineDetails struct {
	Publisher   string `json:"publisher,omitempty"`
	IssueNumber string `json:"issue_number,omitempty"`
}

// RecordingDetails holds CD and vinyl specific catalog fields
type RecordingDetails struct {
	Artist     string `json:"artist,omitempty"`
	Label      string `json:"label,omitempty"`
	TrackCount int    `json:"track_count,omitempty"`
}

// PeriodicalDetails holds periodical specific catalog fields
type PeriodicalDetails struct {
	ISSN      string `json:"issn,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Volume    string `json:"volume,omitempty"`
}

// ItemDetails is the category-tagged variant attached to a LibraryItem.
// At most one member is set and it must match the item's category.
type ItemDetails struct {
	Book       *BookDetails       `json:"book,omitempty"`
	Video      *VideoDetails      `json:"video,omitempty"`
	Audiobook  *AudiobookDetails  `json:"audiobook,omitempty"`
	Magazine   *MagazineDetails   `json:"magazine,omitempty"`
	Recording  *RecordingDetails  `json:"recording,omitempty"`
	Periodical *PeriodicalDetails `json:"periodical,omitempty"`
}

// variant returns the category implied by the populated member, and how many members are set
func (d ItemDetails) variant() (ItemCategory, int) {
	var (
		category ItemCategory
		count    int
	)
	if d.Book != nil {
		category, count = CategoryBook, count+1
	}
	if d.Video != nil {
		category, count = CategoryVideo, count+1
	}
	if d.Audiobook != nil {
		category, count = CategoryAudiobook, count+1
	}
	if d.Magazine != nil {
		category, count = CategoryMagazine, count+1
	}
	if d.Recording != nil {
		category, count = CategoryCD, count+1
	}
	if d.Periodical != nil {
		category, count = CategoryPeriodical, count+1
	}
	return category, count
}

// MatchesCategory checks that the details variant is consistent with category
func (d ItemDetails) MatchesCategory(category ItemCategory) error {
	variant, count := d.variant()
	switch {
	case count == 0:
		return nil
	case count > 1:
		return fmt.Errorf("item details must describe a single category, got %d", count)
	case variant == CategoryCD && (category == CategoryCD || category == CategoryVinyl):
		return nil
	case variant != category:
		return fmt.Errorf("%s details supplied for a %s item", variant, category)
	}
	return nil
}

// LibraryItem is a catalog entry shared by all of its physical copies
type LibraryItem struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Category        ItemCategory `json:"category"`
	PublicationYear int          `json:"publication_year,omitempty"`
	Description     string       `json:"description,omitempty"`
	IsNewRelease    bool         `json:"is_new_release"`
	Details         ItemDetails  `json:"details"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// CreateItemRequest represents a request to add a catalog item
type CreateItemRequest struct {
	Title           string       `json:"title" binding:"required,min=1,max=500" validate:"required,min=1,max=500"`
	Category        ItemCategory `json:"category" binding:"required" validate:"required"`
	PublicationYear int          `json:"publication_year" validate:"omitempty,min=0,max=9999"`
	Description     string       `json:"description" validate:"max=5000"`
	IsNewRelease    bool         `json:"is_new_release"`
	Details         ItemDetails  `json:"details"`
}

// UpdateItemRequest represents a partial update of a catalog item. Category is not updatable.
type UpdateItemRequest struct {
	Title           *string      `json:"title" validate:"omitempty,min=1,max=500"`
	PublicationYear *int         `json:"publication_year" validate:"omitempty,min=0,max=9999"`
	Description     *string      `json:"description" validate:"omitempty,max=5000"`
	IsNewRelease    *bool        `json:"is_new_release"`
	Details         *ItemDetails `json:"details"`
}
