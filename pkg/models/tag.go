package models

import (
	"regexp"
	"time"
)

// DefaultTagColor is applied when a tag is created without a color.
const DefaultTagColor = "#808080"

// hexColor matches the #RRGGBB form accepted for tag colors.
var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidHexColor reports whether s is a #RRGGBB color string.
func ValidHexColor(s string) bool {
	return hexColor.MatchString(s)
}

// Tag is a user-owned label. (UserID, Name) is unique.
type Tag struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Category groups tasks per user. Kept minimal: the core only carries the
// task-category links through the write path.
type Category struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
