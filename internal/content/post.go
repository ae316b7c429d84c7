// Package content loads the blog collection: markdown files with YAML front
// matter validated against a fixed schema.
package content

import (
	"errors"
	"time"
)

// Category groups posts on the blog index.
type Category string

// Known categories.
const (
	CategoryAINotes Category = "ai notes"
	CategoryAIDemos Category = "ai demos"
	CategoryReact   Category = "react"
	CategoryMisc    Category = "misc"
)

// Error definitions for the content package.
var (
	ErrNoFrontMatter  = errors.New("missing front matter")
	ErrUnclosedMatter = errors.New("unterminated front matter")
	ErrInvalidDate    = errors.New("invalid pubDate")
)

// Post is a single blog entry.
type Post struct {
	PubDate     time.Time `json:"pubDate"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Body        string    `json:"-"`
}
