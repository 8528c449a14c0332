// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Author describes who created a pen.
type Author struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	ID     string `json:"id"`
}

// Pen is a saved unit of markup, styling and script with its metadata.
//
// The JSON names match the shape the CodeCanvas frontend has always used
// (note the capitalised "Id"), so API consumers see the same objects the
// browser service produced.
type Pen struct {
	ID         int64     `json:"Id"`
	Title      string    `json:"title"`
	HTML       string    `json:"html"`
	CSS        string    `json:"css"`
	JavaScript string    `json:"javascript"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Author     Author    `json:"author"`
	Tags       []string  `json:"tags"`
}

// Popularity is the trending score: likes plus views.
func (p *Pen) Popularity() int64 {
	return p.Likes + p.Views
}

// Document composes the three code fields into one standalone HTML page.
// Styles go in the head, markup in the body and the script runs last so it
// can see the markup.
func (p *Pen) Document() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if p.CSS != "" {
		b.WriteString("<style>\n")
		b.WriteString(p.CSS)
		b.WriteString("\n</style>\n")
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(p.HTML)
	if p.JavaScript != "" {
		b.WriteString("\n<script>\n")
		b.WriteString(p.JavaScript)
		b.WriteString("\n</script>")
	}
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}

// PenInput carries the user-editable fields of a pen.
// Counters, timestamps and the author are owned by the service.
type PenInput struct {
	Title      string   `json:"title"`
	HTML       string   `json:"html"`
	CSS        string   `json:"css"`
	JavaScript string   `json:"javascript"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	Tags       []string `json:"tags"`
}
