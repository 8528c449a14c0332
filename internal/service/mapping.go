package service

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/sakif/codecanvas/internal/model"
	"github.com/sakif/codecanvas/internal/records"
)

// Column names of the pen_c table.
const (
	colTitle        = "title_c"
	colHTML         = "html_c"
	colCSS          = "css_c"
	colJavaScript   = "javascript_c"
	colThumbnail    = "thumbnail_c"
	colViews        = "views_c"
	colLikes        = "likes_c"
	colCreatedAt    = "created_at_c"
	colUpdatedAt    = "updated_at_c"
	colAuthorName   = "author_name_c"
	colAuthorAvatar = "author_avatar_c"
	colAuthorID     = "author_id_c"
	colTags         = "Tags"
)

// timestampLayout is fixed width so that created_at_c and updated_at_c
// sort correctly as text and pens saved within the same second stay ordered.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Defaults applied when a record is missing a value.
const (
	DefaultTitle      = "Untitled Pen"
	DefaultAuthorName = "Anonymous"
	DefaultAuthorID   = "anonymous"
)

// penFields is the field selection for single-pen reads and writes.
var penFields = []string{
	records.FieldID,
	colTitle, colHTML, colCSS, colJavaScript, colThumbnail,
	colViews, colLikes, colCreatedAt, colUpdatedAt,
	colAuthorName, colAuthorAvatar, colAuthorID, colTags,
}

// penListFields adds the system timestamps, which list views fall back on
// when a pen predates created_at_c/updated_at_c.
var penListFields = append(append([]string{}, penFields...),
	records.FieldCreatedOn, records.FieldModifiedOn)

// MapToDatabase converts a pen to a pen_c record. The Id is not included;
// callers add it for updates.
func MapToDatabase(p *model.Pen) records.Record {
	now := time.Now().UTC()
	created, updated := p.CreatedAt, p.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	authorName := p.Author.Name
	if authorName == "" {
		authorName = DefaultAuthorName
	}
	authorID := p.Author.ID
	if authorID == "" {
		authorID = DefaultAuthorID
	}

	rec := records.Record{
		colTitle:        p.Title,
		colHTML:         p.HTML,
		colCSS:          p.CSS,
		colJavaScript:   p.JavaScript,
		colViews:        p.Views,
		colLikes:        p.Likes,
		colCreatedAt:    created.Format(timestampLayout),
		colUpdatedAt:    updated.Format(timestampLayout),
		colAuthorName:   authorName,
		colAuthorAvatar: p.Author.Avatar,
		colAuthorID:     authorID,
		colTags:         joinTags(p.Tags),
	}
	if p.Thumbnail != "" {
		rec[colThumbnail] = p.Thumbnail
	}
	return rec
}

// MapFromDatabase converts a pen_c record to a pen. A nil record maps to nil.
func MapFromDatabase(rec records.Record) *model.Pen {
	if rec == nil {
		return nil
	}

	p := &model.Pen{
		ID:         cast.ToInt64(rec[records.FieldID]),
		Title:      cast.ToString(rec[colTitle]),
		HTML:       cast.ToString(rec[colHTML]),
		CSS:        cast.ToString(rec[colCSS]),
		JavaScript: cast.ToString(rec[colJavaScript]),
		Thumbnail:  cast.ToString(rec[colThumbnail]),
		Views:      cast.ToInt64(rec[colViews]),
		Likes:      cast.ToInt64(rec[colLikes]),
		CreatedAt:  firstTime(rec[colCreatedAt], rec[records.FieldCreatedOn]),
		UpdatedAt:  firstTime(rec[colUpdatedAt], rec[records.FieldModifiedOn]),
		Author: model.Author{
			Name:   cast.ToString(rec[colAuthorName]),
			Avatar: cast.ToString(rec[colAuthorAvatar]),
			ID:     cast.ToString(rec[colAuthorID]),
		},
		Tags: splitTags(cast.ToString(rec[colTags])),
	}

	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Author.Name == "" {
		p.Author.Name = DefaultAuthorName
	}
	if p.Author.ID == "" {
		p.Author.ID = DefaultAuthorID
	}
	return p
}

func mapAll(recs []records.Record) []*model.Pen {
	pens := make([]*model.Pen, 0, len(recs))
	for _, rec := range recs {
		if p := MapFromDatabase(rec); p != nil {
			pens = append(pens, p)
		}
	}
	return pens
}

// firstTime returns the first value that parses as a timestamp.
func firstTime(values ...any) time.Time {
	for _, v := range values {
		if v == nil {
			continue
		}
		if ts, err := cast.ToTimeE(v); err == nil && !ts.IsZero() {
			return ts
		}
	}
	return time.Time{}
}

func joinTags(tags []string) string {
	return strings.Join(cleanTags(tags), ",")
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return cleanTags(strings.Split(s, ","))
}

// cleanTags trims each tag and drops blanks.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
