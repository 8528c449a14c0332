package service

import (
	"slices"
	"strings"

	"github.com/sakif/codecanvas/internal/model"
)

// SortBy orders search results.
type SortBy string

const (
	SortRecent  SortBy = "recent"
	SortPopular SortBy = "popular"
	SortViews   SortBy = "views"
	SortLikes   SortBy = "likes"
)

// ParseSortBy maps a query parameter to a SortBy. Unknown values sort by
// recency.
func ParseSortBy(s string) SortBy {
	switch by := SortBy(strings.ToLower(strings.TrimSpace(s))); by {
	case SortPopular, SortViews, SortLikes:
		return by
	default:
		return SortRecent
	}
}

// FilterBy picks the field a search term is matched against.
type FilterBy string

const (
	FilterAll    FilterBy = "all"
	FilterTitle  FilterBy = "title"
	FilterAuthor FilterBy = "author"
	FilterTags   FilterBy = "tags"
)

// ParseFilterBy maps a query parameter to a FilterBy. Unknown values search
// every field.
func ParseFilterBy(s string) FilterBy {
	switch by := FilterBy(strings.ToLower(strings.TrimSpace(s))); by {
	case FilterTitle, FilterAuthor, FilterTags:
		return by
	default:
		return FilterAll
	}
}

// SortPens sorts pens in place. The sort is stable: pens that compare equal
// keep the order the backend returned them in.
func SortPens(pens []*model.Pen, by SortBy) {
	var cmp func(a, b *model.Pen) int
	switch by {
	case SortPopular:
		cmp = func(a, b *model.Pen) int { return compareDesc(a.Popularity(), b.Popularity()) }
	case SortViews:
		cmp = func(a, b *model.Pen) int { return compareDesc(a.Views, b.Views) }
	case SortLikes:
		cmp = func(a, b *model.Pen) int { return compareDesc(a.Likes, b.Likes) }
	default:
		cmp = func(a, b *model.Pen) int { return b.CreatedAt.Compare(a.CreatedAt) }
	}
	slices.SortStableFunc(pens, cmp)
}

// TopTrending returns the n most popular pens without reordering the input.
func TopTrending(pens []*model.Pen, n int) []*model.Pen {
	ranked := slices.Clone(pens)
	SortPens(ranked, SortPopular)
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
