// Flicksift - Resilient Movie Discovery Data Core
// Copyright 2026 Flicksift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/flicksift/flicksift

package catalog

import (
	"time"

	"github.com/goccy/go-json"
)

// CatalogItem is one discoverable work from the remote metadata service.
// Items are immutable after decoding; identity and equality are keyed on ID.
type CatalogItem struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Overview     string    `json:"overview,omitempty"`
	ReleaseDate  time.Time `json:"release_date"`
	Rating       float64   `json:"rating"` // 0-10 scale
	GenreIDs     []int     `json:"genre_ids,omitempty"`
	PosterPath   string    `json:"poster_path,omitempty"`
	BackdropPath string    `json:"backdrop_path,omitempty"`
}

// CatalogPage is one page of catalog results.
type CatalogPage struct {
	Items        []CatalogItem `json:"items"`
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
}

// EmptyPage returns a page with no items, used for locally rejected queries.
func EmptyPage(page int) *CatalogPage {
	return &CatalogPage{Items: []CatalogItem{}, Page: page, TotalPages: 0, TotalResults: 0}
}

// Wire format of the remote metadata service (TMDB-style). Dates arrive as
// "2006-01-02" strings and ratings under "vote_average"; both are normalized
// into CatalogItem during decoding.

const wireDateLayout = "2006-01-02"

type wireItem struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	VoteAverage  float64 `json:"vote_average"`
	GenreIDs     []int   `json:"genre_ids"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`

	// Detail responses carry full genre objects instead of genre_ids.
	Genres []wireGenre `json:"genres"`
}

type wireGenre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type wirePage struct {
	Page         int        `json:"page"`
	Results      []wireItem `json:"results"`
	TotalPages   int        `json:"total_pages"`
	TotalResults int        `json:"total_results"`
}

// toItem converts a decoded wire record into an immutable CatalogItem.
// An unparseable or absent release date yields the zero time.
func (w *wireItem) toItem() CatalogItem {
	released, _ := time.Parse(wireDateLayout, w.ReleaseDate)

	genres := w.GenreIDs
	if len(genres) == 0 && len(w.Genres) > 0 {
		genres = make([]int, len(w.Genres))
		for i, g := range w.Genres {
			genres[i] = g.ID
		}
	}

	return CatalogItem{
		ID:           w.ID,
		Title:        w.Title,
		Overview:     w.Overview,
		ReleaseDate:  released,
		Rating:       w.VoteAverage,
		GenreIDs:     genres,
		PosterPath:   w.PosterPath,
		BackdropPath: w.BackdropPath,
	}
}

// decodePage decodes a list response body into a CatalogPage.
func decodePage(data []byte) (*CatalogPage, error) {
	var wp wirePage
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, err
	}

	items := make([]CatalogItem, len(wp.Results))
	for i := range wp.Results {
		items[i] = wp.Results[i].toItem()
	}

	return &CatalogPage{
		Items:        items,
		Page:         wp.Page,
		TotalPages:   wp.TotalPages,
		TotalResults: wp.TotalResults,
	}, nil
}

// decodeItem decodes a detail response body into a CatalogItem.
func decodeItem(data []byte) (*CatalogItem, error) {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	item := w.toItem()
	return &item, nil
}
