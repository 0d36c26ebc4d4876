package domain

import "github.com/shopspring/decimal"

// Category groups catalog items for browsing.
type Category struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Image string `json:"image"`
}

// Item is a purchasable catalog entry. Items are immutable once loaded.
type Item struct {
	Name        string          `json:"name"`
	Title       string          `json:"title"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	LargeImage  string          `json:"largeImage"`
}
