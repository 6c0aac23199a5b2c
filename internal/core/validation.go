package core

// validation.go turns decoded CSV rows into normalized items.
//
// Validation happens at two boundaries:
//  1. ValidateRow: raw cells from the File Parser, before anything is queued
//  2. ValidateItem: decoded units in the Processor, before anything is committed
//
// Rules run in a fixed order and the first failure wins, so a row always
// reports the same reason.

import (
	"math"
	"strings"
)

// Rejection reasons. They are part of the log contract.
const (
	ReasonTitleRequired       = "title required"
	ReasonDescriptionRequired = "description required"
	ReasonPriceRequired       = "price required"
	ReasonPriceNotNumber      = "price must be a number"
	ReasonPriceNotPositive    = "price must be positive"
	ReasonCountNotInteger     = "count must be an integer"
	ReasonCountNegative       = "count must be non-negative"
	ReasonCountTooLarge       = "count exceeds maximum"
)

// MaxStockCount is the largest stock count the stores can hold.
const MaxStockCount = math.MaxInt32

// Column names recognized in the header row.
const (
	ColumnTitle       = "title"
	ColumnDescription = "description"
	ColumnPrice       = "price"
	ColumnCount       = "count"
)

// RawRow maps a normalized column name to its cell value.
// Only columns present in the header appear as keys.
type RawRow map[string]string

// ValidateRow validates a raw row and returns the normalized item, or a
// *RejectionError naming the first rule that failed.
func ValidateRow(row RawRow) (Item, error) {
	title := CleanCell(row[ColumnTitle])
	if title == "" {
		return Item{}, reject(ReasonTitleRequired)
	}

	description := CleanCell(row[ColumnDescription])
	if description == "" {
		return Item{}, reject(ReasonDescriptionRequired)
	}

	rawPrice := CleanCell(row[ColumnPrice])
	if rawPrice == "" {
		return Item{}, reject(ReasonPriceRequired)
	}
	price, err := ParsePrice(rawPrice)
	if err != nil {
		return Item{}, reject(ReasonPriceNotNumber)
	}
	if price <= 0 {
		return Item{}, reject(ReasonPriceNotPositive)
	}

	item := Item{
		Title:       title,
		Description: description,
		Price:       price,
	}

	// Absent or empty count is legal; the committer applies the default.
	if rawCount := CleanCell(row[ColumnCount]); rawCount != "" {
		n, err := ParseCount(rawCount)
		if err != nil {
			return Item{}, reject(ReasonCountNotInteger)
		}
		if err := checkCount(n); err != nil {
			return Item{}, err
		}
		count := int(n)
		item.Count = &count
	}

	return item, nil
}

// ValidateItem re-checks a decoded unit before commit. Queued bodies may come
// from older producers or be corrupted in flight, so the shape is never trusted.
func ValidateItem(item Item) error {
	if strings.TrimSpace(item.Title) == "" {
		return reject(ReasonTitleRequired)
	}
	if strings.TrimSpace(item.Description) == "" {
		return reject(ReasonDescriptionRequired)
	}
	if math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
		return reject(ReasonPriceNotNumber)
	}
	if item.Price <= 0 {
		return reject(ReasonPriceNotPositive)
	}
	if item.Count != nil {
		return checkCount(int64(*item.Count))
	}
	return nil
}

func checkCount(n int64) error {
	if n < 0 {
		return reject(ReasonCountNegative)
	}
	if n > MaxStockCount {
		return reject(ReasonCountTooLarge)
	}
	return nil
}
