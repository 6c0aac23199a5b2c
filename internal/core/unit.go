package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// EncodeUnit serializes an item into the queued unit-of-work body:
// UTF-8 JSON {title, description, price, count}, count omitted when unset.
func EncodeUnit(item Item) ([]byte, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode unit: %w", err)
	}
	return body, nil
}

// wireUnit accepts the shapes older producers emitted: numbers as JSON
// numbers or numeric strings, count as null.
type wireUnit struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Price       *json.Number `json:"price"`
	Count       *json.Number `json:"count"`
}

// DecodeUnit parses a queued body back into an item.
//
// Bodies that are not a JSON object of the expected field types return an
// error wrapping ErrDecodeUnit. Bodies that decode but miss a required field
// return a *RejectionError.
func DecodeUnit(body []byte) (Item, error) {
	var w wireUnit
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Item{}, fmt.Errorf("%w: %w", ErrDecodeUnit, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Item{}, fmt.Errorf("%w: trailing data after object", ErrDecodeUnit)
	}

	if w.Title == nil {
		return Item{}, reject(ReasonTitleRequired)
	}
	if w.Description == nil {
		return Item{}, reject(ReasonDescriptionRequired)
	}
	if w.Price == nil {
		return Item{}, reject(ReasonPriceRequired)
	}

	price, err := strconv.ParseFloat(w.Price.String(), 64)
	if err != nil {
		return Item{}, reject(ReasonPriceNotNumber)
	}

	item := Item{
		Title:       *w.Title,
		Description: *w.Description,
		Price:       price,
	}

	if w.Count != nil {
		count, err := decodeCount(*w.Count)
		if err != nil {
			return Item{}, err
		}
		item.Count = &count
	}

	return item, nil
}

// decodeCount accepts integral numbers, including ones written as 3.0, and
// bounds them before converting so huge values cannot wrap around.
func decodeCount(n json.Number) (int, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if err := checkCount(i); err != nil {
			return 0, err
		}
		return int(i), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || f != math.Trunc(f) {
		return 0, reject(ReasonCountNotInteger)
	}
	switch {
	case f < 0:
		return 0, reject(ReasonCountNegative)
	case f > MaxStockCount:
		return 0, reject(ReasonCountTooLarge)
	}
	return int(f), nil
}
