package core

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func formatPrice(p float64) string { return strconv.FormatFloat(p, 'f', -1, 64) }

// TestValidRowsRoundTrip checks that any accepted row survives the queue
// encoding unchanged.
// Property: DecodeUnit(EncodeUnit(ValidateRow(row))) == ValidateRow(row)
func TestValidRowsRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("encode then decode preserves accepted items", prop.ForAll(
		func(title, desc string, price float64, count int) bool {
			row := RawRow{
				ColumnTitle:       "T" + title,
				ColumnDescription: "D" + desc,
				ColumnPrice:       formatPrice(price),
				ColumnCount:       strconv.Itoa(count),
			}
			item, err := ValidateRow(row)
			if err != nil {
				return false
			}

			body, err := EncodeUnit(item)
			if err != nil {
				return false
			}
			decoded, err := DecodeUnit(body)
			if err != nil {
				return false
			}

			return decoded.Title == item.Title &&
				decoded.Description == item.Description &&
				decoded.Price == item.Price &&
				decoded.Count != nil && *decoded.Count == count &&
				ValidateItem(decoded) == nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Float64Range(0.01, 1e6),
		gen.IntRange(0, 100000),
	))

	properties.TestingRun(t)
}

// TestInvalidRowsNeverAccepted checks the required-field rules.
// Property: rows without title, description or a positive price are rejected.
func TestInvalidRowsNeverAccepted(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("blank title is rejected", prop.ForAll(
		func(spaces int, desc string, price float64) bool {
			row := RawRow{
				ColumnTitle:       strings.Repeat(" ", spaces),
				ColumnDescription: desc,
				ColumnPrice:       formatPrice(price),
			}
			_, err := ValidateRow(row)
			reason, ok := IsRejection(err)
			return ok && reason == ReasonTitleRequired
		},
		gen.IntRange(0, 5),
		gen.AlphaString(),
		gen.Float64Range(-100, 100),
	))

	properties.Property("missing description is rejected", prop.ForAll(
		func(title string, price float64) bool {
			row := RawRow{ColumnTitle: "T" + title, ColumnPrice: formatPrice(price)}
			_, err := ValidateRow(row)
			reason, ok := IsRejection(err)
			return ok && reason == ReasonDescriptionRequired
		},
		gen.AlphaString(),
		gen.Float64Range(-100, 100),
	))

	properties.Property("non-positive price is rejected", prop.ForAll(
		func(price float64) bool {
			row := RawRow{
				ColumnTitle:       "Gadget",
				ColumnDescription: "y",
				ColumnPrice:       formatPrice(price),
			}
			_, err := ValidateRow(row)
			reason, ok := IsRejection(err)
			return ok && reason == ReasonPriceNotPositive
		},
		gen.Float64Range(-1e6, 0),
	))

	properties.Property("non-numeric price is rejected", prop.ForAll(
		func(price string) bool {
			row := RawRow{
				ColumnTitle:       "Gadget",
				ColumnDescription: "y",
				ColumnPrice:       "x" + price,
			}
			_, err := ValidateRow(row)
			reason, ok := IsRejection(err)
			return ok && reason == ReasonPriceNotNumber
		},
		gen.AlphaString(),
	))

	properties.Property("negative count is rejected", prop.ForAll(
		func(count int) bool {
			row := RawRow{
				ColumnTitle:       "Gadget",
				ColumnDescription: "y",
				ColumnPrice:       "1",
				ColumnCount:       strconv.Itoa(count),
			}
			_, err := ValidateRow(row)
			reason, ok := IsRejection(err)
			return ok && reason == ReasonCountNegative
		},
		gen.IntRange(-100000, -1),
	))

	properties.TestingRun(t)
}
