package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryLegacyTypeHasCanonicalCounterpart(t *testing.T) {
	for _, legacy := range LegacyTypes() {
		canonical, err := legacy.DefaultCanonical()
		require.NoError(t, err, legacy)
		assert.True(t, canonical.IsCanonical(), "%s -> %s", legacy, canonical)
		assert.False(t, canonical.IsLegacy())
	}
	_, err := AirFreightImport.DefaultCanonical()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAbbreviations(t *testing.T) {
	want := map[JobType]string{
		AirFreightImport:  "AI",
		AirFreightExport:  "AE",
		SeaFreightImport:  "SI",
		SeaFreightExport:  "SE",
		RoadFreightImport: "RI",
		RoadFreightExport: "RE",
	}
	canonical := CanonicalTypes()
	require.Len(t, canonical, len(want))
	seen := map[string]bool{}
	for _, jt := range canonical {
		assert.True(t, jt.IsCanonical(), jt)
		assert.False(t, jt.IsLegacy(), jt)
		got, err := jt.Abbreviation()
		require.NoError(t, err)
		assert.Equal(t, want[jt], got, jt)
		assert.False(t, seen[got], "abbreviation %s reused", got)
		seen[got] = true
	}

	_, err := SeaFreight.Abbreviation()
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseJobType(t *testing.T) {
	jt, err := ParseJobType("ROAD_FREIGHT_EXPORT")
	require.NoError(t, err)
	assert.Equal(t, RoadFreightExport, jt)

	_, err = ParseJobType("RAIL_FREIGHT")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestJobNumberFormatting(t *testing.T) {
	n, err := NewJobNumber(SeaFreightImport, 2024, 4)
	require.NoError(t, err)
	assert.Equal(t, "AAL-SI-24-004", n.String())
	assert.Equal(t, "AAL-SI-24-", n.BucketPrefix())
	assert.Equal(t, SeaFreightImport, n.JobType())

	wide, err := NewJobNumber(AirFreightExport, 2031, 1000)
	require.NoError(t, err)
	assert.Equal(t, "AAL-AE-31-1000", wide.String())

	early, err := NewJobNumber(RoadFreightImport, 2005, 7)
	require.NoError(t, err)
	assert.Equal(t, "AAL-RI-05-007", early.String())
}

func TestParseJobNumber(t *testing.T) {
	n, err := ParseJobNumber("AAL-AI-24-012")
	require.NoError(t, err)
	assert.Equal(t, JobNumber{Abbr: "AI", Year: 24, Seq: 12}, n)

	n, err = ParseJobNumber("AAL-RE-25-1203")
	require.NoError(t, err)
	assert.Equal(t, 1203, n.Seq)

	for _, raw := range []string{
		"AAL-AI-24-abc",
		"AAL-AI-24-",
		"AAL-AI-24-000",
		"AAL-AI-24-+12",
		"AAL-AI-24-001-X",
		"AAL-XX-24-001",
		"ABC-AI-24-001",
		"AAL-AI-2024-001",
		"",
	} {
		_, err := ParseJobNumber(raw)
		assert.ErrorIs(t, err, ErrValidation, raw)
	}
}

func TestLineItemValidation(t *testing.T) {
	ok := LineItemInput{Description: "Freight", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("10.50")}
	require.NoError(t, ok.Validate())
	assert.Equal(t, "21", ok.Quantity.Mul(ok.UnitPrice).String())

	err := ValidateLineItems([]LineItemInput{ok, {Description: " ", Quantity: decimal.NewFromInt(1)}})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "line item 2")

	assert.ErrorIs(t, LineItemInput{Description: "x"}.Validate(), ErrValidation)
	assert.ErrorIs(t, LineItemInput{Description: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(-1)}.Validate(), ErrValidation)
}

func TestInvoicePatchValidation(t *testing.T) {
	paid := InvoicePaid
	usd := "USD"
	require.NoError(t, InvoicePatch{Status: &paid, Currency: &usd}.Validate())

	bogus := InvoiceStatus("SENT")
	assert.ErrorIs(t, InvoicePatch{Status: &bogus}.Validate(), ErrValidation)

	lower := "usd"
	assert.ErrorIs(t, InvoicePatch{Currency: &lower}.Validate(), ErrValidation)
}

func TestInvoiceTotal(t *testing.T) {
	items := []LineItem{
		{Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("1.10")},
		{Quantity: decimal.RequireFromString("0.5"), UnitPrice: decimal.NewFromInt(20)},
	}
	assert.True(t, decimal.RequireFromString("13.30").Equal(InvoiceTotal(items)))
	assert.True(t, InvoiceTotal(nil).IsZero())
}
