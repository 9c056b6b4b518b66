package transform

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/qragasync/internal/domain"
)

func simpleProduct() *domain.Product {
	return &domain.Product{
		ID:          42,
		Title:       "Desk Lamp",
		Description: "A lamp for desks.",
		Status:      "publish",
		Type:        domain.Simple,
		Price:       "19.99",
		Stock:       7,
		ImageURL:    "https://img.example/lamp.jpg",
		Categories:  []string{"Lighting"},
		Tags:        []string{"office"},
		Attributes: []domain.Attribute{
			{Name: "Material", Options: []string{"Steel", "Brass"}},
		},
	}
}

func TestSimpleProductEmitsSyntheticVariant(t *testing.T) {
	tr := New("USD")
	payload, err := tr.Product(simpleProduct())
	require.NoError(t, err)

	assert.Equal(t, "prod-42", payload.ID)
	assert.Equal(t, "Desk Lamp", payload.Title)
	assert.Equal(t, []string{"Lighting"}, payload.Categories)
	assert.Equal(t, []string{"office"}, payload.Tags)
	assert.Equal(t, map[string]string{"material": "Steel, Brass"}, payload.Features)

	require.Len(t, payload.Variants, 1)
	v := payload.Variants[0]
	assert.Equal(t, "var-42-simple", v.ID)
	assert.Equal(t, "Desk Lamp", v.Title)
	assert.Equal(t, domain.Price{Amount: 1999, Currency: "USD"}, v.Price)
	assert.Equal(t, 7, v.InventoryQuantity)
	assert.Equal(t, []string{"https://img.example/lamp.jpg"}, v.Images)
}

func TestPriceRoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		price string
		want  int64
	}{
		{"19.99", 1999},
		{"10.555", 1056},
		{"0.005", 1},
		{"0", 0},
		{"", 0},
		{"100", 10000},
	}
	tr := New("EUR")
	for _, tt := range tests {
		p := simpleProduct()
		p.Price = tt.price
		payload, err := tr.Product(p)
		require.NoError(t, err, "price %q", tt.price)
		assert.Equal(t, tt.want, payload.Variants[0].Price.Amount, "price %q", tt.price)
		assert.Equal(t, "EUR", payload.Variants[0].Price.Currency)
	}
}

func TestVariableProductVariants(t *testing.T) {
	p := &domain.Product{
		ID:     7,
		Title:  "T-Shirt",
		Status: "publish",
		Type:   domain.Variable,
		Price:  "15.00",
		Attributes: []domain.Attribute{
			{Name: "Color", Options: []string{"Red", "Blue"}, Taxonomy: true, Variation: true},
			{Name: "Fabric", Options: []string{"Cotton"}},
		},
		Variants: []domain.Variant{
			{ID: 71, Title: "T-Shirt Red", Price: "15.00", Stock: 3,
				ImageURL:   "https://img.example/red.jpg",
				Attributes: map[string]string{"Color": "Red"}},
			{ID: 72, Price: "16.50", Stock: 0,
				Attributes: map[string]string{"Color": "Blue", "Size": ""}},
		},
	}
	payload, err := New("USD").Product(p)
	require.NoError(t, err)

	// The variation axis belongs to each variant, not the parent.
	assert.Equal(t, map[string]string{"fabric": "Cotton"}, payload.Features)

	require.Len(t, payload.Variants, 2)
	assert.Equal(t, "var-71", payload.Variants[0].ID)
	assert.Equal(t, "T-Shirt Red", payload.Variants[0].Title)
	assert.Equal(t, map[string]string{"color": "Red"}, payload.Variants[0].Features)
	assert.Equal(t, []string{"https://img.example/red.jpg"}, payload.Variants[0].Images)

	// Untitled variation falls back to a generated name; empty attribute
	// options are dropped.
	assert.Equal(t, "T-Shirt - Variation #72", payload.Variants[1].Title)
	assert.Equal(t, map[string]string{"color": "Blue"}, payload.Variants[1].Features)
	assert.Equal(t, int64(1650), payload.Variants[1].Price.Amount)
	assert.Empty(t, payload.Variants[1].Images)
}

func TestVariableProductWithoutVariantsFallsBack(t *testing.T) {
	p := &domain.Product{
		ID:     9,
		Title:  "Mystery Box",
		Status: "publish",
		Type:   domain.Variable,
		Price:  "5.00",
		Attributes: []domain.Attribute{
			{Name: "Size", Options: []string{"L"}, Variation: true},
		},
	}
	payload, err := New("USD").Product(p)
	require.NoError(t, err)

	require.Len(t, payload.Variants, 1)
	assert.Equal(t, "var-9-simple", payload.Variants[0].ID)
	// Rendered as its own variant, the product keeps variation attributes.
	assert.Equal(t, map[string]string{"size": "L"}, payload.Variants[0].Features)
}

func TestEmptyInputsDegrade(t *testing.T) {
	p := &domain.Product{ID: 3, Title: "Bare", Status: "publish", Type: domain.Simple, ShortDescription: "short"}
	payload, err := New("USD").Product(p)
	require.NoError(t, err)

	assert.Equal(t, "short", payload.Description)
	assert.NotNil(t, payload.Categories)
	assert.Empty(t, payload.Categories)
	assert.NotNil(t, payload.Tags)
	assert.NotNil(t, payload.Features)
	assert.NotNil(t, payload.Variants[0].Images)
}

func TestTransformFailures(t *testing.T) {
	tr := New("USD")

	_, err := tr.Product(nil)
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = tr.Product(&domain.Product{Title: "no id"})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	bad := simpleProduct()
	bad.Price = "not-a-number"
	_, err = tr.Product(bad)
	assert.ErrorIs(t, errors.Cause(err), ErrInvalidProduct)

	variable := &domain.Product{
		ID: 5, Title: "V", Status: "publish", Type: domain.Variable,
		Variants: []domain.Variant{{ID: 51, Price: "oops"}},
	}
	_, err = tr.Product(variable)
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Shoe Size":   "shoe-size",
		"color":       "color",
		" Trim Me ":   "trim-me",
		"Multi  Gap!": "multi-gap",
	}
	for in, want := range tests {
		assert.Equal(t, want, slug(in), "slug(%q)", in)
	}
}
