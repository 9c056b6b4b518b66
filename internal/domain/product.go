package domain

import "time"

// ProductType mirrors the catalog's product taxonomy. Only simple and
// variable products are exported.
type ProductType string

const (
	Simple   ProductType = "simple"
	Variable ProductType = "variable"
)

// Attribute is one product attribute. Taxonomy attributes carry resolved
// term names in Options; custom attributes carry free-text options.
// Variation attributes define variant axes and are excluded from the parent
// feature map on variable products.
type Attribute struct {
	Name      string
	Options   []string
	Taxonomy  bool
	Variation bool
}

// Variant is one purchasable variation of a variable product. Attributes
// maps an axis name to the selected option.
type Variant struct {
	ID         int64
	Title      string
	Price      string
	Stock      int
	ImageURL   string
	Attributes map[string]string
}

// Product is a catalog item with everything the transformer needs already
// loaded. The transformer itself does no I/O. SyncedAt records the last
// successful single-item sync and drives the create-vs-update choice.
type Product struct {
	ID               int64
	Title            string
	Description      string
	ShortDescription string
	Status           string
	Type             ProductType
	Price            string
	Stock            int
	ImageURL         string
	SyncedAt         *time.Time
	Categories       []string
	Tags             []string
	Attributes       []Attribute
	Variants         []Variant
}

// Published reports whether the product is eligible for export.
func (p *Product) Published() bool { return p.Status == "publish" }

// Price is an amount in minor currency units (cents) plus currency code.
type Price struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// VariantPayload is the sink-ready shape of one variant.
type VariantPayload struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Price             Price             `json:"price"`
	InventoryQuantity int               `json:"inventory_quantity"`
	Features          map[string]string `json:"features"`
	Images            []string          `json:"images"`
}

// ProductPayload is the sink-ready shape of one catalog item. Variants is
// never empty: simple products emit one synthetic variant.
type ProductPayload struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Categories  []string          `json:"categories"`
	Tags        []string          `json:"tags"`
	Features    map[string]string `json:"features"`
	Variants    []VariantPayload  `json:"variants"`
}
