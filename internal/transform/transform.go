// Package transform maps catalog products into the payload shape the Qraga
// sink accepts. Everything here is pure: inputs are fully loaded products,
// failures are data-shape errors, never I/O.
package transform

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/you/qragasync/internal/domain"
)

// ErrInvalidProduct signals an item that cannot be transformed at all. The
// batch processor records it against the item and moves on; it never aborts
// the batch.
var ErrInvalidProduct = errors.New("invalid product")

type Transformer struct {
	currency string
}

func New(currency string) *Transformer {
	return &Transformer{currency: currency}
}

// Product builds the sink payload for one product. Variable products emit
// one variant payload per variation; everything else emits a single
// synthetic variant so the sink never sees an empty variant list.
func (t *Transformer) Product(p *domain.Product) (domain.ProductPayload, error) {
	if p == nil || p.ID == 0 {
		return domain.ProductPayload{}, ErrInvalidProduct
	}

	description := p.Description
	if description == "" {
		description = p.ShortDescription
	}

	payload := domain.ProductPayload{
		ID:          "prod-" + strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: description,
		Categories:  emptyIfNil(p.Categories),
		Tags:        emptyIfNil(p.Tags),
		Features:    productFeatures(p, false),
		Variants:    []domain.VariantPayload{},
	}

	if p.Type == domain.Variable && len(p.Variants) > 0 {
		for i := range p.Variants {
			vp, err := t.variant(p, &p.Variants[i])
			if err != nil {
				return domain.ProductPayload{}, err
			}
			payload.Variants = append(payload.Variants, vp)
		}
	}
	if len(payload.Variants) == 0 {
		vp, err := t.simpleAsVariant(p)
		if err != nil {
			return domain.ProductPayload{}, err
		}
		payload.Variants = append(payload.Variants, vp)
	}
	return payload, nil
}

func (t *Transformer) variant(parent *domain.Product, v *domain.Variant) (domain.VariantPayload, error) {
	amount, err := minorUnits(v.Price)
	if err != nil {
		return domain.VariantPayload{}, errors.Wrapf(err, "variant %d price", v.ID)
	}
	title := v.Title
	if title == "" {
		title = parent.Title + " - Variation #" + strconv.FormatInt(v.ID, 10)
	}
	features := map[string]string{}
	for name, option := range v.Attributes {
		if option == "" {
			continue
		}
		features[slug(name)] = option
	}
	return domain.VariantPayload{
		ID:                "var-" + strconv.FormatInt(v.ID, 10),
		Title:             title,
		Price:             domain.Price{Amount: amount, Currency: t.currency},
		InventoryQuantity: v.Stock,
		Features:          features,
		Images:            imageList(v.ImageURL),
	}, nil
}

// simpleAsVariant represents the product itself as its only variant. Unlike
// the parent feature map, this one keeps variation attributes.
func (t *Transformer) simpleAsVariant(p *domain.Product) (domain.VariantPayload, error) {
	amount, err := minorUnits(p.Price)
	if err != nil {
		return domain.VariantPayload{}, errors.Wrapf(err, "product %d price", p.ID)
	}
	return domain.VariantPayload{
		ID:                "var-" + strconv.FormatInt(p.ID, 10) + "-simple",
		Title:             p.Title,
		Price:             domain.Price{Amount: amount, Currency: t.currency},
		InventoryQuantity: p.Stock,
		Features:          productFeatures(p, true),
		Images:            imageList(p.ImageURL),
	}, nil
}

// productFeatures flattens attributes into the feature map. Attributes that
// define variation axes belong to each variant's map, not the parent's, so
// they are skipped on variable products unless the product is being rendered
// as its own variant.
func productFeatures(p *domain.Product, simpleVariant bool) map[string]string {
	features := map[string]string{}
	for _, a := range p.Attributes {
		if a.Variation && !simpleVariant && p.Type == domain.Variable {
			continue
		}
		if len(a.Options) == 0 {
			continue
		}
		value := strings.Join(a.Options, ", ")
		if value == "" {
			continue
		}
		features[slug(a.Name)] = value
	}
	return features
}

// minorUnits converts a decimal price string to integer cents, rounding
// half away from zero. An empty price counts as zero.
func minorUnits(price string) (int64, error) {
	if price == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0, errors.Wrap(ErrInvalidProduct, "unparseable price "+strconv.Quote(price))
	}
	return int64(math.Round(f * 100)), nil
}

func imageList(url string) []string {
	if url == "" {
		return []string{}
	}
	return []string{url}
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// slug normalizes an attribute name to a stable feature key: lowercase with
// non-alphanumeric runs collapsed to single dashes.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
