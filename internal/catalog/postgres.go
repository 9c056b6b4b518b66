// Package catalog reads products from Postgres. Pagination is ordered by id
// ascending and filtered to published simple/variable products, so page
// boundaries stay deterministic even while the catalog mutates underneath a
// running export.
package catalog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/qragasync/internal/domain"
)

// ErrNotFound is returned when a product id does not exist.
var ErrNotFound = errors.New("product not found")

type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

const publishedFilter = `status = 'publish' and type in ('simple', 'variable')`

// Count returns the number of exportable products.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `select count(*) from products where `+publishedFilter).Scan(&n)
	return n, errors.Wrap(err, "count products")
}

// Page returns one page of exportable products, fully loaded. Page numbers
// are 1-based.
func (s *Store) Page(ctx context.Context, page, size int) ([]domain.Product, error) {
	if page < 1 || size < 1 {
		return nil, errors.Errorf("invalid page %d size %d", page, size)
	}
	rows, err := s.db.Query(ctx, `
		select id, title, description, short_description, status, type,
		       price::text, stock, coalesce(image_url, ''), synced_at
		  from products
		 where `+publishedFilter+`
		 order by id asc
		offset $1 limit $2`, (page-1)*size, size)
	if err != nil {
		return nil, errors.Wrap(err, "query products page")
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadAssociations(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// Get loads a single product with variants, terms and attributes.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Product, error) {
	rows, err := s.db.Query(ctx, `
		select id, title, description, short_description, status, type,
		       price::text, stock, coalesce(image_url, ''), synced_at
		  from products where id = $1`, id)
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrNotFound
	}
	if err := s.loadAssociations(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// MarkSynced stamps the product as present on the remote sink.
func (s *Store) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `update products set synced_at = $2 where id = $1`, id, at)
	return errors.Wrap(err, "mark synced")
}

// ClearSynced drops the sync marker after a remote delete.
func (s *Store) ClearSynced(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `update products set synced_at = null where id = $1`, id)
	return errors.Wrap(err, "clear synced")
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.ShortDescription,
			&p.Status, &p.Type, &p.Price, &p.Stock, &p.ImageURL, &p.SyncedAt); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate products")
}

// loadAssociations fills terms, attributes and variants for a slice of
// products with three queries instead of per-product round trips.
func (s *Store) loadAssociations(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	byID := make(map[int64]*domain.Product, len(products))
	for i := range products {
		ids[i] = products[i].ID
		byID[products[i].ID] = &products[i]
	}

	rows, err := s.db.Query(ctx, `
		select product_id, taxonomy, name from product_terms
		 where product_id = any($1) order by product_id, name`, ids)
	if err != nil {
		return errors.Wrap(err, "query product terms")
	}
	for rows.Next() {
		var pid int64
		var taxonomy, name string
		if err := rows.Scan(&pid, &taxonomy, &name); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan product term")
		}
		p := byID[pid]
		if taxonomy == "category" {
			p.Categories = append(p.Categories, name)
		} else {
			p.Tags = append(p.Tags, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate product terms")
	}

	rows, err = s.db.Query(ctx, `
		select product_id, name, options, is_taxonomy, is_variation
		  from product_attributes
		 where product_id = any($1) order by product_id, name`, ids)
	if err != nil {
		return errors.Wrap(err, "query product attributes")
	}
	for rows.Next() {
		var pid int64
		var a domain.Attribute
		if err := rows.Scan(&pid, &a.Name, &a.Options, &a.Taxonomy, &a.Variation); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan product attribute")
		}
		p := byID[pid]
		p.Attributes = append(p.Attributes, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate product attributes")
	}

	rows, err = s.db.Query(ctx, `
		select id, product_id, title, price::text, stock, coalesce(image_url, '')
		  from variants
		 where product_id = any($1) order by product_id, id`, ids)
	if err != nil {
		return errors.Wrap(err, "query variants")
	}
	type variantRow struct {
		variant   domain.Variant
		productID int64
	}
	var vrows []variantRow
	var variantIDs []int64
	for rows.Next() {
		var vr variantRow
		if err := rows.Scan(&vr.variant.ID, &vr.productID, &vr.variant.Title,
			&vr.variant.Price, &vr.variant.Stock, &vr.variant.ImageURL); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan variant")
		}
		vr.variant.Attributes = map[string]string{}
		vrows = append(vrows, vr)
		variantIDs = append(variantIDs, vr.variant.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate variants")
	}
	if len(vrows) == 0 {
		return nil
	}

	rows, err = s.db.Query(ctx, `
		select variant_id, name, value from variant_attributes
		 where variant_id = any($1)`, variantIDs)
	if err != nil {
		return errors.Wrap(err, "query variant attributes")
	}
	attrs := map[int64]map[string]string{}
	for rows.Next() {
		var vid int64
		var name, value string
		if err := rows.Scan(&vid, &name, &value); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan variant attribute")
		}
		if attrs[vid] == nil {
			attrs[vid] = map[string]string{}
		}
		attrs[vid][name] = value
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate variant attributes")
	}

	for _, vr := range vrows {
		if a := attrs[vr.variant.ID]; a != nil {
			vr.variant.Attributes = a
		}
		p := byID[vr.productID]
		p.Variants = append(p.Variants, vr.variant)
	}
	return nil
}
