package normalizer

import "github.com/dshills/catalogconv/pkg/types"

// FieldTable lists, per canonical field, the source aliases tried in order.
// The first alias present with a usable value wins.
type FieldTable struct {
	ID          []string
	Title       []string
	Description []string
	Categories  []string
	Brands      []string
	Price       []string
	Currency    []string
	Status      []string
	Inventory   []string
	Language    []string
	Attributes  []string
}

// VertexFields maps catalogs already shaped like the canonical record
var VertexFields = FieldTable{
	ID:          []string{"id", "product_id", "productId", "sku"},
	Title:       []string{"title", "name"},
	Description: []string{"description", "desc"},
	Categories:  []string{"categories", "category"},
	Brands:      []string{"brands", "brand"},
	Price:       []string{"priceInfo", "price_info", "price"},
	Currency:    []string{"currencyCode", "currency_code", "currency"},
	Status:      []string{"availability", "status", "stock_status"},
	Inventory:   []string{"availableQuantity", "inventory", "stock", "quantity"},
	Language:    []string{"languageCode", "language_code", "language", "lang"},
	Attributes:  []string{"attributes"},
}

// GenericFields maps arbitrary vendor layouts
var GenericFields = FieldTable{
	ID:          []string{"id", "product_id", "productId", "sku", "item_id", "itemId", "code"},
	Title:       []string{"title", "name", "product_name", "productName", "display_name", "displayName"},
	Description: []string{"description", "desc", "long_description", "longDescription", "short_description", "details", "summary"},
	Categories:  []string{"categories", "category", "category_path", "categoryPath", "department", "product_type"},
	Brands:      []string{"brand", "brands", "manufacturer", "vendor"},
	Price:       []string{"price", "cost", "sale_price", "salePrice", "list_price", "listPrice", "msrp", "amount"},
	Currency:    []string{"currency", "currency_code", "currencyCode"},
	Status:      []string{"availability", "status", "stock_status", "stockStatus", "in_stock", "inStock", "available"},
	Inventory:   []string{"inventory", "stock", "quantity", "qty", "stock_quantity", "inventory_count"},
	Language:    []string{"language", "languageCode", "language_code", "lang"},
	Attributes:  []string{"attributes", "specifications", "specs"},
}

// reservedFields never become custom attributes
var reservedFields = []string{"uri", "url_slug"}

// TableFor returns the field table of a format variant
func TableFor(f types.Format) *FieldTable {
	if f == types.FormatVertex {
		return &VertexFields
	}
	return &GenericFields
}

// system returns every alias of the table plus reserved names
func (t *FieldTable) system() map[string]struct{} {
	out := make(map[string]struct{})
	for _, group := range [][]string{
		t.ID, t.Title, t.Description, t.Categories, t.Brands, t.Price,
		t.Currency, t.Status, t.Inventory, t.Language, t.Attributes, reservedFields,
	} {
		for _, k := range group {
			out[k] = struct{}{}
		}
	}
	return out
}

// lookup returns the first alias whose value is present and non-null
func lookup(raw map[string]any, aliases []string) (any, string, bool) {
	for _, k := range aliases {
		if v, ok := raw[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}
