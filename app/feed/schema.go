package feed

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

type ParseMode string

const (
	ParseLenient ParseMode = "lenient"
	ParseStrict  ParseMode = "strict"
)

// KeyPolicy is an ordered list of child element names. The first child that is
// present with non-empty trimmed text wins.
type KeyPolicy []string

func (p KeyPolicy) Resolve(item *etree.Element) (string, bool) {
	for _, field := range p {
		el := item.SelectElement(field)
		if el == nil {
			continue
		}
		if value := strings.TrimSpace(el.Text()); value != "" {
			return value, true
		}
	}
	return "", false
}

// Target describes the single field a schema is allowed to rewrite.
type Target struct {
	Field string
	// Source is the field whose value is prefixed into Field. Empty means Field
	// is prefixed in place using its own value.
	Source string
	// CreateMissing adds Field to items that lack it.
	CreateMissing bool
}

type Schema struct {
	Name        string
	Title       string
	RootTag     string
	ItemTag     string
	RenameKey   KeyPolicy
	CompareKey  KeyPolicy
	StockField  string
	PriceFields KeyPolicy
	Target      Target
	ParseMode   ParseMode
	OutputFile  string
}

var schemas = map[string]*Schema{
	"ebi": {
		Name:        "ebi",
		Title:       "eBijuteri",
		RootTag:     "Urunler",
		ItemTag:     "Urun",
		RenameKey:   KeyPolicy{"stok_kodu"},
		CompareKey:  KeyPolicy{"product_id", "stok_kodu"},
		StockField:  "miktar",
		PriceFields: KeyPolicy{"fiyat", "bayi_fiyati"},
		Target:      Target{Field: "barcode", Source: "stok_kodu", CreateMissing: true},
		ParseMode:   ParseLenient,
		OutputFile:  "ebi_out.xml",
	},
	"tkt": {
		Name:        "tkt",
		Title:       "TeknoTok",
		RootTag:     "data",
		ItemTag:     "post",
		RenameKey:   KeyPolicy{"Sku"},
		CompareKey:  KeyPolicy{"ID"},
		StockField:  "Stock",
		PriceFields: KeyPolicy{"Price"},
		Target:      Target{Field: "Sku"},
		ParseMode:   ParseStrict,
		OutputFile:  "tkt_out.xml",
	},
}

func LookupSchema(name string) (*Schema, error) {
	schema, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown feed type '%s' (available: %s)", name, strings.Join(SchemaNames(), ", "))
	}
	return schema, nil
}

func SchemaNames() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Schema) ResolveIdentityKey(item *etree.Element) (string, bool) {
	return s.CompareKey.Resolve(item)
}

func (s *Schema) ResolveRenameKey(item *etree.Element) (string, bool) {
	return s.RenameKey.Resolve(item)
}

func (s *Schema) ResolveStock(item *etree.Element) (string, bool) {
	return KeyPolicy{s.StockField}.Resolve(item)
}

func (s *Schema) ResolvePrice(item *etree.Element) (string, bool) {
	return s.PriceFields.Resolve(item)
}

func (s *Schema) itemPath() string {
	return "//" + s.ItemTag
}

func (s *Schema) findItems(doc *etree.Document) []*etree.Element {
	return doc.FindElements(s.itemPath())
}
