package feed

import (
	"errors"

	"github.com/beevik/etree"
)

var (
	ErrConfig    = errors.New("invalid transform configuration")
	ErrParse     = errors.New("feed document could not be parsed")
	ErrStructure = errors.New("feed document has no items")
	ErrWrite     = errors.New("feed document could not be written")
)

// ParsedItem is the key/stock/price projection of one feed record.
type ParsedItem struct {
	Key   string  `json:"key"`
	Stock *string `json:"stock"`
	Price *string `json:"price"`

	node *etree.Element
}

// FeedIndex maps identity keys to items. Later duplicates overwrite earlier ones.
type FeedIndex map[string]ParsedItem

type TransformResult struct {
	UpdatedCount int
	ItemCount    int
	Document     *etree.Document
}

type FieldDiff struct {
	Key      string  `json:"key"`
	Original *string `json:"original"`
	Cloned   *string `json:"cloned"`
}

type ComparisonReport struct {
	OriginalCount int         `json:"original_count"`
	ClonedCount   int         `json:"cloned_count"`
	MissingKeys   []string    `json:"missing_keys"`
	ExtraKeys     []string    `json:"extra_keys"`
	StockDiffs    []FieldDiff `json:"stock_diffs"`
	PriceDiffs    []FieldDiff `json:"price_diffs"`
	TotalDiffs    int         `json:"total_diffs"`
}

func (s *Schema) parseItem(item *etree.Element, policy KeyPolicy) (ParsedItem, bool) {
	key, ok := policy.Resolve(item)
	if !ok {
		return ParsedItem{}, false
	}

	parsed := ParsedItem{Key: key, node: item}
	if stock, ok := s.ResolveStock(item); ok {
		parsed.Stock = &stock
	}
	if price, ok := s.ResolvePrice(item); ok {
		parsed.Price = &price
	}
	return parsed, true
}

// BuildIndex indexes every item of doc by the schema's comparison key. Items
// without a resolvable key are left out.
func BuildIndex(schema *Schema, doc *etree.Document) FeedIndex {
	index := make(FeedIndex)
	for _, item := range schema.findItems(doc) {
		parsed, ok := schema.parseItem(item, schema.CompareKey)
		if !ok {
			continue
		}
		parsed.node = nil
		index[parsed.Key] = parsed
	}
	return index
}
