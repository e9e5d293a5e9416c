package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"
	"github.com/mmcdole/gofeed"
)

type Transformer struct {
	prefix string
}

func NewTransformer(prefix string) *Transformer {
	return &Transformer{prefix: prefix}
}

// Run parses data with the schema's parse mode and prefixes the target field
// of every item that has a rename key. Items already carrying the prefix are
// left alone, so running twice changes nothing the second time.
func (t *Transformer) Run(schema *Schema, data []byte) (*TransformResult, error) {
	if t.prefix == "" {
		return nil, fmt.Errorf("%w: prefix must not be empty", ErrConfig)
	}

	doc, err := ParseDocument(data, schema.ParseMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s feed: %w", schema.Title, err)
	}

	items := schema.findItems(doc)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no <%s> nodes found in %s feed%s",
			ErrStructure, schema.ItemTag, schema.Title, detectedFeedType(data))
	}
	if tags := countItemTags(schema, data); tags > len(items) {
		return nil, fmt.Errorf("%w: recovered only %d of %d <%s> nodes in %s feed",
			ErrParse, len(items), tags, schema.ItemTag, schema.Title)
	}

	updated := 0
	for _, item := range items {
		parsed, ok := schema.parseItem(item, schema.RenameKey)
		if !ok {
			continue
		}
		if t.rewrite(schema, parsed) {
			updated++
		}
	}

	slog.Debug("Target fields rewritten", "feed", schema.Name, "field", schema.Target.Field, "updated", updated, "items", len(items))

	return &TransformResult{
		UpdatedCount: updated,
		ItemCount:    CountItems(schema, data),
		Document:     doc,
	}, nil
}

func (t *Transformer) rewrite(schema *Schema, item ParsedItem) bool {
	target := item.node.SelectElement(schema.Target.Field)
	if target == nil {
		if !schema.Target.CreateMissing {
			return false
		}
		target = item.node.CreateElement(schema.Target.Field)
	}

	current := strings.TrimSpace(target.Text())

	source := item.Key
	if schema.Target.Source == "" {
		if current == "" {
			return false
		}
		source = current
	}

	if strings.HasPrefix(current, t.prefix) {
		return false
	}

	setText(target, t.prefix+source)
	return true
}

// setText replaces the element's text, keeping it a CDATA section when it
// was one.
func setText(el *etree.Element, text string) {
	for _, tok := range el.Child {
		if cd, ok := tok.(*etree.CharData); ok && cd.IsCData() {
			el.SetCData(text)
			return
		}
	}
	el.SetText(text)
}

func detectedFeedType(data []byte) string {
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeRSS:
		return " (document is an RSS feed)"
	case gofeed.FeedTypeAtom:
		return " (document is an Atom feed)"
	case gofeed.FeedTypeJSON:
		return " (document is a JSON feed)"
	default:
		return ""
	}
}
