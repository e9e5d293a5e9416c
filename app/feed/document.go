package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	utf8BOM         = []byte{0xEF, 0xBB, 0xBF}
	declEncodingRe  = regexp.MustCompile(`(?i)^(\s*<\?xml[^>]*?encoding\s*=\s*["'])([A-Za-z0-9._:-]+)(["'])`)
	opaqueSectionRe = regexp.MustCompile(`(?s)<!\[CDATA\[.*?\]\]>|<!--.*?-->`)
	cdataPrefix     = []byte("<![CDATA[")
)

// normalizeEncoding returns data as UTF-8. Documents declaring a legacy charset
// are decoded and their declaration is rewritten to UTF-8 so the XML decoder
// does not convert them a second time.
func normalizeEncoding(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	m := declEncodingRe.FindSubmatchIndex(data)
	if m == nil {
		return data, nil
	}

	label := string(data[m[4]:m[5]])
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding '%s': %w", label, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		if strings.EqualFold(label, "utf-8") {
			return data, nil
		}
		return declareUTF8(data, m), nil
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s document: %w", label, err)
	}

	m = declEncodingRe.FindSubmatchIndex(decoded)
	if m == nil {
		return decoded, nil
	}
	return declareUTF8(decoded, m), nil
}

func declareUTF8(data []byte, m []int) []byte {
	out := make([]byte, 0, len(data))
	out = append(out, data[:m[4]]...)
	out = append(out, "UTF-8"...)
	out = append(out, data[m[5]:]...)
	return out
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding '%s': %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// ParseDocument reads a feed into an element tree with CDATA sections kept as
// CDATA. Strict mode rejects any malformed markup. Lenient mode repairs
// mismatched and missing end tags and keeps going, and when the input becomes
// unreadable it returns the elements read up to that point.
func ParseDocument(data []byte, mode ParseMode) (*etree.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	normalized, err := normalizeEncoding(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if mode == ParseLenient {
		return parseLenient(normalized)
	}
	return parseStrict(normalized)
}

func parseStrict(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charsetReader,
		PreserveCData: true,
	}

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	roots := 0
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			roots++
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return nil, fmt.Errorf("%w: text outside the root element", ErrParse)
			}
		}
	}
	switch {
	case roots == 0:
		return nil, fmt.Errorf("%w: no root element", ErrParse)
	case roots > 1:
		return nil, fmt.Errorf("%w: content after the root element <%s>", ErrParse, doc.Root().Tag)
	}

	return doc, nil
}

func parseLenient(data []byte) (*etree.Document, error) {
	doc, repairs, err := readLenient(data)
	if doc.Root() == nil {
		if err == nil {
			err = errors.New("no root element")
		}
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err != nil {
		slog.Warn("Stopped at unreadable markup, keeping elements read so far", "root", doc.Root().Tag, "error", err)
	}
	if repairs > 0 {
		slog.Warn("Recovered from malformed markup", "root", doc.Root().Tag, "repairs", repairs)
	}

	return doc, nil
}

// readLenient builds the tree from raw tokens, closing elements the markup
// leaves open. An end tag closes the nearest open element with its name
// together with everything nested inside it. End tags matching no open
// element are dropped, and void HTML tags such as <br> are closed at once.
// repairs counts each of these fixes.
func readLenient(data []byte) (*etree.Document, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charsetReader

	doc := etree.NewDocument()
	stack := []*etree.Element{&doc.Element}
	repairs := 0

	for {
		offset := dec.InputOffset()
		tok, err := dec.RawToken()
		if err == io.EOF {
			repairs += len(stack) - 1
			return doc, repairs, nil
		}
		if err != nil {
			return doc, repairs, err
		}

		if top := stack[len(stack)-1]; isVoidTag(top) && !closesElement(tok, top) {
			stack = stack[:len(stack)-1]
			repairs++
		}
		top := stack[len(stack)-1]

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 1 && doc.Root() != nil {
				return doc, repairs, fmt.Errorf("content after the root element <%s>", doc.Root().Tag)
			}
			el := top.CreateElement(qualifiedName(t.Name))
			for _, attr := range t.Attr {
				el.CreateAttr(qualifiedName(attr.Name), attr.Value)
			}
			stack = append(stack, el)
		case xml.EndElement:
			i := len(stack) - 1
			for i > 0 && !closesElement(t, stack[i]) {
				i--
			}
			if i == 0 {
				repairs++
				continue
			}
			repairs += len(stack) - 1 - i
			stack = stack[:i]
		case xml.CharData:
			if bytes.HasPrefix(data[offset:], cdataPrefix) {
				top.CreateCData(string(t))
			} else {
				top.CreateText(string(t))
			}
		case xml.Comment:
			top.CreateComment(string(t))
		case xml.Directive:
			top.CreateDirective(string(t))
		case xml.ProcInst:
			top.CreateProcInst(t.Target, string(t.Inst))
		}
	}
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func closesElement(tok xml.Token, el *etree.Element) bool {
	end, ok := tok.(xml.EndElement)
	return ok && end.Name.Space == el.Space && end.Name.Local == el.Tag
}

func isVoidTag(el *etree.Element) bool {
	for _, tag := range xml.HTMLAutoClose {
		if strings.EqualFold(tag, el.FullTag()) {
			return true
		}
	}
	return false
}

// CountItems parses data leniently and counts item elements. Any parse failure
// counts as zero.
func CountItems(schema *Schema, data []byte) int {
	doc, err := ParseDocument(data, ParseLenient)
	if err != nil {
		return 0
	}
	return len(schema.findItems(doc))
}

// countItemTags counts item start tags in the raw markup, ignoring CDATA
// sections and comments. It does not depend on the markup being readable, so
// it exposes items a lenient parse lost.
func countItemTags(schema *Schema, data []byte) int {
	stripped := opaqueSectionRe.ReplaceAll(data, nil)
	re := regexp.MustCompile(`<` + regexp.QuoteMeta(schema.ItemTag) + `[\s/>]`)
	return len(re.FindAllIndex(stripped, -1))
}
