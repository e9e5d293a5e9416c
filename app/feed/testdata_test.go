package feed

import (
	"bytes"
	"testing"

	"github.com/beevik/etree"
)

const testPrefix = "isteburada_"

const ebiFeed = `<?xml version="1.0" encoding="UTF-8"?>
<Urunler>
  <Urun>
    <product_id>1001</product_id>
    <stok_kodu>ABC123</stok_kodu>
    <urun_adi><![CDATA[Kolye & Küpe <Set>]]></urun_adi>
    <miktar>5</miktar>
    <fiyat>10.00</fiyat>
    <barcode>8690000000001</barcode>
  </Urun>
  <Urun>
    <product_id>1002</product_id>
    <stok_kodu>DEF456</stok_kodu>
    <miktar>0</miktar>
    <bayi_fiyati>7.50</bayi_fiyati>
  </Urun>
  <Urun>
    <product_id>1003</product_id>
    <miktar>3</miktar>
  </Urun>
</Urunler>
`

const tktFeed = `<?xml version="1.0" encoding="UTF-8"?>
<data>
  <post>
    <ID>1</ID>
    <Sku>TK-001</Sku>
    <Title><![CDATA[Phone <b>case</b>]]></Title>
    <Stock>12</Stock>
    <Price>99.90</Price>
  </post>
  <post>
    <ID>2</ID>
    <Sku>isteburada_TK-002</Sku>
    <Stock>1</Stock>
    <Price>5.00</Price>
  </post>
  <post>
    <ID>3</ID>
    <Stock>4</Stock>
    <Price>1.00</Price>
  </post>
</data>
`

func mustSchema(t *testing.T, name string) *Schema {
	t.Helper()
	schema, err := LookupSchema(name)
	if err != nil {
		t.Fatal(err)
	}
	return schema
}

func serialize(t *testing.T, doc *etree.Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(&buf, doc); err != nil {
		t.Fatalf("Failed to serialize document: %v", err)
	}
	return buf.String()
}
