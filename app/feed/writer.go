package feed

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

const xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

type Writer struct {
	rename func(oldpath, newpath string) error
}

func NewWriter() *Writer {
	return &Writer{rename: os.Rename}
}

// TempPath returns the sibling file a write goes through, e.g. ebi_out_tmp.xml.
func TempPath(dest string) string {
	ext := filepath.Ext(dest)
	return strings.TrimSuffix(dest, ext) + "_tmp" + ext
}

// Write serializes doc to dest through a temp file and an atomic rename. The
// destination is never left partially written.
func (w *Writer) Write(doc *etree.Document, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: failed to create output directory: %v", ErrWrite, err)
	}

	tmp := TempPath(dest)
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", ErrWrite, tmp, err)
	}

	defer func() {
		if err == nil {
			return
		}
		f.Close()
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("Failed to remove temp file", "path", tmp, "error", rmErr)
		}
	}()

	if err = encode(f, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err = w.rename(tmp, dest); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", ErrWrite, dest, err)
	}

	return nil
}

// encode writes the UTF-8 declaration followed by doc from its root element
// on. The document's own declaration and the whitespace before the root are
// dropped so the output carries exactly one declaration.
func encode(w io.Writer, doc *etree.Document) error {
	settings := etree.WriteSettings{
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(xmlDeclaration)

	inProlog := true
	for _, tok := range doc.Child {
		if inProlog {
			switch t := tok.(type) {
			case *etree.ProcInst:
				if t.Target == "xml" {
					continue
				}
			case *etree.CharData:
				if strings.TrimSpace(t.Data) == "" {
					continue
				}
			case *etree.Element:
				inProlog = false
			}
		}
		tok.WriteTo(bw, &settings)
	}

	return bw.Flush()
}
