// Package ooxml loads a WordprocessingML package into a docmodel tree and
// writes it back. Only the main document part and the header and footer
// parts it references are parsed; every other zip entry is copied through
// byte for byte, in its original order. Markup the model does not represent
// rides along in the Native fields so untouched content serializes as it
// was read.
package ooxml

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dgallion1/docfill/internal/docmodel"
)

const (
	wordNS          = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	defaultDocument = "word/document.xml"
	maxEntrySize    = 64 << 20
)

// FormatError reports an input that is not a readable WordprocessingML
// package.
type FormatError struct {
	Part string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Part == "" {
		return "ooxml: " + e.Err.Error()
	}
	return "ooxml: " + e.Part + ": " + e.Err.Error()
}

func (e *FormatError) Unwrap() error { return e.Err }

type entry struct {
	header zip.FileHeader
	data   []byte
}

type part struct {
	doc       *node
	container *node
	blocks    func() []docmodel.Block
}

// Package is an opened .docx file.
type Package struct {
	entries []entry
	parts   map[string]*part
	doc     *docmodel.Document
}

// OpenFile reads the package at path.
func OpenFile(name string) (*Package, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return OpenBytes(b)
}

// OpenBytes reads a package held in memory.
func OpenBytes(b []byte) (*Package, error) {
	return Open(bytes.NewReader(b), int64(len(b)))
}

// Open reads a package from r.
func Open(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	pkg := &Package{parts: make(map[string]*part)}
	index := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, &FormatError{Part: f.Name, Err: err}
		}
		pkg.entries = append(pkg.entries, entry{header: f.FileHeader, data: data})
		index[f.Name] = data
	}

	docName := mainPartName(index)
	raw, ok := index[docName]
	if !ok {
		return nil, &FormatError{Part: docName, Err: fmt.Errorf("missing main document part")}
	}
	tree, err := parseXML(bytes.NewReader(raw))
	if err != nil {
		return nil, &FormatError{Part: docName, Err: err}
	}
	body := root(tree).child("body")
	if root(tree).local() != "document" || body == nil {
		return nil, &FormatError{Part: docName, Err: fmt.Errorf("no document body")}
	}

	doc := &docmodel.Document{}
	rels := relationships(index, docName)
	loaded := make(map[string]*docmodel.HeaderFooter)
	load := func(id string) (*docmodel.HeaderFooter, error) {
		target, ok := rels[id]
		if !ok {
			return nil, fmt.Errorf("unknown relationship %q", id)
		}
		if hf, ok := loaded[target]; ok {
			return hf, nil
		}
		hf, err := pkg.loadHeaderFooter(target, index)
		if err != nil {
			return nil, err
		}
		loaded[target] = hf
		return hf, nil
	}

	var prev *docmodel.Section
	for _, sp := range sectionProperties(body) {
		s, err := buildSection(sp, prev, load)
		if err != nil {
			return nil, &FormatError{Part: docName, Err: err}
		}
		doc.Sections = append(doc.Sections, s)
		prev = s
	}

	doc.Body = decodeBlocks(body.children)
	pkg.doc = doc
	pkg.parts[docName] = &part{doc: tree, container: body, blocks: func() []docmodel.Block { return doc.Body }}
	return pkg, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry larger than %d bytes", maxEntrySize)
	}
	return data, nil
}

// Document returns the loaded tree. Edits to it are picked up by WriteTo.
func (p *Package) Document() *docmodel.Document {
	return p.doc
}

// Bytes serializes the package.
func (p *Package) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the package as a zip archive. Parsed parts are re-encoded
// from the model; all other entries are copied unchanged.
func (p *Package) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, e := range p.entries {
		data := e.data
		if pt, ok := p.parts[e.header.Name]; ok {
			pt.container.children = encodeBlocks(pt.blocks())
			data = marshalNode(pt.doc)
		}
		method := zip.Deflate
		if e.header.Method == zip.Store {
			method = zip.Store
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.header.Name,
			Method:   method,
			Modified: e.header.Modified,
		})
		if err != nil {
			return cw.n, err
		}
		if _, err := fw.Write(data); err != nil {
			return cw.n, err
		}
	}
	err := zw.Close()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

func (p *Package) loadHeaderFooter(name string, index map[string][]byte) (*docmodel.HeaderFooter, error) {
	raw, ok := index[name]
	if !ok {
		return nil, fmt.Errorf("missing part %s", name)
	}
	tree, err := parseXML(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	container := root(tree)
	hf := &docmodel.HeaderFooter{Blocks: decodeBlocks(container.children), Native: name}
	p.parts[name] = &part{doc: tree, container: container, blocks: func() []docmodel.Block { return hf.Blocks }}
	return hf, nil
}

// mainPartName follows the package relationship to the main document,
// falling back to the conventional location.
func mainPartName(index map[string][]byte) string {
	raw, ok := index["_rels/.rels"]
	if !ok {
		return defaultDocument
	}
	tree, err := parseXML(bytes.NewReader(raw))
	if err != nil {
		return defaultDocument
	}
	for _, rel := range root(tree).elements() {
		typ, _ := rel.attr("Type")
		if strings.HasSuffix(typ, "/officeDocument") {
			target, _ := rel.attr("Target")
			return strings.TrimPrefix(target, "/")
		}
	}
	return defaultDocument
}

// relationships maps relationship ids of a part to zip entry names.
func relationships(index map[string][]byte, partName string) map[string]string {
	dir, base := path.Split(partName)
	raw, ok := index[dir+"_rels/"+base+".rels"]
	out := make(map[string]string)
	if !ok {
		return out
	}
	tree, err := parseXML(bytes.NewReader(raw))
	if err != nil {
		return out
	}
	for _, rel := range root(tree).elements() {
		if mode, _ := rel.attr("TargetMode"); mode == "External" {
			continue
		}
		id, _ := rel.attr("Id")
		target, _ := rel.attr("Target")
		if strings.HasPrefix(target, "/") {
			out[id] = strings.TrimPrefix(target, "/")
		} else {
			out[id] = path.Join(dir, target)
		}
	}
	return out
}

// sectionProperties returns the sectPr elements of body in document order:
// those closing a section inside a paragraph, then the final one.
func sectionProperties(body *node) []*node {
	var out []*node
	for _, c := range body.elements() {
		switch c.local() {
		case "p":
			if pPr := c.child("pPr"); pPr != nil {
				if sp := pPr.child("sectPr"); sp != nil {
					out = append(out, sp)
				}
			}
		case "sectPr":
			out = append(out, c)
		}
	}
	return out
}

// buildSection resolves the header and footer references of sp. A kind not
// referenced is inherited from the previous section.
func buildSection(sp *node, prev *docmodel.Section, load func(string) (*docmodel.HeaderFooter, error)) (*docmodel.Section, error) {
	s := &docmodel.Section{}
	if prev != nil {
		*s = *prev
	}
	s.TitlePage = onOff(sp.child("titlePg"))
	for _, ref := range sp.elements() {
		local := ref.local()
		if local != "headerReference" && local != "footerReference" {
			continue
		}
		id, _ := ref.attr("id")
		hf, err := load(id)
		if err != nil {
			return nil, err
		}
		typ, _ := ref.attr("type")
		header := local == "headerReference"
		switch {
		case typ == "first" && header:
			s.FirstHeader = hf
		case typ == "first":
			s.FirstFooter = hf
		case typ == "even" && header:
			s.EvenHeader = hf
		case typ == "even":
			s.EvenFooter = hf
		case header:
			s.Header = hf
		default:
			s.Footer = hf
		}
	}
	return s, nil
}

// ParseTable decodes a standalone w:tbl fragment, as produced by TableXML.
func ParseTable(fragment string) (*docmodel.Table, error) {
	tree, err := parseXML(strings.NewReader(fragment))
	if err != nil {
		return nil, &FormatError{Part: "table", Err: err}
	}
	tbl := root(tree)
	if tbl.local() != "tbl" {
		return nil, &FormatError{Part: "table", Err: fmt.Errorf("root element is %s, want tbl", tbl.name)}
	}
	return decodeTable(tbl), nil
}

// TableXML encodes t as a standalone w:tbl fragment that declares the
// WordprocessingML namespace.
func TableXML(t *docmodel.Table) string {
	el := encodeTable(t)
	if !declaresWord(el) {
		el.attrs = append([]xml.Attr{{Name: xml.Name{Space: "xmlns", Local: "w"}, Value: wordNS}}, el.attrs...)
	}
	return string(marshalNode(el))
}

func declaresWord(el *node) bool {
	for _, a := range el.attrs {
		if a.Name.Space == "xmlns" && a.Name.Local == "w" {
			return true
		}
	}
	return false
}
