package nzb

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// Namespace is the NZB 1.1 XML namespace.
	Namespace = "http://www.newzbin.com/DTD/2003/nzb"
	doctype   = `<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">`
)

// NZB is a parsed document.
type NZB struct {
	XMLName xml.Name `xml:"nzb"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	Head    *Head    `xml:"head,omitempty"`
	Files   []File   `xml:"file"`
}

// Head carries document metadata.
type Head struct {
	Meta []Meta `xml:"meta"`
}

// Meta is one typed metadata entry such as title or password.
type Meta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// File is one posted file.
type File struct {
	Poster   string    `xml:"poster,attr"`
	Date     int64     `xml:"date,attr"`
	Subject  string    `xml:"subject,attr"`
	Groups   []string  `xml:"groups>group"`
	Segments []Segment `xml:"segments>segment"`
}

// Segment is one article.
type Segment struct {
	Bytes     int64  `xml:"bytes,attr"`
	Number    int    `xml:"number,attr"`
	MessageID string `xml:",chardata"`
}

var quotedName = regexp.MustCompile(`"([^"]+)"`)

// Name extracts the file name from the subject: the first quoted string, or
// the subject up to the yEnc part counter.
func (f File) Name() string {
	if match := quotedName.FindStringSubmatch(f.Subject); match != nil {
		return match[1]
	}
	subject := strings.TrimSpace(f.Subject)
	if idx := strings.Index(subject, " yEnc"); idx > 0 {
		subject = strings.TrimSpace(subject[:idx])
	}
	return subject
}

// Bytes sums the encoded article sizes.
func (f File) Bytes() int64 {
	var total int64
	for _, seg := range f.Segments {
		total += seg.Bytes
	}
	return total
}

// SortSegments orders segments by number.
func (f *File) SortSegments() {
	sort.SliceStable(f.Segments, func(i, j int) bool {
		return f.Segments[i].Number < f.Segments[j].Number
	})
}

// TotalSegments counts the articles in the document.
func (n *NZB) TotalSegments() int {
	total := 0
	for _, file := range n.Files {
		total += len(file.Segments)
	}
	return total
}

// TotalBytes sums the encoded size of every article.
func (n *NZB) TotalBytes() int64 {
	var total int64
	for _, file := range n.Files {
		total += file.Bytes()
	}
	return total
}

// MetaValue returns the first metadata value of the given type.
func (n *NZB) MetaValue(kind string) string {
	if n.Head == nil {
		return ""
	}
	for _, meta := range n.Head.Meta {
		if meta.Type == kind {
			return meta.Value
		}
	}
	return ""
}

// SetMeta replaces or adds a metadata entry.
func (n *NZB) SetMeta(kind, value string) {
	if n.Head == nil {
		n.Head = &Head{}
	}
	for i := range n.Head.Meta {
		if n.Head.Meta[i].Type == kind {
			n.Head.Meta[i].Value = value
			return
		}
	}
	n.Head.Meta = append(n.Head.Meta, Meta{Type: kind, Value: value})
}

// Parse decodes an NZB document.
func Parse(r io.Reader) (*NZB, error) {
	var doc NZB
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode nzb: %w", err)
	}
	for i := range doc.Files {
		for j := range doc.Files[i].Segments {
			seg := &doc.Files[i].Segments[j]
			seg.MessageID = strings.Trim(strings.TrimSpace(seg.MessageID), "<>")
		}
	}
	return &doc, nil
}

// ParseFile reads and decodes the NZB at path.
func ParseFile(path string) (*NZB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open nzb: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Write encodes the document with the NZB 1.1 header.
func Write(w io.Writer, doc *NZB) error {
	out := *doc
	out.Xmlns = Namespace
	if _, err := io.WriteString(w, xml.Header+doctype+"\n"); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(&out); err != nil {
		return fmt.Errorf("encode nzb: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile writes the document atomically: a temp file in the target
// directory renamed over path.
func WriteFile(path string, doc *NZB) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create nzb dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".nzb-*")
	if err != nil {
		return fmt.Errorf("create temp nzb: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp nzb: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename nzb: %w", err)
	}
	return nil
}
