package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// Document is an opened source file with 1-based pages of native text.
type Document interface {
	Path() string
	NumPages() int
	PageText(page int) (string, error)
	Close() error
}

var ErrUnsupportedFormat = errors.New("unsupported file format")

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SupportedExtensions lists the source formats Open accepts.
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".txt"}

// Open opens a source document, choosing a reader by file extension.
func Open(filePath string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return openPDF(filePath)
	case ".docx":
		return openDOCX(filePath)
	case ".pptx":
		return openPPTX(filePath)
	case ".xlsx":
		return openXLSX(filePath)
	case ".xlsm", ".xltx":
		return openExcelize(filePath)
	case ".txt":
		return openText(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// IsPDF reports whether a path names a PDF file, the only format that can be OCR scanned.
func IsPDF(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".pdf")
}

// Supported reports whether Open can read the file.
func Supported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

type pdfDocument struct {
	path   string
	file   *os.File
	reader *pdf.Reader
}

func openPDF(filePath string) (*pdfDocument, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pdf %s: %w", filePath, err)
	}
	return &pdfDocument{path: filePath, file: f, reader: reader}, nil
}

func (d *pdfDocument) Path() string  { return d.path }
func (d *pdfDocument) NumPages() int { return d.reader.NumPage() }
func (d *pdfDocument) Close() error  { return d.file.Close() }

// PageText returns the embedded text layer of a page. The pdf reader panics on
// some malformed content streams, so a panic is reported as an error.
func (d *pdfDocument) PageText(page int) (text string, err error) {
	if page < 1 || page > d.NumPages() {
		return "", fmt.Errorf("page %d out of range", page)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read page %d: %v", page, r)
		}
	}()

	p := d.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// memDocument holds formats that are read whole at open time.
type memDocument struct {
	path  string
	pages []string
}

func (d *memDocument) Path() string  { return d.path }
func (d *memDocument) NumPages() int { return len(d.pages) }
func (d *memDocument) Close() error  { return nil }

func (d *memDocument) PageText(page int) (string, error) {
	if page < 1 || page > len(d.pages) {
		return "", fmt.Errorf("page %d out of range", page)
	}
	return d.pages[page-1], nil
}

// DOCX has no page boundaries so the whole body is one page
func openDOCX(filePath string) (*memDocument, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	text, err := ooxmlText(r.Editable().GetContent(), "t", "p")
	if err != nil {
		return nil, fmt.Errorf("failed to read docx %s: %w", filePath, err)
	}
	return &memDocument{path: filePath, pages: []string{text}}, nil
}

// each slide is a page, in slide number order
func openPPTX(filePath string) (*memDocument, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		text, err := ooxmlText(string(data), "t", "p")
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", num, err)
		}
		slides = append(slides, slide{num: num, text: text})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	doc := &memDocument{path: filePath}
	for _, s := range slides {
		doc.pages = append(doc.pages, s.text)
	}
	return doc, nil
}

// each sheet is a page
func openXLSX(filePath string) (*memDocument, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	doc := &memDocument{path: filePath}
	for _, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		doc.pages = append(doc.pages, text.String())
	}
	return doc, nil
}

func openExcelize(filePath string) (*memDocument, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := &memDocument{path: filePath}
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		doc.pages = append(doc.pages, text.String())
	}
	return doc, nil
}

// plain text pages are separated by form feeds
func openText(filePath string) (*memDocument, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return &memDocument{path: filePath, pages: strings.Split(string(data), "\f")}, nil
}

// ooxmlText collects character data inside text elements, ending a line at
// every paragraph element.
func ooxmlText(content, textElem, paraElem string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textElem {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textElem:
				inText = false
			case paraElem:
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
