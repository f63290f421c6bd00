package brandmatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CorpusLoader supplies the reference corpus.
type CorpusLoader interface {
	Load(ctx context.Context) (*Corpus, error)
}

// FileLoader reads the first column of a CSV, TSV, XLSX or plain text file.
type FileLoader struct {
	Path   string
	Header HeaderMode
	// Sheet selects the worksheet of an XLSX file; empty means the first one.
	Sheet string
}

// Load reads the file and builds the corpus. Failures wrap ErrDataSource.
func (l FileLoader) Load(ctx context.Context) (*Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(l.Path) == "" {
		return nil, fmt.Errorf("%w: no corpus path configured", ErrDataSource)
	}
	values, err := ReadFirstColumn(l.Path, l.Header, l.Sheet)
	if err != nil {
		return nil, err
	}
	corpus := NewCorpus(values)
	if corpus.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no usable rows", ErrDataSource, filepath.Base(l.Path))
	}
	return corpus, nil
}

// StaticLoader serves a fixed list of terms.
type StaticLoader []string

// Load builds the corpus from the list.
func (s StaticLoader) Load(ctx context.Context) (*Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	corpus := NewCorpus(s)
	if corpus.Len() == 0 {
		return nil, fmt.Errorf("%w: term list is empty", ErrDataSource)
	}
	return corpus, nil
}

// LoadCorpus is a shorthand for FileLoader{Path: path, Header: mode}.Load.
func LoadCorpus(ctx context.Context, path string, mode HeaderMode) (*Corpus, error) {
	return FileLoader{Path: path, Header: mode}.Load(ctx)
}

// ReadFirstColumn returns the non-empty first-column cells of a file, with the
// header row removed according to mode.
func ReadFirstColumn(path string, mode HeaderMode, sheet string) ([]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbookRows(path, sheet)
	case ".txt":
		rows, err = readLineRows(path)
	case ".tsv":
		rows, err = readDelimitedRows(path, '\t')
	default:
		rows, err = readDelimitedRows(path, 0)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDataSource, filepath.Base(path))
	}
	start := 0
	switch mode {
	case HeaderPresent:
		start = 1
	case HeaderAbsent:
	default:
		if len(rows[0]) > 0 && looksLikeHeader(rows[0][0]) {
			start = 1
		}
	}
	out := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(strings.TrimRight(cleanCell(row[0]), ";"))
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out, nil
}

// ParseTerms splits free text into terms by newline or semicolon.
func ParseTerms(data string) []string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	tokens := strings.FieldsFunc(data, func(r rune) bool {
		return r == '\n' || r == ';'
	})
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{})
	for _, token := range tokens {
		key := NormalizeTerm(token)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(token))
	}
	return out
}

func readDelimitedRows(path string, comma rune) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDataSource, filepath.Base(path), err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if comma == 0 {
		comma = sniffDelimiter(data)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrDataSource, filepath.Base(path), err)
	}
	return rows, nil
}

// sniffDelimiter picks ';' or ',' by counting unquoted occurrences in the
// first lines of data.
func sniffDelimiter(data []byte) rune {
	const maxLines = 20
	var commas, semis, lines int
	inQuotes := false
	for _, b := range data {
		switch b {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				commas++
			}
		case ';':
			if !inQuotes {
				semis++
			}
		case '\n':
			if !inQuotes {
				lines++
			}
		}
		if lines >= maxLines {
			break
		}
	}
	if semis > commas {
		return ';'
	}
	return ','
}

func readLineRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDataSource, filepath.Base(path), err)
	}
	defer f.Close()
	var rows [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		rows = append(rows, []string{scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", ErrDataSource, filepath.Base(path), err)
	}
	return rows, nil
}

func readWorkbookRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrDataSource, filepath.Base(path), err)
	}
	defer f.Close()
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		return nil, fmt.Errorf("%w: %s has no worksheets", ErrDataSource, filepath.Base(path))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q of %s: %w", ErrDataSource, sheet, filepath.Base(path), err)
	}
	return rows, nil
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}
