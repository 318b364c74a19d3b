package rag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pdf "github.com/dslipak/pdf"

	"github.com/josinaldojr/bedrock-rag/internal/config"
)

// AllowedExt é a única extensão indexada; o resto é ignorado em silêncio.
const AllowedExt = ".pdf"

type TextExtractor interface {
	ExtractText(path string) (string, error)
}

// ListPDFs lists the qualifying files directly under dir (no recursion),
// sorted by name.
func ListPDFs(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &config.ConfigurationError{Reason: fmt.Sprintf("data directory %q does not exist", dir)}
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, &config.ConfigurationError{Reason: fmt.Sprintf("data directory %q is not a directory", dir)}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), AllowedExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// PDFExtractor extrai texto puro via dslipak/pdf.
type PDFExtractor struct{}

func (PDFExtractor) ExtractText(path string) (text string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	// o parser entra em pânico em PDFs malformados
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf %s: %v", path, r)
		}
	}()

	r, err := pdf.NewReader(f, st.Size())
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf %s: %w", path, err)
	}

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}

	return sanitizeUTF8(strings.TrimSpace(buf.String())), nil
}
