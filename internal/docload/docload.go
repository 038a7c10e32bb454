// Package docload turns document files into plain text for chunking.
// Formats are pluggable: an extension maps to an [Extractor] producing
// ordered text blocks, and callers join the blocks into one string.
// Plain text and Markdown ship built in; PDF or DOCX extraction registers
// through [Loader.Register] without touching any caller.
package docload

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/SebastianCielma/RAG/internal/ragerr"
)

// Extractor reads one file and returns its ordered text blocks
// (paragraphs, pages — whatever the format's natural unit is).
type Extractor func(path string) ([]string, error)

// Loader routes files to extractors by extension.
type Loader struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// New returns a Loader with the built-in plain-text and Markdown
// extractors registered.
func New() *Loader {
	l := &Loader{extractors: make(map[string]Extractor)}
	l.Register(".txt", readBlocks)
	l.Register(".md", readBlocks)
	l.Register(".markdown", readBlocks)
	return l
}

// Register maps a lowercase extension (with leading dot) to an extractor,
// replacing any previous registration.
func (l *Loader) Register(ext string, fn Extractor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extractors[strings.ToLower(ext)] = fn
}

// Supported returns the registered extensions, sorted.
func (l *Loader) Supported() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	exts := make([]string, 0, len(l.extractors))
	for ext := range l.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Load extracts the full text of the file at path, blocks joined by blank
// lines. Unsupported extensions and unreadable files fail with a
// document-load error.
func (l *Loader) Load(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	l.mu.RLock()
	fn, ok := l.extractors[ext]
	l.mu.RUnlock()
	if !ok {
		return "", ragerr.Newf(ragerr.KindDocumentLoad,
			"unsupported document format %q (supported: %s)",
			ext, strings.Join(l.Supported(), ", "))
	}

	blocks, err := fn(path)
	if err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n\n"), nil
}

// blankLineRE separates paragraphs in plain-text formats.
var blankLineRE = regexp.MustCompile(`\n[ \t]*\n+`)

// readBlocks extracts paragraphs from a plain-text or Markdown file.
// Content is not rendered or rewritten; blocks are the blank-line-separated
// runs of the raw file.
func readBlocks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.KindDocumentLoad,
			fmt.Sprintf("read %s", path), err)
	}

	var blocks []string
	for _, b := range blankLineRE.Split(string(data), -1) {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}
