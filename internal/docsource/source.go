// Package docsource loads documents from files on disk and reloads them
// when the files change.
//
// Supported formats, by extension: .json (one document or an array),
// .ndjson and .jsonl (one document per line), .nano snapshots, and any of
// the JSON formats compressed with zstd (.json.zst, .ndjson.zst; a bare .zst
// is read as NDJSON).
package docsource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanodiscover/internal/logging"
	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/storage"
)

// ErrUnsupported is returned by LoadFile for unknown file extensions.
var ErrUnsupported = errors.New("unsupported document file type")

const maxLineSize = 16 << 20

// idNamespace seeds the deterministic ids given to documents without one,
// so reloading an unchanged file yields the same ids.
var idNamespace = uuid.MustParse("6b1d7f4e-2c1a-4a36-9a53-2f8e0c6f1d90")

// Options configures a Source.
type Options struct {
	Debounce time.Duration // watch debounce, default 250ms
	Logger   *slog.Logger
}

// Source reads every file matched by a set of glob patterns.
type Source struct {
	patterns []string
	debounce time.Duration
	log      *slog.Logger
}

// New creates a Source over patterns (doublestar syntax, ** allowed).
func New(patterns []string, opts Options) *Source {
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	return &Source{
		patterns: patterns,
		debounce: opts.Debounce,
		log:      logging.Default(opts.Logger).With("component", "docsource"),
	}
}

// Files returns the files currently matched by the patterns.
func (s *Source) Files() ([]string, error) {
	return discoverFiles(s.patterns)
}

// Load reads all matched files in path order. Files with an unknown
// extension are skipped; any other failure aborts the load.
func (s *Source) Load() ([]model.Document, error) {
	files, err := discoverFiles(s.patterns)
	if err != nil {
		return nil, err
	}

	docs := []model.Document{}
	for _, path := range files {
		loaded, err := LoadFile(path)
		if errors.Is(err, ErrUnsupported) {
			s.log.Debug("skipping file", "path", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	s.log.Info("documents loaded", "files", len(files), "documents", len(docs))
	return docs, nil
}

// LoadFile reads one document file. Documents without an id get one
// derived from the path and position; missing attributes become an empty map.
func LoadFile(path string) ([]model.Document, error) {
	docs, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s#%d", path, i))).String()
		}
		if docs[i].Attributes == nil {
			docs[i].Attributes = map[string]any{}
		}
	}
	return docs, nil
}

func loadFile(path string) ([]model.Document, error) {
	name := strings.ToLower(filepath.Base(path))

	if strings.HasSuffix(name, ".nano") {
		return storage.ReadSnapshot(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
		name = strings.TrimSuffix(name, ".zst")
		if filepath.Ext(name) == "" {
			name += ".ndjson"
		}
	}

	switch filepath.Ext(name) {
	case ".json":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		var p fastjson.Parser
		return model.ParseDocuments(&p, data)
	case ".ndjson", ".jsonl":
		return readNDJSON(r)
	}
	return nil, ErrUnsupported
}

// readNDJSON parses one document per non-blank line.
func readNDJSON(r io.Reader) ([]model.Document, error) {
	var p fastjson.Parser
	docs := []model.Document{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		v, err := p.ParseBytes(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d, err := model.DocumentFromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
