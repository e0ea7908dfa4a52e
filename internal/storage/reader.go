package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/nanodiscover/internal/model"
)

var (
	ErrInvalidHeader = errors.New("invalid .nano file header")
	ErrCorrupt       = errors.New("corrupt .nano file")
)

const footerSize = 20

// DocumentIterator provides a row-by-row view of a snapshot.
type DocumentIterator interface {
	Next() bool
	Document() model.Document
	Error() error
	Close() error
}

type ColumnReader struct {
	decoder *zstd.Decoder
}

func NewColumnReader() (*ColumnReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnReader{decoder: dec}, nil
}

// Close releases the decoder.
func (cr *ColumnReader) Close() {
	cr.decoder.Close()
}

// ReadSnapshot reads every document of a .nano file.
func ReadSnapshot(filename string) ([]model.Document, error) {
	cr, err := NewColumnReader()
	if err != nil {
		return nil, err
	}
	defer cr.Close()
	return cr.ReadSnapshot(filename, model.TimeRange{})
}

// ReadSnapshot reads the documents of a .nano file that fall inside tr.
func (cr *ColumnReader) ReadSnapshot(filename string, tr model.TimeRange) ([]model.Document, error) {
	it, err := cr.NewIterator(filename, tr)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	docs := []model.Document{}
	for it.Next() {
		docs = append(docs, it.Document())
	}
	return docs, it.Error()
}

// NewIterator opens a .nano file. Files whose footer range lies outside a
// bounded tr yield no rows without decompressing any column.
func (cr *ColumnReader) NewIterator(filename string, tr model.TimeRange) (DocumentIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	it := &FileIterator{reader: cr, file: f, tr: tr, cursor: -1}
	if err := it.init(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return it, nil
}

type FileIterator struct {
	reader *ColumnReader
	file   *os.File
	tr     model.TimeRange

	cols     [][]string
	rowCount int
	cursor   int
	curr     model.Document
	err      error
}

func (it *FileIterator) init() error {
	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(it.file, header); err != nil {
		return ErrInvalidHeader
	}
	if !bytes.Equal(header, MagicHeader) {
		return ErrInvalidHeader
	}

	info, err := it.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < int64(len(MagicHeader)+footerSize) {
		return fmt.Errorf("%w: file too small", ErrCorrupt)
	}

	footer := make([]byte, footerSize)
	if _, err := it.file.ReadAt(footer, info.Size()-footerSize); err != nil {
		return err
	}
	rowCount := int(binary.LittleEndian.Uint32(footer[0:4]))
	minTs := int64(binary.LittleEndian.Uint64(footer[4:12]))
	maxTs := int64(binary.LittleEndian.Uint64(footer[12:20]))

	if rowCount == 0 {
		return nil
	}
	if !it.tr.From.IsZero() && maxTs < it.tr.From.UnixMilli() {
		return nil
	}
	if !it.tr.To.IsZero() && minTs > it.tr.To.UnixMilli() {
		return nil
	}

	it.cols = make([][]string, len(columnNames))
	for i, name := range columnNames {
		data, err := it.reader.readAndDecompress(it.file)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		col, err := bytesToStringSlice(data)
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		if len(col) != rowCount {
			return fmt.Errorf("%w: column %s has %d rows, footer says %d", ErrCorrupt, name, len(col), rowCount)
		}
		it.cols[i] = col
	}
	it.rowCount = rowCount
	return nil
}

func (it *FileIterator) Next() bool {
	for it.err == nil {
		it.cursor++
		if it.cursor >= it.rowCount {
			return false
		}

		i := it.cursor
		d := model.Document{
			ID:        it.cols[0][i],
			Timestamp: it.cols[1][i],
			Message:   it.cols[2][i],
			Level:     it.cols[3][i],
			Service:   it.cols[4][i],
			Tenant:    it.cols[5][i],
			TraceID:   it.cols[6][i],
			SpanID:    it.cols[7][i],
		}
		if !it.tr.Includes(&d) {
			continue
		}

		d.Attributes = map[string]any{}
		if raw := it.cols[8][i]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &d.Attributes); err != nil {
				it.err = fmt.Errorf("%w: attributes of %s: %v", ErrCorrupt, d.ID, err)
				return false
			}
		}
		it.curr = d
		return true
	}
	return false
}

func (it *FileIterator) Document() model.Document {
	return it.curr
}

func (it *FileIterator) Error() error {
	return it.err
}

func (it *FileIterator) Close() error {
	return it.file.Close()
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
func (cr *ColumnReader) readAndDecompress(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return cr.decoder.DecodeAll(compressed, nil)
}

// bytesToStringSlice decodes [Len uint32][Bytes]... into strings.
func bytesToStringSlice(data []byte) ([]string, error) {
	var result []string
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, ErrCorrupt
		}
		n := binary.LittleEndian.Uint32(data)
		data = data[4:]
		if uint64(n) > uint64(len(data)) {
			return nil, ErrCorrupt
		}
		result = append(result, string(data[:n]))
		data = data[n:]
	}
	return result, nil
}
