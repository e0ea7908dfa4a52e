package storage

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// MagicHeader opens every snapshot file.
var MagicHeader = []byte("NDISCOV1")

// Columns in file order. Attributes are stored as JSON text.
var columnNames = []string{
	"id", "timestamp", "message", "level", "service", "tenant", "traceId", "spanId", "attributes",
}

type ColumnWriter struct {
	encoder *zstd.Encoder
}

func NewColumnWriter() (*ColumnWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnWriter{encoder: enc}, nil
}

// Close releases the encoder.
func (cw *ColumnWriter) Close() error {
	return cw.encoder.Close()
}

// WriteSnapshot writes documents to a .nano file.
func WriteSnapshot(filename string, docs []model.Document) error {
	cw, err := NewColumnWriter()
	if err != nil {
		return err
	}
	defer cw.Close()
	return cw.WriteSnapshot(filename, docs)
}

// WriteSnapshot writes documents to a .nano file.
func (cw *ColumnWriter) WriteSnapshot(filename string, docs []model.Document) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := cw.Encode(w, docs); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Encode writes header, columns and footer to w.
func (cw *ColumnWriter) Encode(w io.Writer, docs []model.Document) error {
	if _, err := w.Write(MagicHeader); err != nil {
		return err
	}

	cols := make([][]string, len(columnNames))
	for i := range cols {
		cols[i] = make([]string, len(docs))
	}

	var minTs, maxTs int64
	seen := false
	for i := range docs {
		d := &docs[i]
		cols[0][i] = d.ID
		cols[1][i] = d.Timestamp
		cols[2][i] = d.Message
		cols[3][i] = d.Level
		cols[4][i] = d.Service
		cols[5][i] = d.Tenant
		cols[6][i] = d.TraceID
		cols[7][i] = d.SpanID
		if len(d.Attributes) > 0 {
			b, err := json.Marshal(d.Attributes)
			if err != nil {
				return fmt.Errorf("encode attributes of %s: %w", d.ID, err)
			}
			cols[8][i] = string(b)
		}

		if ms, ok := d.UnixMilli(); ok {
			if !seen || ms < minTs {
				minTs = ms
			}
			if !seen || ms > maxTs {
				maxTs = ms
			}
			seen = true
		}
	}

	if len(docs) > 0 {
		for _, col := range cols {
			if err := cw.writeStringCol(w, col); err != nil {
				return err
			}
		}
	}
	return writeFooter(w, uint32(len(docs)), minTs, maxTs)
}

func (cw *ColumnWriter) writeStringCol(w io.Writer, data []string) error {
	// [Len uint32][Bytes]...
	var buf []byte
	for _, s := range data {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return cw.compressAndWrite(w, buf)
}

func (cw *ColumnWriter) compressAndWrite(w io.Writer, raw []byte) error {
	compressed := cw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	if err := binary.Write(w, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// writeFooter writes RowCount (4) + MinTs (8) + MaxTs (8), timestamps in epoch ms.
func writeFooter(w io.Writer, rowCount uint32, minTs, maxTs int64) error {
	if err := binary.Write(w, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, minTs); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, maxTs)
}
