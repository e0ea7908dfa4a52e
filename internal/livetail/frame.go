package livetail

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// Column names every frame starts with.
const (
	ColumnTime    = "time"
	ColumnMessage = "message"
)

// Field is one column of a frame. Missing cells are nil.
type Field struct {
	Name   string `json:"name"`
	Type   string `json:"type"` // "time" or "string"
	Values []any  `json:"values"`
}

// Frame is a columnar batch of live messages. Every field holds exactly
// one value per row.
type Frame struct {
	RefID  string   `json:"refId"`
	Key    string   `json:"key"`
	Fields []*Field `json:"fields"`
}

func newFrame(refID string) *Frame {
	return &Frame{
		RefID: refID,
		Key:   "live-logs-" + refID,
		Fields: []*Field{
			{Name: ColumnTime, Type: "time"},
			{Name: ColumnMessage, Type: "string"},
		},
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if len(f.Fields) == 0 {
		return 0
	}
	return len(f.Fields[0].Values)
}

// Field returns the column with the given name.
func (f *Frame) Field(name string) (*Field, bool) {
	for _, fd := range f.Fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return nil, false
}

// addField appends a column, back-filled so it lines up with the rows
// already present.
func (f *Frame) addField(name string) *Field {
	fd := &Field{Name: name, Type: "string", Values: make([]any, f.Len())}
	f.Fields = append(f.Fields, fd)
	return fd
}

// addRow appends one value to every column; columns absent from row get nil.
func (f *Frame) addRow(row map[string]any) {
	for _, fd := range f.Fields {
		fd.Values = append(fd.Values, row[fd.Name])
	}
}

var parserPool fastjson.ParserPool

// buildFrame parses a payload holding one message object or an array of
// them into a frame. A message without a timestamp, or with one that does
// not parse, is stamped with now.
func buildFrame(data []byte, refID string, now time.Time) (*Frame, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	var messages []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		messages, _ = v.Array()
	case fastjson.TypeObject:
		messages = []*fastjson.Value{v}
	default:
		return nil, fmt.Errorf("parse payload: expected object or array, got %s", v.Type())
	}

	frame := newFrame(refID)
	for i, msg := range messages {
		if msg.Type() != fastjson.TypeObject {
			return nil, fmt.Errorf("parse payload: message %d is %s, not an object", i, msg.Type())
		}

		ts := now.UTC()
		if raw := msg.GetStringBytes("timestamp"); len(raw) > 0 {
			if t, ok := model.ParseTimestamp(string(raw)); ok {
				ts = t.UTC()
			}
		}
		row := map[string]any{
			ColumnTime:    ts,
			ColumnMessage: string(msg.GetStringBytes("message")),
		}

		if fields := msg.GetObject("fields"); fields != nil {
			fields.Visit(func(key []byte, fv *fastjson.Value) {
				name := string(key)
				if _, ok := frame.Field(name); !ok {
					frame.addField(name)
				}
				row[name] = model.JSONValue(fv)
			})
		}
		frame.addRow(row)
	}
	return frame, nil
}

// Documents converts each row back into a document. id, level, service,
// tenant, traceId and spanId are lifted to the top level; every other
// non-nil column becomes an attribute. Rows without an id get a UUID.
func (f *Frame) Documents() []model.Document {
	n := f.Len()
	docs := make([]model.Document, n)
	for i := 0; i < n; i++ {
		d := model.Document{ID: uuid.NewString(), Attributes: map[string]any{}}
		for _, fd := range f.Fields {
			if i >= len(fd.Values) {
				continue
			}
			v := fd.Values[i]
			switch fd.Name {
			case ColumnTime:
				if t, ok := v.(time.Time); ok {
					d.Timestamp = model.FormatMillis(t.UnixMilli())
				}
				continue
			case ColumnMessage:
				if s, ok := v.(string); ok {
					d.Message = s
				}
				continue
			}
			if v == nil {
				continue
			}
			switch fd.Name {
			case model.FieldID:
				d.ID = model.Stringify(v)
			case model.FieldLevel:
				d.Level = model.Stringify(v)
			case model.FieldService:
				d.Service = model.Stringify(v)
			case model.FieldTenant:
				d.Tenant = model.Stringify(v)
			case model.FieldTraceID:
				d.TraceID = model.Stringify(v)
			case model.FieldSpanID:
				d.SpanID = model.Stringify(v)
			default:
				d.Attributes[fd.Name] = v
			}
		}
		docs[i] = d
	}
	return docs
}
