package model

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// JSONValue converts a fastjson value into plain Go values: objects become
// map[string]any, arrays []any and numbers float64.
func JSONValue(v *fastjson.Value) any {
	if v == nil {
		return nil
	}
	switch v.Type() {
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = JSONValue(item)
		}
		return out
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, item *fastjson.Value) {
			out[string(key)] = JSONValue(item)
		})
		return out
	}
	return nil
}

// DocumentFromJSON builds a document from a JSON object. Unknown top-level
// keys are folded into the attributes; keys inside "attributes" win over
// them. Attributes is never nil.
func DocumentFromJSON(v *fastjson.Value) (Document, error) {
	obj, err := v.Object()
	if err != nil {
		return Document{}, fmt.Errorf("document: %w", err)
	}

	d := Document{Attributes: map[string]any{}}
	var nested *fastjson.Object
	obj.Visit(func(key []byte, item *fastjson.Value) {
		name := string(key)
		switch name {
		case FieldID:
			d.ID = scalarText(item)
		case FieldTimestamp:
			d.Timestamp = scalarText(item)
		case FieldMessage:
			d.Message = scalarText(item)
		case FieldLevel:
			d.Level = scalarText(item)
		case FieldService:
			d.Service = scalarText(item)
		case FieldTenant:
			d.Tenant = scalarText(item)
		case FieldTraceID:
			d.TraceID = scalarText(item)
		case FieldSpanID:
			d.SpanID = scalarText(item)
		case "attributes":
			nested, _ = item.Object()
		default:
			d.Attributes[name] = JSONValue(item)
		}
	})
	if nested != nil {
		nested.Visit(func(key []byte, item *fastjson.Value) {
			d.Attributes[string(key)] = JSONValue(item)
		})
	}
	return d, nil
}

// ParseDocuments parses one document object or an array of them.
func ParseDocuments(p *fastjson.Parser, data []byte) ([]Document, error) {
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	switch v.Type() {
	case fastjson.TypeObject:
		d, err := DocumentFromJSON(v)
		if err != nil {
			return nil, err
		}
		return []Document{d}, nil
	case fastjson.TypeArray:
		items, _ := v.Array()
		docs := make([]Document, 0, len(items))
		for i, item := range items {
			d, err := DocumentFromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			docs = append(docs, d)
		}
		return docs, nil
	}
	return nil, fmt.Errorf("expected object or array, got %s", v.Type())
}

func scalarText(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeNull {
		return ""
	}
	return Stringify(JSONValue(v))
}
