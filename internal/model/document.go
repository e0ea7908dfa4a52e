package model

// Document represents a single log entry held by the discovery engine.
// Documents are immutable once produced; every component that filters or
// aggregates them returns new slices and never writes through them.
type Document struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"` // ISO-8601
	Message    string         `json:"message"`
	Level      string         `json:"level"`
	Service    string         `json:"service"`
	Tenant     string         `json:"tenant,omitempty"`
	TraceID    string         `json:"traceId,omitempty"`
	SpanID     string         `json:"spanId,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// Top-level document properties addressable by name.
const (
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldMessage   = "message"
	FieldLevel     = "level"
	FieldService   = "service"
	FieldTenant    = "tenant"
	FieldTraceID   = "traceId"
	FieldSpanID    = "spanId"
)

// Property returns the top-level property with the given name.
// Optional properties (tenant, traceId, spanId) are undefined when empty.
func (d *Document) Property(name string) (any, bool) {
	switch name {
	case FieldID:
		return d.ID, true
	case FieldTimestamp:
		return d.Timestamp, true
	case FieldMessage:
		return d.Message, true
	case FieldLevel:
		return d.Level, true
	case FieldService:
		return d.Service, true
	case FieldTenant:
		return d.Tenant, d.Tenant != ""
	case FieldTraceID:
		return d.TraceID, d.TraceID != ""
	case FieldSpanID:
		return d.SpanID, d.SpanID != ""
	case "attributes":
		return d.Attributes, d.Attributes != nil
	default:
		return nil, false
	}
}

// Resolve looks a field up in the attributes first and falls back to a
// top-level property of the same name. The second result reports whether
// the field is defined; a defined value may still be nil (JSON null).
func (d *Document) Resolve(field string) (any, bool) {
	if v, ok := d.Attributes[field]; ok {
		return v, true
	}
	return d.Property(field)
}

// UnixMilli parses the document timestamp.
func (d *Document) UnixMilli() (int64, bool) {
	t, ok := ParseTimestamp(d.Timestamp)
	if !ok {
		return 0, false
	}
	return t.UnixMilli(), true
}
