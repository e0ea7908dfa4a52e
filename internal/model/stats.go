package model

// FieldType is the inferred type of a field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// MaxFieldExamples caps FieldStat.Examples.
const MaxFieldExamples = 5

// MaxDistributionBuckets caps a value distribution.
const MaxDistributionBuckets = 20

// MaxBucketMinutes caps a histogram bucket width at one leap year.
const MaxBucketMinutes = 366 * 24 * 60

// FieldStat summarises one field across a document set.
type FieldStat struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Count    int       `json:"count"`
	Examples []any     `json:"examples"`
}

// ValueDistributionBucket is one value of a field distribution.
// Percentage is relative to the documents where the field is defined.
type ValueDistributionBucket struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// HistogramBucket counts documents in one fixed-width interval.
type HistogramBucket struct {
	Time  string `json:"time"` // bucket start
	Count int    `json:"count"`
}
