package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// Vector is an embedding stored as a JSONB array. A nil Vector means the
// chunk has no embedding (the backend was unavailable at ingest time); such
// chunks remain searchable lexically.
type Vector []float32

// Value implements driver.Valuer. nil maps to SQL NULL.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal([]float32(v))
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}
	var data []byte
	switch s := src.(type) {
	case []byte:
		data = s
	case string:
		data = []byte(s)
	default:
		return fmt.Errorf("vector: cannot scan %T", src)
	}
	return json.Unmarshal(data, (*[]float32)(v))
}

// GormDataType tells gorm to create a jsonb column.
func (Vector) GormDataType() string {
	return "jsonb"
}
