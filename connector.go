package dbconnector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Connector runs ad-hoc queries against one physical data source. Concrete
// variants are obtained through NewConnector; each instance belongs to a
// single execution and must not be shared.
type Connector interface {
	Connect(ctx context.Context) error

	ExecuteQuery(ctx context.Context, query string) ([]Row, error)

	Close() error
}

type ConnectionConfig struct {
	Engine   string `json:"engine"` // postgres | sqlserver | mysql | sqlite
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// Column is one named value of a result row.
type Column struct {
	Name  string
	Value any
}

// Row keeps the column order reported by the driver.
type Row []Column

func (r Row) Get(name string) (any, bool) {
	for _, col := range r {
		if col.Name == name {
			return col.Value, true
		}
	}
	return nil, false
}

func (r Row) Columns() []string {
	names := make([]string, len(r))
	for i, col := range r {
		names[i] = col.Name
	}
	return names
}

func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r))
	for _, col := range r {
		out[col.Name] = col.Value
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(col.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var errNotConnected = errors.New("connector is not connected")

// valueConverter lets a variant rewrite driver values before the generic
// normalization runs. It reports false when it did not handle the value.
type valueConverter func(dbType string, v any) (any, bool)

type baseConnector struct {
	engine  string
	driver  string
	dsn     string
	db      *sql.DB
	convert valueConverter
	prepare func(db *sql.DB)
}

func (b *baseConnector) Connect(ctx context.Context) error {
	if b.db != nil {
		return nil
	}
	db, err := openDatabase(b.driver, b.dsn)
	if err != nil {
		return &ConnectionError{Engine: b.engine, Err: err}
	}
	if b.prepare != nil {
		b.prepare(db)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &ConnectionError{Engine: b.engine, Err: err}
	}
	b.db = db
	return nil
}

func (b *baseConnector) ExecuteQuery(ctx context.Context, query string) ([]Row, error) {
	if b.db == nil {
		return nil, &QueryError{Engine: b.engine, Query: query, Err: errNotConnected}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &QueryError{Engine: b.engine, Query: query, Err: errors.New("query is empty")}
	}
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Engine: b.engine, Query: query, Err: err}
	}
	defer rows.Close()
	result, err := scanRows(rows, b.convert)
	if err != nil {
		return nil, &QueryError{Engine: b.engine, Query: query, Err: err}
	}
	return result, nil
}

func (b *baseConnector) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func scanRows(rows *sql.Rows, convert valueConverter) ([]Row, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	results := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(types))
		for i := range values {
			var v any
			values[i] = &v
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(Row, len(types))
		for i, ct := range types {
			v := *(values[i].(*any))
			dbType := strings.ToUpper(ct.DatabaseTypeName())
			if convert != nil {
				if converted, ok := convert(dbType, v); ok {
					row[i] = Column{Name: ct.Name(), Value: converted}
					continue
				}
			}
			row[i] = Column{Name: ct.Name(), Value: normalizeValue(dbType, v)}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// normalizeValue strips driver wrapper types so callers only see nil, bool,
// int64, float64, string or time.Time.
func normalizeValue(dbType string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(dbType, string(t))
	case string:
		return normalizeText(dbType, t)
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return float64(t)
		}
		return int64(t)
	case float32:
		return float64(t)
	default:
		return t
	}
}

func normalizeText(dbType, s string) any {
	switch classifyType(dbType) {
	case kindInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	case kindFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return s
}

type typeKind int

const (
	kindOther typeKind = iota
	kindInteger
	kindFloat
)

func classifyType(dbType string) typeKind {
	switch {
	case dbType == "":
		return kindOther
	case strings.Contains(dbType, "INTERVAL"), strings.Contains(dbType, "POINT"):
		return kindOther
	case strings.Contains(dbType, "INT"):
		return kindInteger
	case strings.Contains(dbType, "DEC"), strings.Contains(dbType, "NUMERIC"),
		strings.Contains(dbType, "FLOAT"), strings.Contains(dbType, "DOUBLE"),
		strings.Contains(dbType, "REAL"), strings.Contains(dbType, "MONEY"):
		return kindFloat
	default:
		return kindOther
	}
}

// Numeric reports the float value of an integer or floating point result
// value. Text is never treated as numeric.
func Numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
