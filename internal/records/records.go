// Package records describes the contract of the backend-as-a-service SDK the
// data service talks to.
//
// The backend stores flat records in named tables and exposes fetch, get,
// create, update, delete and increment operations. Queries are expressed with
// descriptors (field selection, filter conditions, sort order and paging)
// rather than SQL, so the same Client interface is satisfied by the hosted
// backend (package remote) and by the embedded SQLite store
// (package repository/sqlite).
//
// TWO KINDS OF FAILURE:
// A transport problem (connection refused, bad JSON) is returned as a Go
// error. A request the backend understood but refused (unknown field, record
// missing) comes back as a response with Success=false and a Message. Callers
// must check both.
package records

import (
	"context"
	"encoding/json"
	"fmt"
)

// Well-known field names maintained by the backend itself.
const (
	FieldID         = "Id"
	FieldCreatedOn  = "CreatedOn"
	FieldModifiedOn = "ModifiedOn"
)

// Filter operators understood by every Client implementation.
const (
	OpContains = "Contains" // case-insensitive substring match
	OpEqualTo  = "EqualTo"
)

// Sort directions.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// Record is one flat row keyed by field name.
// Values are whatever the transport produced (string, int64, json.Number,
// time.Time, nil); use package cast to read them.
type Record map[string]any

// ID returns the record's "Id" field as an int64, or 0 when it is missing.
func (r Record) ID() int64 {
	switch v := r[FieldID].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// Condition is a single filter on one field.
// Include=false negates the condition.
type Condition struct {
	FieldName string   `json:"FieldName"`
	Operator  string   `json:"Operator"`
	Values    []string `json:"Values"`
	Include   bool     `json:"Include"`
}

// SubGroup is a set of conditions combined with Operator ("AND" when empty).
type SubGroup struct {
	Conditions []Condition `json:"conditions"`
	Operator   string      `json:"operator"`
}

// WhereGroup combines its sub-groups with Operator ("OR" or "AND").
type WhereGroup struct {
	Operator  string     `json:"operator"`
	SubGroups []SubGroup `json:"subGroups"`
}

// OrderBy sorts results on one field.
type OrderBy struct {
	FieldName string `json:"fieldName"`
	SortType  string `json:"sorttype"`
}

// Paging limits the result window.
type Paging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Query is the descriptor passed to FetchRecords and GetRecordByID.
//
// Where conditions are ANDed together; every WhereGroup must also match.
// An empty Fields list selects every field.
type Query struct {
	Fields      []string     `json:"fields,omitempty"`
	Where       []Condition  `json:"where,omitempty"`
	WhereGroups []WhereGroup `json:"whereGroups,omitempty"`
	OrderBy     []OrderBy    `json:"orderBy,omitempty"`
	Paging      *Paging      `json:"pagingInfo,omitempty"`
}

// FetchResponse is the result of FetchRecords.
type FetchResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    []Record `json:"data"`
}

// GetResponse is the result of GetRecordByID and IncrementField.
type GetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    Record `json:"data"`
}

// Result is the per-record outcome of a mutation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    Record `json:"data,omitempty"`
}

// MutateResponse is the result of CreateRecord, UpdateRecord and DeleteRecord.
// Success reports whether the request as a whole was accepted; individual
// records may still fail (see Results).
type MutateResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Results []Result `json:"results"`
}

// Split separates successful results from failed ones, preserving order.
func (m *MutateResponse) Split() (succeeded, failed []Result) {
	for _, r := range m.Results {
		if r.Success {
			succeeded = append(succeeded, r)
		} else {
			failed = append(failed, r)
		}
	}
	return succeeded, failed
}

// Client is the backend SDK.
//
// UpdateRecord is a partial update: only the fields present in each record
// (plus the mandatory "Id") are written. IncrementField adds delta to a
// numeric field in one atomic step and returns the updated record.
type Client interface {
	FetchRecords(ctx context.Context, table string, q Query) (*FetchResponse, error)
	GetRecordByID(ctx context.Context, table string, id int64, q Query) (*GetResponse, error)
	CreateRecord(ctx context.Context, table string, recs []Record) (*MutateResponse, error)
	UpdateRecord(ctx context.Context, table string, recs []Record) (*MutateResponse, error)
	DeleteRecord(ctx context.Context, table string, ids []int64) (*MutateResponse, error)
	IncrementField(ctx context.Context, table string, id int64, field string, delta int64) (*GetResponse, error)
}

// Contains builds a case-insensitive substring condition.
func Contains(field, value string) Condition {
	return Condition{FieldName: field, Operator: OpContains, Values: []string{value}, Include: true}
}

// AnyOf builds a WhereGroup that matches when any one condition matches.
func AnyOf(conds ...Condition) WhereGroup {
	g := WhereGroup{Operator: "OR"}
	for _, c := range conds {
		g.SubGroups = append(g.SubGroups, SubGroup{Conditions: []Condition{c}})
	}
	return g
}

// Failure formats the message for a refused request, falling back to a
// generic text when the backend sent none.
func Failure(op, message string) string {
	if message == "" {
		return fmt.Sprintf("%s failed", op)
	}
	return message
}
