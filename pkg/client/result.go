package client

import (
	"github.com/mitchellh/mapstructure"
)

// Result is the normalized outcome of one terminal operation. Exactly one of
// Data and Err is meaningful on completion: a successful empty result carries
// an empty (non-nil for collections) Data and a nil Err.
type Result struct {
	// Data holds []map[string]any for collection queries, map[string]any
	// for Single() queries, or nil on failure.
	Data any
	// Err is nil on success. Inspect (*Error).Kind for the failure class.
	Err *Error
	// Count is set when a count was requested (Count terminal, pagination,
	// or WithExactCount).
	Count *int64
}

// Rows returns the result as a collection. It returns nil when the query was
// marked Single() or the execution failed.
func (r *Result) Rows() []map[string]any {
	rows, _ := r.Data.([]map[string]any)
	return rows
}

// Row returns the single row of a Single() execution.
func (r *Result) Row() map[string]any {
	row, _ := r.Data.(map[string]any)
	return row
}

// Decode maps Data onto dest (a pointer to a struct, or to a slice of
// structs for collection results) honoring `mapstructure` field tags.
func (r *Result) Decode(dest any) error {
	if r.Err != nil {
		return r.Err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dest,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(r.Data)
}

// PaginatedResult wraps Result with page metadata derived from the exact
// count reported by the upstream Content-Range header.
type PaginatedResult struct {
	Result
	Page            int
	PageSize        int
	TotalCount      int64
	HasNextPage     bool
	HasPreviousPage bool
}
