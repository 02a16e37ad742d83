package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// filterParam is one predicate on a column. Predicates combine with logical
// AND; repeating an operator on the same column keeps both predicates.
type filterParam struct {
	Column   string
	Operator string
	Value    string
}

type orderParam struct {
	Column        string
	Direction     string // asc or desc
	NullsPosition string // first or last, empty for server default
}

// descriptor is the normalized specification of one REST request. It is
// assembled by the builder and read-only once handed to the execution layer.
type descriptor struct {
	Resource string
	Columns  []string
	Filters  []filterParam
	Order    []orderParam

	Limit  int // 0 means unset
	Offset int

	Page     int // pagination strategy, mutually exclusive with Limit
	PageSize int

	Single bool
	Count  bool // count-only request, no row payload

	Method string // http method, empty means GET
	Body   any    // request payload for writes and rpc

	Upsert bool // merge-duplicates resolution on insert
	RPC    bool // resource is an rpc function
}

// clone returns a deep enough copy that terminal operations never share
// mutable state with the builder that produced them.
func (d *descriptor) clone() *descriptor {
	cp := *d
	cp.Columns = append([]string(nil), d.Columns...)
	cp.Filters = append([]filterParam(nil), d.Filters...)
	cp.Order = append([]orderParam(nil), d.Order...)
	return &cp
}

// effectiveLimit resolves the pagination strategy into limit/offset.
func (d *descriptor) effectiveLimit() (limit, offset int) {
	if d.Page > 0 {
		return d.PageSize, (d.Page - 1) * d.PageSize
	}
	return d.Limit, d.Offset
}

// encode renders the descriptor as a PostgREST query string. Filters appear
// in call order; the server ANDs them regardless.
func (d *descriptor) encode() string {
	q := url.Values{}

	if len(d.Columns) > 0 {
		q.Set("select", strings.Join(d.Columns, ","))
	}

	for _, f := range d.Filters {
		q.Add(f.Column, f.Operator+"."+f.Value)
	}

	if len(d.Order) > 0 {
		parts := make([]string, 0, len(d.Order))
		for _, o := range d.Order {
			p := o.Column + "." + o.Direction
			if o.NullsPosition != "" {
				p += ".nulls" + o.NullsPosition
			}
			parts = append(parts, p)
		}
		q.Set("order", strings.Join(parts, ","))
	}

	limit, offset := d.effectiveLimit()
	if d.Count && d.Page == 0 {
		// count-only requests carry no row payload
		limit, offset = 0, 0
		q.Set("limit", "0")
	} else {
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
	}

	return q.Encode()
}

// fingerprint derives the cache key. Semantically equal descriptors hash
// identically regardless of builder call order: the predicate set and the
// column set are sorted before hashing, while ordering directives keep their
// sequence because multi-key ordering is position-significant. Every
// component is length-prefixed so user-supplied values containing delimiter
// characters can never shift a component boundary and collide with a
// different query.
func (d *descriptor) fingerprint() string {
	var b strings.Builder
	frame := func(s string) {
		fmt.Fprintf(&b, "%d:%s;", len(s), s)
	}

	frame(d.Resource)

	cols := append([]string(nil), d.Columns...)
	sort.Strings(cols)
	frame(strconv.Itoa(len(cols)))
	for _, col := range cols {
		frame(col)
	}

	filters := make([]string, len(d.Filters))
	for i, f := range d.Filters {
		filters[i] = fmt.Sprintf("%d:%s;%d:%s;%d:%s;", len(f.Column), f.Column, len(f.Operator), f.Operator, len(f.Value), f.Value)
	}
	sort.Strings(filters)
	frame(strconv.Itoa(len(filters)))
	for _, f := range filters {
		b.WriteString(f)
	}

	frame(strconv.Itoa(len(d.Order)))
	for _, o := range d.Order {
		frame(o.Column)
		frame(o.Direction)
		frame(o.NullsPosition)
	}

	limit, offset := d.effectiveLimit()
	fmt.Fprintf(&b, "%d;%d;%t;%t", limit, offset, d.Single, d.Count)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// validate reports programmer errors before any network I/O happens.
func (d *descriptor) validate() *Error {
	if strings.TrimSpace(d.Resource) == "" {
		return validationErr("resource name must not be empty")
	}
	if d.Page > 0 && (d.Limit > 0 || d.Offset > 0) {
		return validationErr("limit/offset and paginate are mutually exclusive")
	}
	if d.Page < 0 || (d.Page > 0 && d.PageSize < 1) {
		return validationErr("paginate requires page >= 1 and pageSize >= 1")
	}
	if d.Limit < 0 || d.Offset < 0 {
		return validationErr("limit and offset must not be negative")
	}
	for _, f := range d.Filters {
		if f.Column == "" {
			return validationErr("filter column must not be empty")
		}
	}
	for _, o := range d.Order {
		if o.Column == "" {
			return validationErr("order column must not be empty")
		}
	}
	return nil
}
