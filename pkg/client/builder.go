package client

import (
	"context"
	"strings"
)

// OrderOpts configures one ordering directive.
type OrderOpts struct {
	Ascending  bool
	NullsFirst bool
}

// QueryBuilder accumulates a request specification through chained calls.
// Builders are cheap values scoped to one logical query; terminal operations
// snapshot the accumulated state, so calling a terminal twice issues two
// independent requests.
type QueryBuilder struct {
	c    *Client
	desc descriptor
	err  *Error // first builder misuse, surfaced by the terminal
}

func (b *QueryBuilder) setErr(e *Error) {
	if b.err == nil {
		b.err = e
	}
}

// Select restricts the returned columns. The default is all columns ("*").
// Duplicates are dropped; first-mention order is preserved.
func (b *QueryBuilder) Select(columns ...string) *QueryBuilder {
	seen := make(map[string]struct{}, len(b.desc.Columns)+len(columns))
	for _, col := range b.desc.Columns {
		seen[col] = struct{}{}
	}
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "" {
			b.setErr(validationErr("select column must not be empty"))
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		b.desc.Columns = append(b.desc.Columns, col)
	}
	return b
}

// Filter appends a raw predicate using a PostgREST operator name.
// Predicates combine with logical AND; repeated predicates on the same
// column are all kept.
func (b *QueryBuilder) Filter(column, operator, value string) *QueryBuilder {
	if strings.TrimSpace(column) == "" {
		b.setErr(validationErr("filter column must not be empty"))
		return b
	}
	if strings.TrimSpace(operator) == "" {
		b.setErr(validationErr("filter operator must not be empty"))
		return b
	}
	b.desc.Filters = append(b.desc.Filters, filterParam{Column: column, Operator: operator, Value: value})
	return b
}

func (b *QueryBuilder) Eq(column, value string) *QueryBuilder  { return b.Filter(column, "eq", value) }
func (b *QueryBuilder) Neq(column, value string) *QueryBuilder { return b.Filter(column, "neq", value) }
func (b *QueryBuilder) Gt(column, value string) *QueryBuilder  { return b.Filter(column, "gt", value) }
func (b *QueryBuilder) Gte(column, value string) *QueryBuilder { return b.Filter(column, "gte", value) }
func (b *QueryBuilder) Lt(column, value string) *QueryBuilder  { return b.Filter(column, "lt", value) }
func (b *QueryBuilder) Lte(column, value string) *QueryBuilder { return b.Filter(column, "lte", value) }

// Like filters with a case-sensitive pattern match.
func (b *QueryBuilder) Like(column, pattern string) *QueryBuilder {
	return b.Filter(column, "like", pattern)
}

// ILike filters with a case-insensitive pattern match.
func (b *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return b.Filter(column, "ilike", pattern)
}

// In filters by membership in a value list.
func (b *QueryBuilder) In(column string, values ...string) *QueryBuilder {
	return b.Filter(column, "in", "("+strings.Join(values, ",")+")")
}

// Is filters against null / true / false.
func (b *QueryBuilder) Is(column, value string) *QueryBuilder {
	return b.Filter(column, "is", value)
}

// Order appends an ordering directive. Multiple calls produce multi-key
// ordering in call order. A nil opts orders ascending with server-default
// nulls position.
func (b *QueryBuilder) Order(column string, opts *OrderOpts) *QueryBuilder {
	if strings.TrimSpace(column) == "" {
		b.setErr(validationErr("order column must not be empty"))
		return b
	}
	o := orderParam{Column: column, Direction: "asc"}
	if opts != nil {
		if !opts.Ascending {
			o.Direction = "desc"
		}
		if opts.NullsFirst {
			o.NullsPosition = "first"
		}
	}
	b.desc.Order = append(b.desc.Order, o)
	return b
}

// Limit caps the number of returned rows. Mutually exclusive with Paginate.
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	if n < 1 {
		b.setErr(validationErr("limit must be >= 1, got %d", n))
		return b
	}
	if b.desc.Page > 0 {
		b.setErr(validationErr("limit/offset and paginate are mutually exclusive"))
		return b
	}
	b.desc.Limit = n
	return b
}

// Offset skips n rows. Used with Limit; mutually exclusive with Paginate.
func (b *QueryBuilder) Offset(n int) *QueryBuilder {
	if n < 0 {
		b.setErr(validationErr("offset must be >= 0, got %d", n))
		return b
	}
	if b.desc.Page > 0 {
		b.setErr(validationErr("limit/offset and paginate are mutually exclusive"))
		return b
	}
	b.desc.Offset = n
	return b
}

// Paginate selects page-based pagination. Mutually exclusive with Limit.
func (b *QueryBuilder) Paginate(page, pageSize int) *QueryBuilder {
	if page < 1 || pageSize < 1 {
		b.setErr(validationErr("paginate requires page >= 1 and pageSize >= 1, got page=%d pageSize=%d", page, pageSize))
		return b
	}
	if b.desc.Limit > 0 || b.desc.Offset > 0 {
		b.setErr(validationErr("limit/offset and paginate are mutually exclusive"))
		return b
	}
	b.desc.Page = page
	b.desc.PageSize = pageSize
	return b
}

// Single marks the query to expect exactly one row. Execution fails with a
// not_found or multiple_rows error when the result set size is not 1, and
// Result.Data holds the row object rather than a one-element collection.
func (b *QueryBuilder) Single() *QueryBuilder {
	b.desc.Single = true
	return b
}

// snapshot validates accumulated state and returns an independent descriptor
// for one execution. Builder misuse surfaces here, before any network I/O.
func (b *QueryBuilder) snapshot() (*descriptor, *Error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.desc.clone()
	if verr := d.validate(); verr != nil {
		return nil, verr
	}
	return d, nil
}

// Execute performs the request and normalizes the response. The returned
// error covers builder misuse only; transport and server failures travel in
// Result.Err so an empty successful result is never conflated with a failure.
func (b *QueryBuilder) Execute(ctx context.Context, opts ...ExecOption) (*Result, error) {
	d, verr := b.snapshot()
	if verr != nil {
		return nil, verr
	}
	return b.c.exec.run(ctx, d, opts...), nil
}

// ExecuteWithPagination performs the request and wraps the result with page
// metadata. Requires Paginate to have been called.
func (b *QueryBuilder) ExecuteWithPagination(ctx context.Context, opts ...ExecOption) (*PaginatedResult, error) {
	d, verr := b.snapshot()
	if verr != nil {
		return nil, verr
	}
	if d.Page < 1 {
		return nil, validationErr("executeWithPagination requires a prior Paginate call")
	}
	d.Count = true
	res := b.c.exec.run(ctx, d, opts...)
	if res.Err == nil && res.Count == nil {
		res.Err = serverErr(0, "upstream returned no Content-Range count")
	}

	pr := &PaginatedResult{
		Result:   *res,
		Page:     d.Page,
		PageSize: d.PageSize,
	}
	if res.Err == nil && res.Count != nil {
		pr.TotalCount = *res.Count
		pr.HasPreviousPage = d.Page > 1
		pr.HasNextPage = int64(d.Page)*int64(d.PageSize) < pr.TotalCount
	}
	return pr, nil
}

// Count requests the number of rows matching the descriptor without
// fetching row payload.
func (b *QueryBuilder) Count(ctx context.Context, opts ...ExecOption) (int64, error) {
	d, verr := b.snapshot()
	if verr != nil {
		return 0, verr
	}
	d.Count = true
	res := b.c.exec.run(ctx, d, opts...)
	if res.Err != nil {
		return 0, res.Err
	}
	if res.Count == nil {
		return 0, serverErr(0, "upstream returned no Content-Range count")
	}
	return *res.Count, nil
}

// Insert posts one or more rows and returns their representation.
func (b *QueryBuilder) Insert(ctx context.Context, rows any, opts ...ExecOption) (*Result, error) {
	return b.write(ctx, "POST", rows, false, opts...)
}

// Upsert posts rows with merge-duplicates conflict resolution.
func (b *QueryBuilder) Upsert(ctx context.Context, rows any, opts ...ExecOption) (*Result, error) {
	return b.write(ctx, "POST", rows, true, opts...)
}

// Update patches rows matching the accumulated filters.
func (b *QueryBuilder) Update(ctx context.Context, patch any, opts ...ExecOption) (*Result, error) {
	if patch == nil {
		return nil, validationErr("update requires a non-nil patch")
	}
	return b.write(ctx, "PATCH", patch, false, opts...)
}

// Delete removes rows matching the accumulated filters and returns their
// representation.
func (b *QueryBuilder) Delete(ctx context.Context, opts ...ExecOption) (*Result, error) {
	return b.write(ctx, "DELETE", nil, false, opts...)
}

func (b *QueryBuilder) write(ctx context.Context, method string, body any, upsert bool, opts ...ExecOption) (*Result, error) {
	d, verr := b.snapshot()
	if verr != nil {
		return nil, verr
	}
	d.Method = method
	d.Body = body
	d.Upsert = upsert
	return b.c.exec.run(ctx, d, opts...), nil
}
