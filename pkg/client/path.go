package client

import (
	"net/url"
	"strconv"
	"strings"
)

// Path builds an endpoint-relative path with OData-style parameters.
// Parameter names such as $filter and $top are written literally; values
// are percent-encoded with spaces as %20.
type Path struct {
	base   string
	params []param
}

type param struct {
	key   string
	value string
}

// NewPath starts a path such as "data/erp/views/v1/p21_view_contacts".
func NewPath(base string) Path {
	return Path{base: strings.TrimLeft(base, "/")}
}

// Param appends a raw parameter.
func (p Path) Param(key, value string) Path {
	params := make([]param, len(p.params), len(p.params)+1)
	copy(params, p.params)
	p.params = append(params, param{key: key, value: value})
	return p
}

// Filter appends $filter=expr.
func (p Path) Filter(expr string) Path { return p.Param("$filter", expr) }

// Query appends $query=expr, the entity API's search parameter.
func (p Path) Query(expr string) Path { return p.Param("$query", expr) }

// Skip appends $skip=n.
func (p Path) Skip(n int) Path { return p.Param("$skip", strconv.Itoa(n)) }

// Top appends $top=n.
func (p Path) Top(n int) Path { return p.Param("$top", strconv.Itoa(n)) }

// String renders the path. Parameters are joined to an existing query
// string with '&'.
func (p Path) String() string {
	if len(p.params) == 0 {
		return p.base
	}

	var b strings.Builder
	b.WriteString(p.base)
	sep := "?"
	if strings.Contains(p.base, "?") {
		sep = "&"
	}
	for _, prm := range p.params {
		b.WriteString(sep)
		b.WriteString(prm.key)
		b.WriteByte('=')
		b.WriteString(escape(prm.value))
		sep = "&"
	}
	return b.String()
}

// CountPath returns the $count resource of collection.
func CountPath(collection string) string {
	base, query, hasQuery := strings.Cut(strings.TrimLeft(collection, "/"), "?")
	path := strings.TrimRight(base, "/") + "/$count"
	if hasQuery {
		path += "?" + query
	}
	return path
}

func escape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// Eq renders field eq 'value'.
func Eq(field, value string) string {
	return field + " eq " + quote(value)
}

// TrimEq renders trim(field) eq 'value'.
func TrimEq(field, value string) string {
	return "trim(" + field + ") eq " + quote(value)
}

// Or joins expressions with or.
func Or(exprs ...string) string {
	return strings.Join(exprs, " or ")
}

// And joins expressions with and.
func And(exprs ...string) string {
	return strings.Join(exprs, " and ")
}

func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
