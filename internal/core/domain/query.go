package domain

import (
	"encoding/json"
	"strings"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

type SortField string

const (
	SortByName      SortField = "name"
	SortByPrice     SortField = "price"
	SortByStock     SortField = "stock"
	SortByUnit      SortField = "unit"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

var sortFields = map[string]SortField{
	"name":       SortByName,
	"price":      SortByPrice,
	"stock":      SortByStock,
	"unit":       SortByUnit,
	"created_at": SortByCreatedAt,
	"createdat":  SortByCreatedAt,
	"updated_at": SortByUpdatedAt,
	"updatedat":  SortByUpdatedAt,
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListQuery is a validated catalog listing request.
type ListQuery struct {
	NameContains string // lower-cased
	Limit        int
	Offset       int
	SortBy       SortField
	SortOrder    SortOrder
}

type listFilter struct {
	Name *string `json:"name"`
}

// NewListQuery builds a ListQuery from raw transport values. rawFilter is an
// optional JSON object such as {"name":"milk"}. Zero limit means the default.
func NewListQuery(rawFilter string, limit, offset int, sortBy, sortOrder string) (ListQuery, error) {
	q := ListQuery{
		Limit:     DefaultListLimit,
		Offset:    offset,
		SortBy:    SortByName,
		SortOrder: SortAsc,
	}

	if strings.TrimSpace(rawFilter) != "" {
		var f listFilter
		if err := json.Unmarshal([]byte(rawFilter), &f); err != nil {
			return ListQuery{}, NewValidationError("searchFilter", "invalid searchFilter format, use a JSON object")
		}
		if f.Name != nil {
			q.NameContains = strings.ToLower(strings.TrimSpace(*f.Name))
		}
	}

	switch {
	case limit < 0:
		return ListQuery{}, NewValidationError("limit", "limit must be positive")
	case limit > MaxListLimit:
		q.Limit = MaxListLimit
	case limit > 0:
		q.Limit = limit
	}
	if offset < 0 {
		return ListQuery{}, NewValidationError("offset", "offset must not be negative")
	}

	if sortBy != "" {
		field, ok := sortFields[strings.ToLower(sortBy)]
		if !ok {
			return ListQuery{}, NewValidationError("sortBy", "unknown sort field "+sortBy)
		}
		q.SortBy = field
	}
	switch strings.ToLower(sortOrder) {
	case "", "asc":
	case "desc":
		q.SortOrder = SortDesc
	default:
		return ListQuery{}, NewValidationError("sortOrder", "sortOrder must be 'asc' or 'desc'")
	}

	return q, nil
}
