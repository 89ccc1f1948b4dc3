// Package dbpage implements keyset (cursor-based) pagination for paged
// repository lists (internal/access's UserRepository.List): a base64-encoded JSON cursor,
// squirrel query decoration, and the trim/reverse bookkeeping needed to
// hand back a client-facing {items, next, prev} page regardless of which
// physical scan direction the query actually ran in.
package dbpage

import (
	"encoding/base64"
	"encoding/json"

	"github.com/Masterminds/squirrel"
)

// Cursor identifies a keyset position: the id to seek from, and whether
// the page that produced this cursor was read moving forward (PointsNext)
// or backward through the result set.
type Cursor struct {
	ID         string `json:"id"`
	PointsNext bool   `json:"points_next"`
}

// CursorPagination is the {next, prev} pair returned alongside a page of
// results. Either field may be empty: the first page has no Prev, the
// last page has no Next.
type CursorPagination struct {
	Next string
	Prev string
}

// CreateCursor builds a Cursor value.
func CreateCursor(id string, pointsNext bool) Cursor {
	return Cursor{ID: id, PointsNext: pointsNext}
}

// DecodeCursor reverses the base64+JSON encoding applied when a cursor is
// handed back to a client.
func DecodeCursor(encoded string) (Cursor, error) {
	var cursor Cursor

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	if err := json.Unmarshal(raw, &cursor); err != nil {
		return cursor, err
	}

	return cursor, nil
}

func encodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

func flip(orderDirection string) string {
	if orderDirection == "DESC" {
		return "ASC"
	}

	return "DESC"
}

// ApplyCursorPagination decorates query with the WHERE/ORDER BY/LIMIT
// clauses needed to read one page forward or backward from cursor, and
// returns the (possibly flipped) physical scan direction the caller must
// pass on to PaginateRecords so the result set can be restored to the
// client-facing order.
func ApplyCursorPagination(query squirrel.SelectBuilder, cursor Cursor, orderDirection string, limit int) (squirrel.SelectBuilder, string) {
	if cursor.ID == "" {
		return query.OrderBy("id " + orderDirection).Limit(uint64(limit + 1)), orderDirection
	}

	effective := orderDirection
	if !cursor.PointsNext {
		effective = flip(orderDirection)
	}

	op := ">"
	if effective == "DESC" {
		op = "<"
	}

	query = query.Where(squirrel.Expr("id "+op+" ?", cursor.ID)).
		OrderBy("id " + effective).
		Limit(uint64(limit + 1))

	return query, effective
}

// PaginateRecords trims the lookahead row a limit+1 query fetched to
// detect "is there another page", and reverses the slice back into
// client-facing order when the underlying query ran backward
// (pointsNext == false).
func PaginateRecords[T any](isFirstPage, hasPagination, pointsNext bool, items []T, limit int, orderDirection string) []T {
	_ = isFirstPage
	_ = orderDirection

	if hasPagination && len(items) > limit {
		items = items[:limit]
	}

	if !pointsNext {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}

	return items
}

// CalculateCursor computes the {next, prev} pair for a page. Next is
// present whenever there is more data beyond the last item fetched
// (hasPagination); Prev is present whenever this isn't the first page.
// Which direction the page was fetched from (pointsNext) does not change
// which cursors exist, only what the caller did to arrive here.
func CalculateCursor(isFirstPage, hasPagination, pointsNext bool, firstItemID, lastItemID string) (CursorPagination, error) {
	_ = pointsNext

	var pagination CursorPagination

	if hasPagination {
		encoded, err := encodeCursor(CreateCursor(lastItemID, true))
		if err != nil {
			return pagination, err
		}

		pagination.Next = encoded
	}

	if !isFirstPage {
		encoded, err := encodeCursor(CreateCursor(firstItemID, false))
		if err != nil {
			return pagination, err
		}

		pagination.Prev = encoded
	}

	return pagination, nil
}
