package docstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/tidwall/gjson"
)

// QuerySorted runs q and, if the store lacks the composite index, reruns it without
// ordering and sorts the result in memory by the same key. The returned flag reports
// whether the fallback was used.
func QuerySorted(ctx context.Context, s Store, q Query) ([]Document, bool, error) {
	docs, err := s.Query(ctx, q)
	if err == nil || !errors.Is(err, ErrIndexMissing) || q.OrderBy == nil {
		return docs, false, err
	}
	order := *q.OrderBy
	q.OrderBy = nil
	docs, err = s.Query(ctx, q)
	if err != nil {
		return nil, true, err
	}
	SortDocuments(docs, order)
	return docs, true, nil
}

// SortDocuments sorts docs in place by order, keeping the relative order of equal keys.
// Metadata timestamps compare by millisecond, a zero timestamp counting as 0.
// Numeric data fields compare numerically, other values as strings, and a missing
// value sorts below any present one.
func SortDocuments(docs []Document, order Order) {
	compare := func(a, b Document) int {
		switch order.Field {
		case FieldCreatedAt:
			return cmp.Compare(epochMillis(a.CreatedAt), epochMillis(b.CreatedAt))
		case FieldUpdatedAt:
			return cmp.Compare(epochMillis(a.UpdatedAt), epochMillis(b.UpdatedAt))
		}
		return compareValues(a.Field(order.Field), b.Field(order.Field))
	}
	slices.SortStableFunc(docs, func(a, b Document) int {
		if order.Desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
}

func compareValues(a, b gjson.Result) int {
	switch {
	case !a.Exists() && !b.Exists():
		return 0
	case !a.Exists():
		return -1
	case !b.Exists():
		return 1
	case a.Type == gjson.Number && b.Type == gjson.Number:
		return cmp.Compare(a.Float(), b.Float())
	default:
		return cmp.Compare(a.String(), b.String())
	}
}

func epochMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
