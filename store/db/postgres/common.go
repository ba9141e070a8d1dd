package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// placeholder returns the n-th positional parameter ($n).
func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

// placeholders returns $1..$n.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func fromUnix(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

func fromNullUnix(ts sql.NullInt64) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := fromUnix(ts.Int64)
	return &t
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
