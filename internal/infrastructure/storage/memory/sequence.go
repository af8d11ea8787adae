package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core/id"
)

// SequenceQuerier implements numerator.Querier against the store's
// in-memory counters, mirroring the sys_sequences UPSERT semantics.
type SequenceQuerier struct {
	s *Store
}

type seqRow struct {
	val int64
	err error
}

func (r *seqRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = r.val
		}
	}
	return nil
}

// QueryRow interprets the numerator's three query shapes:
// strict next (org, key), range reserve (org, key, increment) and
// set value (org, key, value).
func (q *SequenceQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	if len(args) < 2 {
		return &seqRow{err: fmt.Errorf("sequence query needs org and key")}
	}

	orgID, ok := args[0].(id.ID)
	if !ok {
		return &seqRow{err: fmt.Errorf("sequence query: first arg must be an organization id")}
	}
	key, ok := args[1].(string)
	if !ok {
		return &seqRow{err: fmt.Errorf("sequence query: second arg must be a key")}
	}

	mapKey := orgID.String() + ":" + key

	switch {
	case len(args) == 2:
		q.s.sequences[mapKey]++
	case strings.Contains(sql, "current_val + $3"):
		inc, _ := args[2].(int64)
		q.s.sequences[mapKey] += inc
	default:
		val, _ := args[2].(int64)
		q.s.sequences[mapKey] = val
	}

	return &seqRow{val: q.s.sequences[mapKey]}
}
