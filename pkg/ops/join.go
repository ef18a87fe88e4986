package ops

import (
	"github.com/stratumdb/stratum/pkg/column"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/memory"
)

// JoinKind selects join semantics.
type JoinKind int8

const (
	// InnerJoin keeps rows with at least one match on the other side.
	InnerJoin JoinKind = iota
	// LeftJoin keeps every left row; unmatched right columns are null.
	LeftJoin
)

// Join hash-joins two tables on equally named key columns. Null keys never
// match, matching SQL equality. The output carries all left columns plus
// the right table's non-key columns; right-side name collisions get an
// "_right" suffix. Probe order follows the left table, so results are
// deterministic.
func Join(left, right *column.Table, keys []string, kind JoinKind, res memory.Resource, stream *memory.Stream) (*column.Table, error) {
	if len(keys) == 0 {
		return nil, errors.New(errors.ErrorTypeLogic, "no join keys")
	}
	leftKeys := make([]*column.Column, len(keys))
	rightKeys := make([]*column.Column, len(keys))
	for i, name := range keys {
		if leftKeys[i] = left.ColumnByName(name); leftKeys[i] == nil {
			return nil, errors.Newf(errors.ErrorTypeLogic, "join key %q not in left table", name)
		}
		if rightKeys[i] = right.ColumnByName(name); rightKeys[i] == nil {
			return nil, errors.Newf(errors.ErrorTypeLogic, "join key %q not in right table", name)
		}
		if leftKeys[i].DType() != rightKeys[i].DType() {
			return nil, errors.Newf(errors.ErrorTypeLogic,
				"join key %q is %s on the left and %s on the right",
				name, leftKeys[i].DType(), rightKeys[i].DType())
		}
	}

	// Build side: hash the right table's keys.
	build := make(map[string][]int32, right.NumRows())
	var keyBuf []byte
	for row := 0; row < right.NumRows(); row++ {
		if anyKeyNull(rightKeys, row) {
			continue
		}
		var err error
		keyBuf, err = rowKey(keyBuf[:0], rightKeys, row)
		if err != nil {
			return nil, err
		}
		build[string(keyBuf)] = append(build[string(keyBuf)], int32(row))
	}

	// Probe side: walk the left table in order.
	var leftIdx, rightIdx []int32
	for row := 0; row < left.NumRows(); row++ {
		matched := false
		if !anyKeyNull(leftKeys, row) {
			var err error
			keyBuf, err = rowKey(keyBuf[:0], leftKeys, row)
			if err != nil {
				return nil, err
			}
			for _, r := range build[string(keyBuf)] {
				leftIdx = append(leftIdx, int32(row))
				rightIdx = append(rightIdx, r)
				matched = true
			}
		}
		if !matched && kind == LeftJoin {
			leftIdx = append(leftIdx, int32(row))
			rightIdx = append(rightIdx, nullIndex)
		}
	}

	names := append([]string(nil), left.Names()...)
	cols := make([]*column.Column, 0, left.NumColumns()+right.NumColumns()-len(keys))
	for i := 0; i < left.NumColumns(); i++ {
		out, err := Gather(left.Column(i), leftIdx, res, stream)
		if err != nil {
			return nil, err
		}
		cols = append(cols, out)
	}
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	for i := 0; i < right.NumColumns(); i++ {
		name := right.Name(i)
		if _, isKey := keySet[name]; isKey {
			continue
		}
		out, err := Gather(right.Column(i), rightIdx, res, stream)
		if err != nil {
			return nil, err
		}
		if hasName(names, name) {
			name += "_right"
		}
		names = append(names, name)
		cols = append(cols, out)
	}
	return column.NewTable(names, cols)
}

func anyKeyNull(cols []*column.Column, row int) bool {
	for _, c := range cols {
		if !c.IsValid(row) {
			return true
		}
	}
	return false
}

func hasName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
