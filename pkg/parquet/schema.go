package parquet

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// initSchema walks the flattened depth-first schema tree, assigning parent
// indices and running definition/repetition levels: an OPTIONAL element
// adds one definition level, a REPEATED element adds one definition and
// one repetition level. It then binds every column chunk to its schema
// element by path.
func initSchema(md *FileMetaData) error {
	if len(md.Schema) == 0 {
		return errors.New(errors.ErrorTypeMalformed, "schema has no elements")
	}
	pos := 0
	if err := walkSchema(md.Schema, &pos, -1, 0, 0); err != nil {
		return err
	}
	if pos != len(md.Schema) {
		return errors.Newf(errors.ErrorTypeMalformed,
			"schema tree covers %d of %d elements", pos, len(md.Schema))
	}
	for g := range md.RowGroups {
		if err := bindColumns(md, &md.RowGroups[g]); err != nil {
			return err
		}
	}
	return nil
}

func walkSchema(schema []SchemaElement, pos *int, parent, maxDef, maxRep int) error {
	if *pos >= len(schema) {
		return errors.New(errors.ErrorTypeMalformed, "schema tree overruns element list")
	}
	idx := *pos
	e := &schema[idx]
	*pos++

	switch e.RepetitionType {
	case RepOptional:
		maxDef++
	case RepRepeated:
		maxDef++
		maxRep++
	}
	e.Parent = parent
	e.MaxDef = maxDef
	e.MaxRep = maxRep

	for i := int32(0); i < e.NumChildren; i++ {
		if err := walkSchema(schema, pos, idx, maxDef, maxRep); err != nil {
			return err
		}
	}
	return nil
}

// bindColumns resolves each chunk's path against the schema. The search
// continues forward from the element after the previous hit and wraps once,
// so chunks listed in schema order bind in a single pass.
func bindColumns(md *FileMetaData, rg *RowGroup) error {
	cursor := 0
	n := len(md.Schema)
	for c := range rg.Columns {
		chunk := &rg.Columns[c]
		if len(chunk.MetaData.PathInSchema) == 0 {
			return errors.New(errors.ErrorTypeMalformed, "column chunk has empty path")
		}
		leaf := chunk.MetaData.PathInSchema[len(chunk.MetaData.PathInSchema)-1]

		found := -1
		for step := 0; step < n; step++ {
			i := (cursor + step) % n
			if md.Schema[i].Name == leaf && md.Schema[i].NumChildren == 0 &&
				pathMatches(md.Schema, i, chunk.MetaData.PathInSchema) {
				found = i
				break
			}
		}
		if found < 0 {
			return errors.Newf(errors.ErrorTypeMalformed,
				"column chunk path %v not in schema", chunk.MetaData.PathInSchema)
		}
		chunk.SchemaIdx = found
		cursor = found + 1
		if cursor >= n {
			cursor = 0
		}
	}
	return nil
}

// pathMatches verifies the chunk path against the element's ancestry.
func pathMatches(schema []SchemaElement, idx int, path []string) bool {
	i := idx
	for p := len(path) - 1; p >= 0; p-- {
		if i <= 0 || schema[i].Name != path[p] {
			return false
		}
		i = schema[i].Parent
	}
	return i == 0
}
