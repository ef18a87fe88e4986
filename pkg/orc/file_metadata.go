package orc

import (
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/iocore"
)

const orcMagic = "ORC"

// fileMetadata is everything learned about one file before stripe reads:
// postscript, footer, optional stripe statistics, and derived schema info.
type fileMetadata struct {
	ps     PostScript
	footer FileFooter
	meta   Metadata
	source iocore.Datasource
}

// parseFileMetadata reads and decodes a file's tail metadata. The layout
// from the end of the file is: footer, metadata, postscript, and a final
// byte holding the postscript's length.
func parseFileMetadata(src iocore.Datasource) (*fileMetadata, error) {
	size := src.Size()
	if size < int64(len(orcMagic))+2 {
		return nil, errors.Newf(errors.ErrorTypeMalformed, "file of %d bytes is too small", size)
	}

	tail, err := src.ReadAt(size-1, 1)
	if err != nil {
		return nil, err
	}
	psLen := int64(tail[0])
	if psLen == 0 || size < psLen+1 {
		return nil, errors.Newf(errors.ErrorTypeMalformed, "postscript length %d out of range", psLen)
	}

	psBuf, err := src.ReadAt(size-1-psLen, int(psLen))
	if err != nil {
		return nil, err
	}
	m := &fileMetadata{source: src}
	if err := m.ps.decode(newPbReader(psBuf)); err != nil {
		return nil, err
	}
	if m.ps.Magic != orcMagic {
		return nil, errors.Newf(errors.ErrorTypeMalformed, "bad magic %q", m.ps.Magic)
	}

	footerEnd := size - 1 - psLen
	footerStart := footerEnd - int64(m.ps.FooterLength)
	if footerStart < int64(len(orcMagic)) {
		return nil, errors.Newf(errors.ErrorTypeMalformed,
			"footer of %d bytes does not fit in file", m.ps.FooterLength)
	}
	raw, err := src.ReadAt(footerStart, int(m.ps.FooterLength))
	if err != nil {
		return nil, err
	}
	footerBuf, err := decodeSection(raw, m.ps.Compression, m.ps.CompressionBlockSize, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "decompressing file footer")
	}
	if err := m.footer.decode(newPbReader(footerBuf)); err != nil {
		return nil, err
	}
	if len(m.footer.Types) == 0 {
		return nil, errors.New(errors.ErrorTypeMalformed, "schema has no types")
	}
	fillParents(m.footer.Types)

	if m.ps.MetadataLength > 0 {
		metaStart := footerStart - int64(m.ps.MetadataLength)
		if metaStart >= int64(len(orcMagic)) {
			raw, err := src.ReadAt(metaStart, int(m.ps.MetadataLength))
			if err != nil {
				return nil, err
			}
			metaBuf, err := decodeSection(raw, m.ps.Compression, m.ps.CompressionBlockSize, 0)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "decompressing stripe statistics")
			}
			if err := m.meta.decode(newPbReader(metaBuf)); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// fillParents assigns parent indices over the pre-order type list.
func fillParents(types []SchemaType) {
	for i := range types {
		types[i].Parent = -1
	}
	for i := range types {
		for _, sub := range types[i].Subtypes {
			if int(sub) < len(types) {
				types[sub].Parent = i
			}
		}
	}
}

// readStripeFooter loads and decodes one stripe's footer.
func (m *fileMetadata) readStripeFooter(info *StripeInformation) (*StripeFooter, error) {
	off := int64(info.Offset + info.IndexLength + info.DataLength)
	raw, err := m.source.ReadAt(off, int(info.FooterLength))
	if err != nil {
		return nil, err
	}
	buf, err := decodeSection(raw, m.ps.Compression, m.ps.CompressionBlockSize, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformed, "decompressing stripe footer")
	}
	var sf StripeFooter
	if err := sf.decode(newPbReader(buf)); err != nil {
		return nil, err
	}
	return &sf, nil
}

// selectStripes returns the indices of stripes whose row ranges intersect
// [rowStart, rowStart+rowCount). A rowCount < 0 means "to the end".
func selectStripes(stripes []StripeInformation, rowStart, rowCount int64) []int {
	end := int64(-1)
	if rowCount >= 0 {
		end = rowStart + rowCount
	}
	var out []int
	var first int64
	for i := range stripes {
		last := first + int64(stripes[i].NumberOfRows)
		if last > rowStart && (end < 0 || first < end) {
			out = append(out, i)
		}
		first = last
	}
	return out
}

// stripeFirstRow returns the global row index of a stripe's first row.
func stripeFirstRow(stripes []StripeInformation, idx int) int64 {
	var first int64
	for i := 0; i < idx; i++ {
		first += int64(stripes[i].NumberOfRows)
	}
	return first
}

// selectColumns resolves requested column names against the root struct's
// fields. Empty names selects every field. Resolution searches forward from
// the last hit and wraps, so repeated lookups over file-ordered requests
// stay linear.
func (m *fileMetadata) selectColumns(names []string) ([]int, error) {
	root := &m.footer.Types[0]
	if len(names) == 0 {
		out := make([]int, 0, len(root.Subtypes))
		for _, sub := range root.Subtypes {
			out = append(out, int(sub))
		}
		return out, nil
	}

	out := make([]int, 0, len(names))
	cursor := 0
	for _, name := range names {
		found := -1
		for step := 0; step < len(root.FieldNames); step++ {
			i := (cursor + step) % len(root.FieldNames)
			if root.FieldNames[i] == name {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, errors.Newf(errors.ErrorTypeLogic, "column %q not in schema", name)
		}
		cursor = found + 1
		if cursor >= len(root.FieldNames) {
			cursor = 0
		}
		out = append(out, int(root.Subtypes[found]))
	}
	return out, nil
}

// columnName returns the field name of a schema node under the root.
func (m *fileMetadata) columnName(typeIdx int) string {
	root := &m.footer.Types[0]
	for i, sub := range root.Subtypes {
		if int(sub) == typeIdx && i < len(root.FieldNames) {
			return root.FieldNames[i]
		}
	}
	return ""
}
