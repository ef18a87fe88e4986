package column

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// Table is an ordered collection of equal-length owning columns with names.
type Table struct {
	names []string
	cols  []*Column
}

// NewTable builds a table, validating that all columns share a row count.
func NewTable(names []string, cols []*Column) (*Table, error) {
	if len(names) != len(cols) {
		return nil, errors.Newf(errors.ErrorTypeLogic,
			"%d names for %d columns", len(names), len(cols))
	}
	for i := 1; i < len(cols); i++ {
		if cols[i].Size() != cols[0].Size() {
			return nil, errors.Newf(errors.ErrorTypeLogic,
				"column %q has %d rows, column %q has %d",
				names[i], cols[i].Size(), names[0], cols[0].Size())
		}
	}
	return &Table{names: names, cols: cols}, nil
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.cols) }

// NumRows returns the shared row count, 0 for an empty table.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Size()
}

// Column returns the i-th column.
func (t *Table) Column(i int) *Column { return t.cols[i] }

// Name returns the i-th column name.
func (t *Table) Name(i int) string { return t.names[i] }

// ColumnByName returns the named column, or nil.
func (t *Table) ColumnByName(name string) *Column {
	for i, n := range t.names {
		if n == name {
			return t.cols[i]
		}
	}
	return nil
}

// Names returns the column names in order.
func (t *Table) Names() []string { return t.names }

// View returns a non-owning view of the whole table.
func (t *Table) View() TableView {
	views := make([]View, len(t.cols))
	for i, c := range t.cols {
		views[i] = c.View()
	}
	return TableView{names: t.names, views: views}
}

// Release releases every column.
func (t *Table) Release() {
	for _, c := range t.cols {
		c.Release()
	}
	t.cols = nil
}

// TableView is an ordered collection of equal-length column views.
type TableView struct {
	names []string
	views []View
}

// NewTableView builds a table view over equal-length views.
func NewTableView(names []string, views []View) (TableView, error) {
	if len(names) != len(views) {
		return TableView{}, errors.Newf(errors.ErrorTypeLogic,
			"%d names for %d views", len(names), len(views))
	}
	for i := 1; i < len(views); i++ {
		if views[i].Size() != views[0].Size() {
			return TableView{}, errors.Newf(errors.ErrorTypeLogic,
				"view %q has %d rows, view %q has %d",
				names[i], views[i].Size(), names[0], views[0].Size())
		}
	}
	return TableView{names: names, views: views}, nil
}

// NumColumns returns the number of columns.
func (t TableView) NumColumns() int { return len(t.views) }

// NumRows returns the shared row count.
func (t TableView) NumRows() int {
	if len(t.views) == 0 {
		return 0
	}
	return t.views[0].Size()
}

// Column returns the i-th column view.
func (t TableView) Column(i int) View { return t.views[i] }

// Name returns the i-th column name.
func (t TableView) Name(i int) string { return t.names[i] }

// Names returns the column names in order.
func (t TableView) Names() []string { return t.names }

// Select returns a view with only the named columns, in the given order.
func (t TableView) Select(names []string) (TableView, error) {
	views := make([]View, 0, len(names))
	for _, want := range names {
		found := false
		for i, n := range t.names {
			if n == want {
				views = append(views, t.views[i])
				found = true
				break
			}
		}
		if !found {
			return TableView{}, errors.Newf(errors.ErrorTypeLogic, "no column named %q", want)
		}
	}
	return TableView{names: names, views: views}, nil
}

// Slice narrows every column view to [offset, offset+length).
func (t TableView) Slice(offset, length int) (TableView, error) {
	views := make([]View, len(t.views))
	for i, v := range t.views {
		sv, err := v.Slice(offset, length)
		if err != nil {
			return TableView{}, err
		}
		views[i] = sv
	}
	return TableView{names: t.names, views: views}, nil
}
