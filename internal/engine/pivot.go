package engine

import (
	"github.com/schoolpulse/schoolpulse/internal/records"
)

// TotalLabel names the margin row and column in rendered pivots.
const TotalLabel = "Total"

// Pivot is a rows x columns cross of ratio cells. Margins are accumulated
// from the same raw sums as the cells.
type Pivot struct {
	RowDim    records.Dimension
	ColDim    records.Dimension
	Rows      []string
	Cols      []string
	Cells     map[string]map[string]Cell
	RowTotals map[string]Cell
	ColTotals map[string]Cell
	Grand     Cell
}

// BuildPivot crosses rowDim with colDim.
func BuildPivot[F records.Fact](rows []F, rowDim, colDim records.Dimension) Pivot {
	p := Pivot{
		RowDim:    rowDim,
		ColDim:    colDim,
		Cells:     map[string]map[string]Cell{},
		RowTotals: map[string]Cell{},
		ColTotals: map[string]Cell{},
	}
	for _, row := range rows {
		num, den, ok := included(row)
		if !ok {
			continue
		}
		r, c := label(row.Value(rowDim)), label(row.Value(colDim))
		if _, seen := p.Cells[r]; !seen {
			p.Cells[r] = map[string]Cell{}
			p.Rows = append(p.Rows, r)
		}
		if _, seen := p.ColTotals[c]; !seen {
			p.Cols = append(p.Cols, c)
		}
		cell := p.Cells[r][c]
		cell.add(num, den)
		p.Cells[r][c] = cell

		rt := p.RowTotals[r]
		rt.add(num, den)
		p.RowTotals[r] = rt

		ct := p.ColTotals[c]
		ct.add(num, den)
		p.ColTotals[c] = ct

		p.Grand.add(num, den)
	}
	SortValues(rowDim, p.Rows)
	SortValues(colDim, p.Cols)
	return p
}

// Cell returns the cell at (row, col); missing cells are zero and render null.
func (p Pivot) Cell(row, col string) Cell {
	return p.Cells[row][col]
}

// PivotView is the rendered pivot: row -> column -> percentage or null,
// with a Total column on every row and a Total row.
type PivotView struct {
	Rows    []string                       `json:"rows"`
	Columns []string                       `json:"columns"`
	Table   map[string]map[string]*float64 `json:"table"`
}

// View renders the pivot with Total margins.
func (p Pivot) View() PivotView {
	v := PivotView{
		Rows:    append(append([]string{}, p.Rows...), TotalLabel),
		Columns: append(append([]string{}, p.Cols...), TotalLabel),
		Table:   make(map[string]map[string]*float64, len(p.Rows)+1),
	}
	for _, r := range p.Rows {
		line := make(map[string]*float64, len(p.Cols)+1)
		for _, c := range p.Cols {
			line[c] = p.Cell(r, c).Percent()
		}
		line[TotalLabel] = p.RowTotals[r].Percent()
		v.Table[r] = line
	}
	total := make(map[string]*float64, len(p.Cols)+1)
	for _, c := range p.Cols {
		total[c] = p.ColTotals[c].Percent()
	}
	total[TotalLabel] = p.Grand.Percent()
	v.Table[TotalLabel] = total
	return v
}

// CountPivot crosses rowDim with colDim counting unique entities.
// Margins count unique entities across the dropped dimension.
type CountPivot struct {
	Rows      []string
	Cols      []string
	Counts    map[string]map[string]int
	RowTotals map[string]int
	ColTotals map[string]int
	Grand     int
}

// BuildCountPivot counts distinct entity values per (row, col).
// Rows with a blank entity are skipped.
func BuildCountPivot[V records.Valued](rows []V, rowDim, colDim, entity records.Dimension) CountPivot {
	type set map[string]struct{}
	cells := map[string]map[string]set{}
	rowSets, colSets, all := map[string]set{}, map[string]set{}, set{}
	var p CountPivot
	for _, row := range rows {
		if hasBlank(row, []records.Dimension{entity}) {
			continue
		}
		id := row.Value(entity)
		r, c := label(row.Value(rowDim)), label(row.Value(colDim))
		if _, ok := cells[r]; !ok {
			cells[r] = map[string]set{}
			rowSets[r] = set{}
			p.Rows = append(p.Rows, r)
		}
		if _, ok := colSets[c]; !ok {
			colSets[c] = set{}
			p.Cols = append(p.Cols, c)
		}
		if _, ok := cells[r][c]; !ok {
			cells[r][c] = set{}
		}
		cells[r][c][id] = struct{}{}
		rowSets[r][id] = struct{}{}
		colSets[c][id] = struct{}{}
		all[id] = struct{}{}
	}
	SortValues(rowDim, p.Rows)
	SortValues(colDim, p.Cols)
	p.Counts = make(map[string]map[string]int, len(cells))
	p.RowTotals = make(map[string]int, len(rowSets))
	p.ColTotals = make(map[string]int, len(colSets))
	for r, line := range cells {
		p.Counts[r] = make(map[string]int, len(line))
		for c, ids := range line {
			p.Counts[r][c] = len(ids)
		}
		p.RowTotals[r] = len(rowSets[r])
	}
	for c, ids := range colSets {
		p.ColTotals[c] = len(ids)
	}
	p.Grand = len(all)
	return p
}

// CountView is the rendered count pivot with Total margins. Missing cells are 0.
type CountView struct {
	Rows    []string                  `json:"rows"`
	Columns []string                  `json:"columns"`
	Table   map[string]map[string]int `json:"table"`
}

// View renders the count pivot with Total margins.
func (p CountPivot) View() CountView {
	v := CountView{
		Rows:    append(append([]string{}, p.Rows...), TotalLabel),
		Columns: append(append([]string{}, p.Cols...), TotalLabel),
		Table:   make(map[string]map[string]int, len(p.Rows)+1),
	}
	for _, r := range p.Rows {
		line := make(map[string]int, len(p.Cols)+1)
		for _, c := range p.Cols {
			line[c] = p.Counts[r][c]
		}
		line[TotalLabel] = p.RowTotals[r]
		v.Table[r] = line
	}
	total := make(map[string]int, len(p.Cols)+1)
	for _, c := range p.Cols {
		total[c] = p.ColTotals[c]
	}
	total[TotalLabel] = p.Grand
	v.Table[TotalLabel] = total
	return v
}
