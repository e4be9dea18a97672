package encoding

// Vector is one model input row in training column order. It is never
// modified after the encoder builds it.
type Vector struct {
	columns []string
	values  []float64
}

func NewVector(columns []string, values []float64) Vector {
	c := make([]string, len(columns))
	copy(c, columns)
	v := make([]float64, len(values))
	copy(v, values)
	return Vector{columns: c, values: v}
}

func (v Vector) Len() int {
	return len(v.values)
}

func (v Vector) At(i int) float64 {
	return v.values[i]
}

// Values returns a copy of the row.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

func (v Vector) Columns() []string {
	out := make([]string, len(v.columns))
	copy(out, v.columns)
	return out
}
