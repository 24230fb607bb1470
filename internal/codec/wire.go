package codec

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// #region encode

func numberList(vals []float64) *structpb.Value {
	out := make([]*structpb.Value, len(vals))
	for i, v := range vals {
		out[i] = structpb.NewNumberValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

func stringList(vals []string) *structpb.Value {
	out := make([]*structpb.Value, len(vals))
	for i, v := range vals {
		out[i] = structpb.NewStringValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

func int64List(vals []int64) *structpb.Value {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return numberList(out)
}

func int64Matrix(rows [][]int64) *structpb.Value {
	out := make([]*structpb.Value, len(rows))
	for i, row := range rows {
		out[i] = int64List(row)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

func float32Matrix(rows [][]float32) *structpb.Value {
	out := make([]*structpb.Value, len(rows))
	for i, row := range rows {
		vals := make([]float64, len(row))
		for j, v := range row {
			vals[j] = float64(v)
		}
		out[i] = numberList(vals)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: out})
}

// #endregion encode

// #region decode

func field(s *structpb.Struct, name string) (*structpb.Value, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrShape, name)
	}
	return v, nil
}

func listField(s *structpb.Struct, name string) ([]*structpb.Value, error) {
	v, err := field(s, name)
	if err != nil {
		return nil, err
	}
	lv := v.GetListValue()
	if lv == nil {
		return nil, fmt.Errorf("%w: field %q is not a list", ErrShape, name)
	}
	return lv.GetValues(), nil
}

func decodeStrings(vals []*structpb.Value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.GetStringValue()
	}
	return out
}

func decodeInt64Matrix(vals []*structpb.Value) ([][]int64, error) {
	out := make([][]int64, len(vals))
	for i, row := range vals {
		lv := row.GetListValue()
		if lv == nil {
			return nil, fmt.Errorf("%w: row %d is not a list", ErrShape, i)
		}
		out[i] = make([]int64, len(lv.GetValues()))
		for j, v := range lv.GetValues() {
			out[i][j] = int64(v.GetNumberValue())
		}
	}
	return out, nil
}

func decodeFloat32Matrix(vals []*structpb.Value) ([][]float32, error) {
	out := make([][]float32, len(vals))
	for i, row := range vals {
		lv := row.GetListValue()
		if lv == nil {
			return nil, fmt.Errorf("%w: row %d is not a list", ErrShape, i)
		}
		out[i] = make([]float32, len(lv.GetValues()))
		for j, v := range lv.GetValues() {
			out[i][j] = float32(v.GetNumberValue())
		}
	}
	return out, nil
}

func decodeTensor(v *structpb.Value) (Tensor, error) {
	s := v.GetStructValue()
	if s == nil {
		return Tensor{}, fmt.Errorf("%w: layer is not an object", ErrShape)
	}
	shape, err := listField(s, "shape")
	if err != nil {
		return Tensor{}, err
	}
	if len(shape) != 3 {
		return Tensor{}, fmt.Errorf("%w: layer rank %d, want 3", ErrShape, len(shape))
	}
	data, err := listField(s, "data")
	if err != nil {
		return Tensor{}, err
	}

	var t Tensor
	size := 1
	for i, d := range shape {
		t.Shape[i] = int(d.GetNumberValue())
		if t.Shape[i] < 0 {
			return Tensor{}, fmt.Errorf("%w: layer dimension %d is negative in %v", ErrShape, i, t.Shape)
		}
		size *= t.Shape[i]
	}
	if len(data) != size {
		return Tensor{}, fmt.Errorf("%w: layer has %d values, shape %v wants %d", ErrShape, len(data), t.Shape, size)
	}
	t.Data = make([]float32, size)
	for i, d := range data {
		t.Data[i] = float32(d.GetNumberValue())
	}
	return t, nil
}

// #endregion decode
