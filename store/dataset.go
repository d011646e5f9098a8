package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// DType is the element type of a dataset.
type DType string

const (
	Float64 DType = "float64"
	Int32   DType = "int32"
)

func (d DType) size() int {
	switch d {
	case Float64:
		return 8
	case Int32:
		return 4
	default:
		return 0
	}
}

// Dataset is an n-dimensional array. An empty Shape is a scalar, which is
// distinct from a one-element array of shape [1]. Exactly one of Floats and
// Ints holds the values, matching DType.
type Dataset struct {
	DType  DType
	Shape  []int
	Floats []float64
	Ints   []int32
}

// FloatArray returns a float64 dataset of the given shape.
func FloatArray(shape []int, values []float64) Dataset {
	return Dataset{DType: Float64, Shape: shape, Floats: values}
}

// Int32Scalar returns a zero-dimensional int32 dataset.
func Int32Scalar(v int32) Dataset {
	return Dataset{DType: Int32, Shape: []int{}, Ints: []int32{v}}
}

// IsScalar reports whether the dataset is zero-dimensional.
func (d Dataset) IsScalar() bool { return len(d.Shape) == 0 }

// Size is the element count implied by Shape; 1 for a scalar.
func (d Dataset) Size() int {
	n := 1
	for _, dim := range d.Shape {
		n *= dim
	}
	return n
}

// Scalar returns the value of a zero-dimensional int32 dataset.
func (d Dataset) Scalar() (int32, error) {
	if !d.IsScalar() || d.DType != Int32 || len(d.Ints) != 1 {
		return 0, fmt.Errorf("store: dataset %s%v is not an int32 scalar", d.DType, d.Shape)
	}
	return d.Ints[0], nil
}

func (d Dataset) validate() error {
	for _, dim := range d.Shape {
		if dim < 0 {
			return fmt.Errorf("store: negative dimension in shape %v", d.Shape)
		}
	}
	switch d.DType {
	case Float64:
		if len(d.Floats) != d.Size() || d.Ints != nil {
			return fmt.Errorf("store: float64 dataset shape %v holds %d values", d.Shape, len(d.Floats))
		}
	case Int32:
		if len(d.Ints) != d.Size() || d.Floats != nil {
			return fmt.Errorf("store: int32 dataset shape %v holds %d values", d.Shape, len(d.Ints))
		}
	default:
		return fmt.Errorf("store: unsupported dtype %q", d.DType)
	}
	return nil
}

// encode returns the shape column and little-endian data blob.
func (d Dataset) encode() (string, []byte, error) {
	if err := d.validate(); err != nil {
		return "", nil, err
	}
	shape := d.Shape
	if shape == nil {
		shape = []int{}
	}
	js, err := json.Marshal(shape)
	if err != nil {
		return "", nil, err
	}
	buf := make([]byte, d.Size()*d.DType.size())
	switch d.DType {
	case Float64:
		for i, v := range d.Floats {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
	case Int32:
		for i, v := range d.Ints {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
	}
	return string(js), buf, nil
}

func decodeDataset(dtype, shapeJSON string, blob []byte) (Dataset, error) {
	d := Dataset{DType: DType(dtype)}
	if err := json.Unmarshal([]byte(shapeJSON), &d.Shape); err != nil {
		return Dataset{}, fmt.Errorf("store: decode shape %q: %w", shapeJSON, ErrFormat)
	}
	if d.Shape == nil {
		d.Shape = []int{}
	}
	size := d.DType.size()
	if size == 0 {
		return Dataset{}, fmt.Errorf("store: dtype %q: %w", dtype, ErrFormat)
	}
	n := d.Size()
	if len(blob) != n*size {
		return Dataset{}, fmt.Errorf("store: shape %v needs %d bytes, have %d: %w", d.Shape, n*size, len(blob), ErrFormat)
	}
	switch d.DType {
	case Float64:
		d.Floats = make([]float64, n)
		for i := range d.Floats {
			d.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
		}
	case Int32:
		d.Ints = make([]int32, n)
		for i := range d.Ints {
			d.Ints[i] = int32(binary.LittleEndian.Uint32(blob[i*4:]))
		}
	}
	return d, nil
}
