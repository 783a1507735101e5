// Package tensor holds the rectangular (batch, row, width) buffers exchanged
// with the hash grid pipeline.
package tensor

import (
	"fmt"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
)

// Placement says where a buffer's storage lives.
type Placement uint8

const (
	Host Placement = iota
	Device
)

func (p Placement) String() string {
	switch p {
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("placement(%d)", uint8(p))
	}
}

// Shape is (batch, rows, width).
type Shape struct {
	Batch int
	Rows  int
	Width int
}

func (s Shape) Len() int { return s.Batch * s.Rows * s.Width }

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Batch, s.Rows, s.Width)
}

func (s Shape) validate(op, name string, n int) error {
	if s.Batch < 0 || s.Rows < 0 || s.Width < 0 {
		return gerrors.NewShapeError(op, fmt.Sprintf("%s has negative shape %s", name, s)).
			WithContext("argument", name)
	}
	if s.Len() != n {
		return gerrors.NewShapeError(op, fmt.Sprintf("%s shape %s needs %d values, buffer holds %d", name, s, s.Len(), n)).
			WithContext("argument", name)
	}
	return nil
}

// Float32 is a dense row-major float32 buffer.
type Float32 struct {
	Shape
	Data      []float32
	Placement Placement
}

// NewFloat32 allocates a zeroed host buffer.
func NewFloat32(batch, rows, width int) *Float32 {
	return &Float32{
		Shape: Shape{Batch: batch, Rows: rows, Width: width},
		Data:  make([]float32, batch*rows*width),
	}
}

// WrapFloat32 views data as a batch×rows×width host buffer without copying.
func WrapFloat32(data []float32, batch, rows, width int) (*Float32, error) {
	s := Shape{Batch: batch, Rows: rows, Width: width}
	if err := s.validate("wrap", "data", len(data)); err != nil {
		return nil, err
	}
	return &Float32{Shape: s, Data: data}, nil
}

// Element returns the rows×width block of batch element b.
func (t *Float32) Element(b int) []float32 {
	n := t.Rows * t.Width
	return t.Data[b*n : (b+1)*n]
}

// Row returns the width values of row i in batch element b.
func (t *Float32) Row(b, i int) []float32 {
	off := (b*t.Rows + i) * t.Width
	return t.Data[off : off+t.Width]
}

// Clone deep-copies the buffer.
func (t *Float32) Clone() *Float32 {
	c := &Float32{Shape: t.Shape, Placement: t.Placement, Data: make([]float32, len(t.Data))}
	copy(c.Data, t.Data)
	return c
}

// Validate checks the buffer length against its shape.
func (t *Float32) Validate(op, name string) error {
	if t == nil {
		return gerrors.NewShapeError(op, name+" is nil").WithContext("argument", name)
	}
	return t.Shape.validate(op, name, len(t.Data))
}

// Int32 is a dense row-major int32 buffer for permutations and neighbor lists.
type Int32 struct {
	Shape
	Data      []int32
	Placement Placement
}

// NewInt32 allocates a zeroed host buffer.
func NewInt32(batch, rows, width int) *Int32 {
	return &Int32{
		Shape: Shape{Batch: batch, Rows: rows, Width: width},
		Data:  make([]int32, batch*rows*width),
	}
}

// WrapInt32 views data as a batch×rows×width host buffer without copying.
func WrapInt32(data []int32, batch, rows, width int) (*Int32, error) {
	s := Shape{Batch: batch, Rows: rows, Width: width}
	if err := s.validate("wrap", "data", len(data)); err != nil {
		return nil, err
	}
	return &Int32{Shape: s, Data: data}, nil
}

// Element returns the rows×width block of batch element b.
func (t *Int32) Element(b int) []int32 {
	n := t.Rows * t.Width
	return t.Data[b*n : (b+1)*n]
}

// Row returns the width values of row i in batch element b.
func (t *Int32) Row(b, i int) []int32 {
	off := (b*t.Rows + i) * t.Width
	return t.Data[off : off+t.Width]
}

// Fill sets every value to v.
func (t *Int32) Fill(v int32) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Clone deep-copies the buffer.
func (t *Int32) Clone() *Int32 {
	c := &Int32{Shape: t.Shape, Placement: t.Placement, Data: make([]int32, len(t.Data))}
	copy(c.Data, t.Data)
	return c
}

// Validate checks the buffer length against its shape.
func (t *Int32) Validate(op, name string) error {
	if t == nil {
		return gerrors.NewShapeError(op, name+" is nil").WithContext("argument", name)
	}
	return t.Shape.validate(op, name, len(t.Data))
}

// Expect describes a required shape; negative fields are wildcards.
type Expect struct {
	Batch int
	Rows  int
	Width int
}

// Check reports a ShapeError naming the first mismatched axis.
func Check(op, name string, got Shape, want Expect) error {
	axes := [...]struct {
		axis      string
		got, want int
	}{
		{"batch", got.Batch, want.Batch},
		{"rows", got.Rows, want.Rows},
		{"width", got.Width, want.Width},
	}
	for _, a := range axes {
		if a.want >= 0 && a.got != a.want {
			return gerrors.NewShapeError(op, fmt.Sprintf("%s %s is %d, expected %d", name, a.axis, a.got, a.want)).
				WithContext("argument", name).
				WithContext("axis", a.axis)
		}
	}
	return nil
}
