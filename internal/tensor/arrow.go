package tensor

import (
	"fmt"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Float32FromList copies a FixedSizeList column of batch*rows entries into a
// batch×rows×listSize host buffer. Float32 and Float64 elements are accepted.
func Float32FromList(col arrow.Array, batch int) (*Float32, error) {
	list, ok := col.(*array.FixedSizeList)
	if !ok {
		return nil, gerrors.NewShapeError("arrow", fmt.Sprintf("expected fixed_size_list column, got %s", col.DataType()))
	}
	if col.NullN() > 0 {
		return nil, gerrors.NewShapeError("arrow", fmt.Sprintf("column has %d null rows", col.NullN()))
	}
	dt := list.DataType().(*arrow.FixedSizeListType)
	width := int(dt.Len())
	total := list.Len()
	if batch <= 0 || total%batch != 0 {
		return nil, gerrors.NewShapeError("arrow", fmt.Sprintf("%d rows do not split into %d batch elements", total, batch))
	}

	out := NewFloat32(batch, total/batch, width)
	switch vals := list.ListValues().(type) {
	case *array.Float32:
		raw := vals.Float32Values()
		for i := 0; i < total; i++ {
			start, end := list.ValueOffsets(i)
			copy(out.Data[i*width:(i+1)*width], raw[start:end])
		}
	case *array.Float64:
		raw := vals.Float64Values()
		for i := 0; i < total; i++ {
			start, _ := list.ValueOffsets(i)
			for k := 0; k < width; k++ {
				out.Data[i*width+k] = float32(raw[int(start)+k])
			}
		}
	default:
		return nil, gerrors.NewShapeError("arrow", fmt.Sprintf("unsupported list element type: %s", dt.Elem()))
	}
	return out, nil
}

// Float32ToList flattens t into a FixedSizeList<float32>[Width] of Batch*Rows entries.
func Float32ToList(mem memory.Allocator, t *Float32) *array.FixedSizeList {
	bldr := array.NewFixedSizeListBuilder(mem, int32(t.Width), arrow.PrimitiveTypes.Float32)
	defer bldr.Release()
	vb := bldr.ValueBuilder().(*array.Float32Builder)

	rows := t.Batch * t.Rows
	bldr.Reserve(rows)
	vb.Reserve(len(t.Data))
	for i := 0; i < rows; i++ {
		bldr.Append(true)
		vb.AppendValues(t.Data[i*t.Width:(i+1)*t.Width], nil)
	}
	return bldr.NewListArray()
}

// Int32ToList flattens t into a FixedSizeList<int32>[Width] of Batch*Rows entries.
func Int32ToList(mem memory.Allocator, t *Int32) *array.FixedSizeList {
	bldr := array.NewFixedSizeListBuilder(mem, int32(t.Width), arrow.PrimitiveTypes.Int32)
	defer bldr.Release()
	vb := bldr.ValueBuilder().(*array.Int32Builder)

	rows := t.Batch * t.Rows
	bldr.Reserve(rows)
	vb.Reserve(len(t.Data))
	for i := 0; i < rows; i++ {
		bldr.Append(true)
		vb.AppendValues(t.Data[i*t.Width:(i+1)*t.Width], nil)
	}
	return bldr.NewListArray()
}
