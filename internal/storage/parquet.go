package storage

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/metrics"
	"github.com/23skdu/particlegrid/internal/tensor"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"
)

// ParticleRecord represents a single particle row for Parquet serialization
type ParticleRecord struct {
	Batch  int32     `parquet:"batch"`
	Index  int32     `parquet:"index"`
	Source int32     `parquet:"source"`
	Loc    []float32 `parquet:"loc"`
	Data   []float32 `parquet:"data"`
}

// NeighborRecord is one query point's fixed-width neighbor list, -1 padded
type NeighborRecord struct {
	Batch     int32   `parquet:"batch"`
	Query     int32   `parquet:"query"`
	Neighbors []int32 `parquet:"neighbors"`
}

const (
	particleFile = "particles"
	neighborFile = "neighbors"
)

// ParticleSchema returns the Arrow schema of a particle record batch with
// dim coordinates and width features per row.
func ParticleSchema(dim, width int) *arrow.Schema {
	md := arrow.NewMetadata([]string{"particlegrid.entry_type"}, []string{particleFile})
	return arrow.NewSchema([]arrow.Field{
		{Name: "batch", Type: arrow.PrimitiveTypes.Int32},
		{Name: "index", Type: arrow.PrimitiveTypes.Int32},
		{Name: "source", Type: arrow.PrimitiveTypes.Int32},
		{Name: "loc", Type: arrow.FixedSizeListOf(int32(dim), arrow.PrimitiveTypes.Float32)},
		{Name: "data", Type: arrow.FixedSizeListOf(int32(width), arrow.PrimitiveTypes.Float32)},
	}, &md)
}

// ParticleRecords packs locs (B×N×D), optional data (B×N×C) and optional
// source indices (B×N×1) into one Arrow record of B*N rows. Without source
// every row is its own source.
func ParticleRecords(mem memory.Allocator, locs, data *tensor.Float32, source *tensor.Int32) arrow.Record {
	if data == nil {
		data = tensor.NewFloat32(locs.Batch, locs.Rows, 0)
	}
	rows := locs.Batch * locs.Rows

	batchB := array.NewInt32Builder(mem)
	defer batchB.Release()
	indexB := array.NewInt32Builder(mem)
	defer indexB.Release()
	sourceB := array.NewInt32Builder(mem)
	defer sourceB.Release()
	batchB.Reserve(rows)
	indexB.Reserve(rows)
	sourceB.Reserve(rows)
	for b := 0; b < locs.Batch; b++ {
		for i := 0; i < locs.Rows; i++ {
			batchB.Append(int32(b))
			indexB.Append(int32(i))
			if source != nil {
				sourceB.Append(source.Row(b, i)[0])
			} else {
				sourceB.Append(int32(i))
			}
		}
	}

	cols := []arrow.Array{
		batchB.NewArray(),
		indexB.NewArray(),
		sourceB.NewArray(),
		tensor.Float32ToList(mem, locs),
		tensor.Float32ToList(mem, data),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecord(ParticleSchema(locs.Width, data.Width), cols, int64(rows))
}

// WriteParticles writes locs, data and source as a zstd Parquet file.
func WriteParticles(w io.Writer, mem memory.Allocator, locs, data *tensor.Float32, source *tensor.Int32) error {
	rec := ParticleRecords(mem, locs, data, source)
	defer rec.Release()
	return writeParquet(w, rec)
}

// writeParquet writes one or more particle records to a Parquet writer.
// It uses a single parquet.Writer to ensure a valid file with one footer.
func writeParquet(w io.Writer, records ...arrow.Record) error {
	pw := parquet.NewGenericWriter[ParticleRecord](w, parquet.Compression(&parquet.Zstd))
	defer func() {
		// Best effort close on early return
		_ = pw.Close()
	}()

	start := time.Now()
	written := 0
	for _, rec := range records {
		rows, err := particleRows(rec)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		if _, err := pw.Write(rows); err != nil {
			return err
		}
		written += len(rows)
	}

	if err := pw.Close(); err != nil {
		return err
	}
	observeWrite(w, particleFile, start, written)
	return nil
}

// particleRows converts an Arrow record laid out by ParticleSchema.
func particleRows(rec arrow.Record) ([]ParticleRecord, error) {
	cols := map[string]int{}
	for i, f := range rec.Schema().Fields() {
		cols[f.Name] = i
	}
	for _, name := range []string{"batch", "index", "source", "loc", "data"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("particle record has no %q column", name)
		}
	}

	batchCol, ok1 := rec.Column(cols["batch"]).(*array.Int32)
	indexCol, ok2 := rec.Column(cols["index"]).(*array.Int32)
	sourceCol, ok3 := rec.Column(cols["source"]).(*array.Int32)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("particle record batch/index/source columns must be int32")
	}
	loc, err := listValues(rec.Column(cols["loc"]))
	if err != nil {
		return nil, fmt.Errorf("loc column: %w", err)
	}
	data, err := listValues(rec.Column(cols["data"]))
	if err != nil {
		return nil, fmt.Errorf("data column: %w", err)
	}

	rows := make([]ParticleRecord, rec.NumRows())
	for i := range rows {
		rows[i] = ParticleRecord{
			Batch:  batchCol.Value(i),
			Index:  indexCol.Value(i),
			Source: sourceCol.Value(i),
			Loc:    loc.row(i),
			Data:   data.row(i),
		}
	}
	return rows, nil
}

type floatList struct {
	list *array.FixedSizeList
	vals []float32
}

func listValues(col arrow.Array) (floatList, error) {
	list, ok := col.(*array.FixedSizeList)
	if !ok {
		return floatList{}, fmt.Errorf("expected fixed_size_list, got %s", col.DataType())
	}
	vals, ok := list.ListValues().(*array.Float32)
	if !ok {
		return floatList{}, fmt.Errorf("unsupported list element type: %s", list.ListValues().DataType())
	}
	return floatList{list: list, vals: vals.Float32Values()}, nil
}

func (l floatList) row(i int) []float32 {
	start, end := l.list.ValueOffsets(i)
	return l.vals[start:end]
}

// ReadParticles reads a particle file written by WriteParticles. Rows are
// grouped by batch element and ordered by index; every element must hold the
// same number of rows and every row the same widths. The tensors are built
// through an Arrow record allocated from mem.
func ReadParticles(r io.ReaderAt, size int64, mem memory.Allocator) (locs, data *tensor.Float32, source *tensor.Int32, err error) {
	rows, err := readRows[ParticleRecord](r, size)
	if err != nil {
		return nil, nil, nil, err
	}
	metrics.StorageRowsTotal.WithLabelValues(particleFile, "read").Add(float64(len(rows)))
	if len(rows) == 0 {
		return nil, nil, nil, gerrors.NewShapeError("read_particles", "file holds no particles")
	}

	slices.SortStableFunc(rows, func(a, b ParticleRecord) int {
		if c := cmp.Compare(a.Batch, b.Batch); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	batch := int(rows[len(rows)-1].Batch) + 1
	if batch <= 0 || len(rows)%batch != 0 {
		return nil, nil, nil, gerrors.NewShapeError("read_particles",
			fmt.Sprintf("%d rows do not split evenly into %d batch elements", len(rows), batch))
	}
	n := len(rows) / batch
	dim, width := len(rows[0].Loc), len(rows[0].Data)
	for i, row := range rows {
		if int(row.Batch) != i/n || int(row.Index) != i%n {
			return nil, nil, nil, gerrors.NewShapeError("read_particles",
				fmt.Sprintf("row %d is (batch %d, index %d), expected (%d, %d)", i, row.Batch, row.Index, i/n, i%n))
		}
		if len(row.Loc) != dim || len(row.Data) != width {
			return nil, nil, nil, gerrors.NewShapeError("read_particles",
				fmt.Sprintf("row %d has %d coordinates and %d features, expected %d and %d", i, len(row.Loc), len(row.Data), dim, width))
		}
	}

	rec := particleRecordFromRows(mem, rows, dim, width)
	defer rec.Release()

	if locs, err = tensor.Float32FromList(rec.Column(3), batch); err != nil {
		return nil, nil, nil, err
	}
	if data, err = tensor.Float32FromList(rec.Column(4), batch); err != nil {
		return nil, nil, nil, err
	}
	source = tensor.NewInt32(batch, n, 1)
	copy(source.Data, rec.Column(2).(*array.Int32).Int32Values())
	return locs, data, source, nil
}

func particleRecordFromRows(mem memory.Allocator, rows []ParticleRecord, dim, width int) arrow.Record {
	b := array.NewRecordBuilder(mem, ParticleSchema(dim, width))
	defer b.Release()

	batchB := b.Field(0).(*array.Int32Builder)
	indexB := b.Field(1).(*array.Int32Builder)
	sourceB := b.Field(2).(*array.Int32Builder)
	locB := b.Field(3).(*array.FixedSizeListBuilder)
	locVals := locB.ValueBuilder().(*array.Float32Builder)
	dataB := b.Field(4).(*array.FixedSizeListBuilder)
	dataVals := dataB.ValueBuilder().(*array.Float32Builder)

	for _, row := range rows {
		batchB.Append(row.Batch)
		indexB.Append(row.Index)
		sourceB.Append(row.Source)
		locB.Append(true)
		locVals.AppendValues(row.Loc, nil)
		dataB.Append(true)
		dataVals.AppendValues(row.Data, nil)
	}
	return b.NewRecord()
}

// WriteNeighbors writes a B×M×K neighbor buffer, one row per query point.
func WriteNeighbors(w io.Writer, nbrs *tensor.Int32) error {
	pw := parquet.NewGenericWriter[NeighborRecord](w, parquet.Compression(&parquet.Zstd))
	defer func() {
		_ = pw.Close()
	}()

	start := time.Now()
	rows := make([]NeighborRecord, 0, nbrs.Batch*nbrs.Rows)
	for b := 0; b < nbrs.Batch; b++ {
		for i := 0; i < nbrs.Rows; i++ {
			rows = append(rows, NeighborRecord{
				Batch:     int32(b),
				Query:     int32(i),
				Neighbors: nbrs.Row(b, i),
			})
		}
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return err
		}
	}
	if err := pw.Close(); err != nil {
		return err
	}
	observeWrite(w, neighborFile, start, len(rows))
	return nil
}

// ReadNeighbors reads a file written by WriteNeighbors back into a B×M×K buffer.
func ReadNeighbors(r io.ReaderAt, size int64) (*tensor.Int32, error) {
	rows, err := readRows[NeighborRecord](r, size)
	if err != nil {
		return nil, err
	}
	metrics.StorageRowsTotal.WithLabelValues(neighborFile, "read").Add(float64(len(rows)))
	if len(rows) == 0 {
		return tensor.NewInt32(0, 0, 0), nil
	}

	batch := int(rows[len(rows)-1].Batch) + 1
	if batch <= 0 || len(rows)%batch != 0 {
		return nil, gerrors.NewShapeError("read_neighbors",
			fmt.Sprintf("%d rows do not split evenly into %d batch elements", len(rows), batch))
	}
	m, k := len(rows)/batch, len(rows[0].Neighbors)
	for i, row := range rows {
		if int(row.Batch) != i/m || int(row.Query) != i%m {
			return nil, gerrors.NewShapeError("read_neighbors",
				fmt.Sprintf("row %d is (batch %d, query %d), expected (%d, %d)", i, row.Batch, row.Query, i/m, i%m))
		}
		if len(row.Neighbors) != k {
			return nil, gerrors.NewShapeError("read_neighbors",
				fmt.Sprintf("row %d holds %d neighbors, expected %d", i, len(row.Neighbors), k))
		}
	}

	out := tensor.NewInt32(batch, m, k)
	for i, row := range rows {
		copy(out.Row(i/m, i%m), row.Neighbors)
	}
	return out, nil
}

func readRows[T any](r io.ReaderAt, size int64) ([]T, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, err
	}

	pr := parquet.NewGenericReader[T](pf)
	defer func() {
		_ = pr.Close()
	}()
	rows := make([]T, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return rows[:n], nil
}

func observeWrite(w io.Writer, file string, start time.Time, rows int) {
	metrics.StorageWriteDurationSeconds.WithLabelValues(file).Observe(time.Since(start).Seconds())
	metrics.StorageRowsTotal.WithLabelValues(file, "write").Add(float64(rows))
	if fi, ok := w.(interface{ Stat() (os.FileInfo, error) }); ok {
		if stat, err := fi.Stat(); err == nil {
			metrics.StorageFileBytes.WithLabelValues(file).Observe(float64(stat.Size()))
		}
	}
}
