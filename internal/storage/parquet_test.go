package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/metrics"
	"github.com/23skdu/particlegrid/internal/tensor"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParticles() (*tensor.Float32, *tensor.Float32, *tensor.Int32) {
	locs := tensor.NewFloat32(2, 3, 3)
	for i := range locs.Data {
		locs.Data[i] = float32(i) * 0.25
	}
	data := tensor.NewFloat32(2, 3, 2)
	for i := range data.Data {
		data.Data[i] = -float32(i)
	}
	source := tensor.NewInt32(2, 3, 1)
	copy(source.Data, []int32{2, 0, 1, 0, 1, 2})
	return locs, data, source
}

func TestParticles_RoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	locs, data, source := sampleParticles()
	before := testutil.ToFloat64(metrics.StorageRowsTotal.WithLabelValues(particleFile, "write"))

	var buf bytes.Buffer
	require.NoError(t, WriteParticles(&buf, mem, locs, data, source))
	assert.Equal(t, before+6, testutil.ToFloat64(metrics.StorageRowsTotal.WithLabelValues(particleFile, "write")))

	gotLocs, gotData, gotSource, err := ReadParticles(bytes.NewReader(buf.Bytes()), int64(buf.Len()), mem)
	require.NoError(t, err)
	assert.Equal(t, locs.Shape, gotLocs.Shape)
	assert.Equal(t, locs.Data, gotLocs.Data)
	assert.Equal(t, data.Data, gotData.Data)
	assert.Equal(t, source.Data, gotSource.Data)
}

func TestParticles_NoDataNoSource(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	locs, _, _ := sampleParticles()
	var buf bytes.Buffer
	require.NoError(t, WriteParticles(&buf, mem, locs, nil, nil))

	gotLocs, gotData, gotSource, err := ReadParticles(bytes.NewReader(buf.Bytes()), int64(buf.Len()), mem)
	require.NoError(t, err)
	assert.Equal(t, locs.Data, gotLocs.Data)
	assert.Equal(t, tensor.Shape{Batch: 2, Rows: 3, Width: 0}, gotData.Shape)
	assert.Equal(t, []int32{0, 1, 2, 0, 1, 2}, gotSource.Data)
}

func TestParticleRecords_Schema(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	locs, data, source := sampleParticles()
	rec := ParticleRecords(mem, locs, data, source)
	defer rec.Release()

	assert.Equal(t, int64(6), rec.NumRows())
	assert.True(t, rec.Schema().Equal(ParticleSchema(3, 2)))

	rows, err := particleRows(rec)
	require.NoError(t, err)
	assert.Equal(t, ParticleRecord{Batch: 1, Index: 2, Source: 2, Loc: locs.Row(1, 2), Data: data.Row(1, 2)}, rows[5])
}

func writeRawParticles(t *testing.T, rows []ParticleRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	pw := parquet.NewGenericWriter[ParticleRecord](&buf)
	_, err := pw.Write(rows)
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	return buf.Bytes()
}

func TestReadParticles_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		rows []ParticleRecord
	}{
		{"uneven batches", []ParticleRecord{
			{Batch: 0, Index: 0, Loc: []float32{0}},
			{Batch: 0, Index: 1, Loc: []float32{1}},
			{Batch: 1, Index: 0, Loc: []float32{2}},
		}},
		{"index gap", []ParticleRecord{
			{Batch: 0, Index: 0, Loc: []float32{0}},
			{Batch: 0, Index: 2, Loc: []float32{1}},
		}},
		{"ragged coordinates", []ParticleRecord{
			{Batch: 0, Index: 0, Loc: []float32{0, 1}},
			{Batch: 0, Index: 1, Loc: []float32{1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := writeRawParticles(t, tt.rows)
			_, _, _, err := ReadParticles(bytes.NewReader(raw), int64(len(raw)), memory.NewGoAllocator())
			require.Error(t, err)
			assert.True(t, gerrors.IsType(err, gerrors.ErrorTypeShape))
		})
	}
}

func TestReadParticles_OrdersRows(t *testing.T) {
	raw := writeRawParticles(t, []ParticleRecord{
		{Batch: 0, Index: 1, Source: 1, Loc: []float32{1}},
		{Batch: 0, Index: 0, Source: 0, Loc: []float32{0}},
	})
	locs, _, _, err := ReadParticles(bytes.NewReader(raw), int64(len(raw)), memory.NewGoAllocator())
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, locs.Data)
}

func TestReadNeighbors_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		rows []NeighborRecord
	}{
		{"negative batch", []NeighborRecord{
			{Batch: -1, Query: 0, Neighbors: []int32{0, -1}},
		}},
		{"large negative batch", []NeighborRecord{
			{Batch: 0, Query: 0, Neighbors: []int32{0}},
			{Batch: -7, Query: 0, Neighbors: []int32{0}},
		}},
		{"uneven batches", []NeighborRecord{
			{Batch: 0, Query: 0, Neighbors: []int32{0}},
			{Batch: 0, Query: 1, Neighbors: []int32{1}},
			{Batch: 1, Query: 0, Neighbors: []int32{0}},
		}},
		{"query gap", []NeighborRecord{
			{Batch: 0, Query: 0, Neighbors: []int32{0}},
			{Batch: 0, Query: 2, Neighbors: []int32{1}},
		}},
		{"ragged lists", []NeighborRecord{
			{Batch: 0, Query: 0, Neighbors: []int32{0, 1}},
			{Batch: 0, Query: 1, Neighbors: []int32{1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pw := parquet.NewGenericWriter[NeighborRecord](&buf)
			_, err := pw.Write(tt.rows)
			require.NoError(t, err)
			require.NoError(t, pw.Close())

			var got *tensor.Int32
			require.NotPanics(t, func() {
				got, err = ReadNeighbors(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			})
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, gerrors.IsType(err, gerrors.ErrorTypeShape))
		})
	}
}

func TestNeighbors_RoundTrip(t *testing.T) {
	nbrs := tensor.NewInt32(2, 2, 3)
	copy(nbrs.Data, []int32{0, 1, -1, 1, 0, -1, 0, -1, -1, 1, -1, -1})

	var buf bytes.Buffer
	require.NoError(t, WriteNeighbors(&buf, nbrs))
	got, err := ReadNeighbors(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, nbrs.Shape, got.Shape)
	assert.Equal(t, nbrs.Data, got.Data)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	locs, data, source := sampleParticles()
	mem := memory.NewGoAllocator()

	particles := filepath.Join(dir, "particles.parquet")
	require.NoError(t, WriteParticlesFile(particles, mem, locs, data, source))
	gotLocs, _, _, err := ReadParticlesFile(particles, mem)
	require.NoError(t, err)
	assert.Equal(t, locs.Data, gotLocs.Data)

	nbrs := tensor.NewInt32(1, 1, 2)
	neighbors := filepath.Join(dir, "neighbors.parquet")
	require.NoError(t, WriteNeighborsFile(neighbors, nbrs))
	fi, err := os.Stat(neighbors)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))

	_, _, _, err = ReadParticlesFile(filepath.Join(dir, "missing.parquet"), mem)
	var fe *FileError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "open", fe.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = WriteParticlesFile(filepath.Join(dir, "no", "such", "dir.parquet"), mem, locs, nil, nil)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "create", fe.Op)
}
