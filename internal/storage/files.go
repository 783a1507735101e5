package storage

import (
	"os"

	"github.com/23skdu/particlegrid/internal/tensor"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ReadParticlesFile opens path and reads it with ReadParticles.
func ReadParticlesFile(path string, mem memory.Allocator) (locs, data *tensor.Float32, source *tensor.Int32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, NewFileError("open", path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, nil, NewFileError("stat", path, err)
	}
	locs, data, source, err = ReadParticles(f, fi.Size(), mem)
	if err != nil {
		return nil, nil, nil, NewFileError("read", path, err)
	}
	return locs, data, source, nil
}

// WriteParticlesFile creates path and writes the particles to it.
func WriteParticlesFile(path string, mem memory.Allocator, locs, data *tensor.Float32, source *tensor.Int32) error {
	return writeFile(path, func(f *os.File) error {
		return WriteParticles(f, mem, locs, data, source)
	})
}

// WriteNeighborsFile creates path and writes the neighbor lists to it.
func WriteNeighborsFile(path string, nbrs *tensor.Int32) error {
	return writeFile(path, func(f *os.File) error {
		return WriteNeighbors(f, nbrs)
	})
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return NewFileError("create", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return NewFileError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return NewFileError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		return NewFileError("close", path, err)
	}
	return nil
}
