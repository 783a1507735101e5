package gpu

import "errors"

// ErrGPUNotAvailable is returned by Open in builds without accelerator kernels.
var ErrGPUNotAvailable = errors.New("GPU support not enabled in this build")

// Open attaches to the configured accelerator.
func Open(cfg Config) (Device, error) {
	return nil, ErrGPUNotAvailable
}
