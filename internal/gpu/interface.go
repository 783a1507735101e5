package gpu

// Config selects an accelerator.
type Config struct {
	DeviceID int
}

// Device runs hash grid kernels on an accelerator.
//
// Launch executes kernel over lanes [0, lanes) and blocks until every lane
// has completed, so the host never observes a partially applied sort or
// reorder. A failed launch is reported once and never retried.
type Device interface {
	Name() string
	// Parallelism is the number of lanes the device runs at once.
	Parallelism() int
	Launch(lanes int, kernel func(lo, hi int)) error
	// Close releases device resources.
	Close() error
}
