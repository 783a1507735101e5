package pool

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// BitmapPool recycles the occupancy bitmaps of released scratch pools.
type BitmapPool struct {
	pool sync.Pool
}

var occupancyBitmaps = NewBitmapPool()

// NewBitmapPool creates an empty pool.
func NewBitmapPool() *BitmapPool {
	return &BitmapPool{
		pool: sync.Pool{
			New: func() any {
				return roaring.New()
			},
		},
	}
}

// Get retrieves an empty bitmap from the pool.
func (p *BitmapPool) Get() *roaring.Bitmap {
	return p.pool.Get().(*roaring.Bitmap)
}

// Put clears bm and returns it to the pool.
func (p *BitmapPool) Put(bm *roaring.Bitmap) {
	if bm != nil {
		bm.Clear()
		p.pool.Put(bm)
	}
}
