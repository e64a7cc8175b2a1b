package gateway

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectIterator lazily walks a bucket listing.
//
//	it := gw.ListObjects(ctx, bucket, "")
//	defer it.Close()
//	for it.Next() {
//		obj := it.Object()
//	}
//	if err := it.Err(); err != nil { ... }
type ObjectIterator struct {
	gw     *Gateway
	bucket string
	ch     <-chan minio.ObjectInfo
	cancel context.CancelFunc
	start  time.Time

	cur  ObjectSummary
	err  error
	done bool
}

// Next advances to the next object. It returns false at the end of the
// listing, on error, or after Close.
func (it *ObjectIterator) Next() bool {
	if it.done {
		return false
	}
	info, ok := <-it.ch
	if !ok {
		it.finish(nil)
		return false
	}
	if info.Err != nil {
		it.finish(info.Err)
		return false
	}
	it.cur = summarize(info)
	return true
}

// Object returns the current object.
func (it *ObjectIterator) Object() ObjectSummary { return it.cur }

// Err returns the error that stopped iteration, if any.
func (it *ObjectIterator) Err() error { return it.err }

// Close stops the listing and releases its context.
func (it *ObjectIterator) Close() {
	if !it.done {
		it.done = true
		it.cancel()
	}
}

func (it *ObjectIterator) finish(err error) {
	it.done = true
	it.cancel()
	if err != nil {
		it.err = it.gw.finish("ListObjects", it.bucket, "", it.start, err)
		return
	}
	_ = it.gw.finish("ListObjects", it.bucket, "", it.start, nil)
}

// Collect drains it into a slice and closes it.
func Collect(it *ObjectIterator) ([]ObjectSummary, error) {
	defer it.Close()

	var out []ObjectSummary
	for it.Next() {
		out = append(out, it.Object())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
