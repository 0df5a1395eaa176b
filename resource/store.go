package resource

import (
	"context"

	"github.com/hupe1980/shardvec/blobstore"
)

// LimitedStore wraps a BlobStore so every transfer holds a Controller slot
// and pays its size against the I/O rate limit.
type LimitedStore struct {
	inner blobstore.BlobStore
	rc    *Controller
}

// WrapStore returns bs guarded by rc. A nil controller returns bs unchanged.
func WrapStore(bs blobstore.BlobStore, rc *Controller) blobstore.BlobStore {
	if rc == nil || bs == nil {
		return bs
	}
	if ls, ok := bs.(*LimitedStore); ok && ls.rc == rc {
		return bs
	}
	return &LimitedStore{inner: bs, rc: rc}
}

// Unwrap returns the wrapped store.
func (s *LimitedStore) Unwrap() blobstore.BlobStore { return s.inner }

// Get reads a blob, then charges its size against the rate limit.
func (s *LimitedStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := s.rc.AcquireIOSlot(ctx); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseIOSlot()

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// Put charges the blob size against the rate limit, then writes it.
func (s *LimitedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireIOSlot(ctx); err != nil {
		return err
	}
	defer s.rc.ReleaseIOSlot()

	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	return s.inner.Put(ctx, name, data)
}

// Delete removes a blob.
func (s *LimitedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List lists blobs.
func (s *LimitedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}
