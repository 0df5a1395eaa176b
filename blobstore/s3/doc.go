// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// # Usage
//
//	bs, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/docs"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	err = store.SaveTo(ctx, bs, "docs")
//
// Uploads go through the s3 manager, so large shard files are sent as
// multipart uploads. Listing follows continuation tokens automatically.
package s3
