// Package minio provides a BlobStore implementation using the MinIO client.
//
// MinIO is an S3-compatible object store. The official MinIO Go client also
// talks to other S3-compatible systems such as Ceph, SeaweedFS and Garage,
// without pulling in the AWS SDK.
//
// # Basic Usage
//
//	bs, err := minio.NewStoreFromConfig(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "vectors",
//	    Prefix:    "docs/",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = store.SaveTo(ctx, bs, "docs")
//
// An existing *minio.Client can be wrapped with NewStore.
package minio
