// Package s3 provides an Amazon S3 implementation of the blobstore.Store
// interface.
//
// # Usage
//
//	remote, err := s3.NewStoreFromEnv(ctx, "my-bucket", "catalogs/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	lib, err := astrodb.OpenLibrary(host, remotePath, localRoot, astrodb.WithRemoteStore(remote))
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads with CRC32C integrity validation for large record files
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//
// For prefixes with more than one publisher, CommitStore layers a
// DynamoDB commit log over the store so CURRENT pointer swaps become
// atomic:
//
//	store := s3.NewCommitStore(remote, dynamodb.NewFromConfig(cfg), "astrodb-commits")
package s3
