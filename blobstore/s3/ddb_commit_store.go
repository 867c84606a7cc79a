package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/astrodb/blobstore"
)

// ErrConcurrentCommit is returned when another publisher won the pointer
// swap; the losing publisher should re-mirror and retry.
var ErrConcurrentCommit = errors.New("concurrent pointer commit detected")

const defaultPointerName = "CURRENT"

// CommitClient is the subset of the DynamoDB API used by CommitStore.
type CommitClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// CommitStoreOptions configures a CommitStore.
type CommitStoreOptions struct {
	// Pointer is the blob name routed through the commit log.
	// Defaults to "CURRENT".
	Pointer string
}

// CommitStore wraps an S3 Store so updates to the library pointer file go
// through DynamoDB conditional writes. S3 has no compare-and-swap, so two
// libraries publishing to the same prefix can silently clobber each
// other's CURRENT; the commit log gives the swap last-writer-loses
// semantics instead.
//
// Every commit also writes a plain copy of the pointer object to S3, so
// read-only consumers without DynamoDB access still work. The copy is
// advisory; opens through the CommitStore always consult the log.
//
// Table schema:
//   - Partition key: scope (string) - the s3://bucket/prefix identity
//   - Sort key: version (number) - monotonically increasing commit version
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name astrodb-commits \
//	  --attribute-definitions AttributeName=scope,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=scope,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	inner   *Store
	ddb     CommitClient
	table   string
	scope   string
	pointer string
}

var _ blobstore.Store = (*CommitStore)(nil)

// NewCommitStore wraps inner with a DynamoDB commit log in the given
// table. The partition key is derived from the inner store's bucket and
// prefix, so stores publishing to different prefixes never contend.
func NewCommitStore(inner *Store, ddb CommitClient, tableName string, optFns ...func(*CommitStoreOptions)) *CommitStore {
	opts := CommitStoreOptions{Pointer: defaultPointerName}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &CommitStore{
		inner:   inner,
		ddb:     ddb,
		table:   tableName,
		scope:   "s3://" + inner.bucket + "/" + inner.prefix,
		pointer: opts.Pointer,
	}
}

// Open opens a blob for reading. The pointer name reads the latest
// committed value from the log; everything else comes from S3.
func (s *CommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != s.pointer {
		return s.inner.Open(ctx, name)
	}

	version, content, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return &pointerBlob{content: []byte(content)}, nil
}

// Put writes a blob. The pointer name commits through the log.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != s.pointer {
		return s.inner.Put(ctx, name, data)
	}
	return s.commit(ctx, data)
}

// Create creates a writable blob. A streamed pointer write (the path
// Mirror and Publish take) buffers and commits on Close; Abort discards
// the buffer without touching the log.
func (s *CommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name != s.pointer {
		return s.inner.Create(ctx, name)
	}
	return &pointerWriter{cs: s, ctx: ctx}, nil
}

// Delete removes a blob. Deleting the pointer removes only the advisory
// S3 copy; the commit log keeps its history.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List returns the names of all blobs with the given prefix. Listing
// sees the advisory S3 copies, so a committed pointer shows up here too.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// latest returns the highest committed version and its pointer content.
// A scope with no commits yields version 0.
func (s *CommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#s = :scope"),
		ExpressionAttributeNames: map[string]string{"#s": "scope"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scope": &types.AttributeValueMemberS{Value: s.scope},
		},
		ScanIndexForward: aws.Bool(false), // highest version first
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit log: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("commit log: missing version attribute")
	}
	pointerAttr, ok := item["pointer"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("commit log: missing pointer attribute")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("commit log: parse version: %w", err)
	}
	return version, pointerAttr.Value, nil
}

// commit appends the next version with a conditional write, then mirrors
// the winning pointer into S3 for log-free readers.
func (s *CommitStore) commit(ctx context.Context, content []byte) error {
	version, _, err := s.latest(ctx)
	if err != nil {
		return err
	}
	next := version + 1

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"scope":   &types.AttributeValueMemberS{Value: s.scope},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"pointer": &types.AttributeValueMemberS{Value: string(content)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrConcurrentCommit
		}
		return fmt.Errorf("commit pointer: %w", err)
	}

	if err := s.inner.Put(ctx, s.pointer, content); err != nil {
		return fmt.Errorf("mirror pointer to s3: %w", err)
	}
	return nil
}

// pointerBlob serves committed pointer content from memory.
type pointerBlob struct {
	content []byte
}

var _ blobstore.Blob = (*pointerBlob)(nil)

func (b *pointerBlob) Close() error { return nil }

func (b *pointerBlob) Size() int64 { return int64(len(b.content)) }

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *pointerBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if length <= 0 || off >= int64(len(b.content)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(b.content)) {
		end = int64(len(b.content))
	}
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}

// pointerWriter buffers a streamed pointer write and commits on Close.
type pointerWriter struct {
	cs     *CommitStore
	ctx    context.Context
	buf    bytes.Buffer
	closed bool
}

var _ blobstore.WritableBlob = (*pointerWriter)(nil)

func (w *pointerWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("pointer writer is closed")
	}
	return w.buf.Write(p)
}

func (w *pointerWriter) Sync() error { return nil }

// Close commits the buffered pointer. Closing twice is a no-op.
func (w *pointerWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.cs.commit(w.ctx, w.buf.Bytes())
}

// Abort discards the buffer without committing.
func (w *pointerWriter) Abort() error {
	w.closed = true
	return nil
}
