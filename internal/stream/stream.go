package stream

import (
	"context"
	"fmt"

	"github.com/infinitecloud/infinitecloud/internal/fs"
	"github.com/infinitecloud/infinitecloud/internal/metrics"
)

// ContentFetcher retrieves a byte range of the content behind a pointer
// from the messaging platform. Implemented by telegram.Client.
type ContentFetcher interface {
	FetchRange(ctx context.Context, ptr fs.ContentPointer, offset, length int64) ([]byte, error)
}

// Chunk is one bounded piece of a larger result.
type Chunk struct {
	Kind    string     `json:"kind"`
	Path    string     `json:"path"`
	Entries []fs.Entry `json:"entries,omitempty"`
	Data    []byte     `json:"data,omitempty"`
	Offset  int64      `json:"offset"`
	Total   int64      `json:"total,omitempty"`
	// NextToken resumes the stream; empty means the stream is exhausted.
	NextToken string `json:"next_token,omitempty"`
}

// Builder produces chunks lazily, one per request. It holds no per-stream
// state: every chunk is computed from the tree and the redeemed token.
type Builder struct {
	trees     *fs.Store
	tokenizer *Tokenizer
	fetcher   ContentFetcher
	pageSize  int
	chunkSize int64
}

// NewBuilder creates a Builder. pageSize bounds listing chunks (items),
// chunkSize bounds content chunks (bytes).
func NewBuilder(trees *fs.Store, tok *Tokenizer, fetcher ContentFetcher, pageSize, chunkSize int) *Builder {
	return &Builder{
		trees:     trees,
		tokenizer: tok,
		fetcher:   fetcher,
		pageSize:  pageSize,
		chunkSize: int64(chunkSize),
	}
}

// PageSize returns the configured listing page size.
func (b *Builder) PageSize() int { return b.pageSize }

// ListPage returns one page of the directory listing at path, starting at
// offset, with at most limit items (limit <= 0 uses the default page size).
// A continuation token is attached when more items remain.
func (b *Builder) ListPage(chat fs.ChatID, path string, offset int64, limit int) (*Chunk, error) {
	tree := b.trees.Get(chat)
	if tree == nil {
		return nil, fmt.Errorf("conversation %d: %w", chat, fs.ErrNotFound)
	}
	entries, err := tree.List(path)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = b.pageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(entries)) {
		offset = int64(len(entries))
	}
	end := offset + int64(limit)
	if end > int64(len(entries)) {
		end = int64(len(entries))
	}
	chunk := &Chunk{
		Kind:    KindListing,
		Path:    path,
		Entries: entries[offset:end],
		Offset:  offset,
		Total:   int64(len(entries)),
	}
	if end < int64(len(entries)) {
		token, err := b.tokenizer.Issue(KindListing, chat, path, end)
		if err != nil {
			return nil, err
		}
		chunk.NextToken = token
	}
	metrics.RecordChunkServed(KindListing)
	return chunk, nil
}

// ContentChunk returns one byte-range chunk of the file at path. The whole
// file is never buffered: each call fetches exactly one bounded range from
// the messaging platform.
func (b *Builder) ContentChunk(ctx context.Context, chat fs.ChatID, path string, offset int64) (*Chunk, error) {
	tree := b.trees.Get(chat)
	if tree == nil {
		return nil, fmt.Errorf("conversation %d: %w", chat, fs.ErrNotFound)
	}
	node, err := tree.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !node.IsFile() || node.Content == nil {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrInvalidOperation)
	}
	ptr := *node.Content

	length := b.chunkSize
	if ptr.Size > 0 && offset+length > ptr.Size {
		length = ptr.Size - offset
	}
	if length <= 0 {
		return &Chunk{Kind: KindContent, Path: path, Offset: offset, Total: ptr.Size}, nil
	}

	data, err := b.fetcher.FetchRange(ctx, ptr, offset, length)
	if err != nil {
		return nil, err
	}

	chunk := &Chunk{
		Kind:   KindContent,
		Path:   path,
		Data:   data,
		Offset: offset,
		Total:  ptr.Size,
	}
	next := offset + int64(len(data))
	// A short read means the platform ran out of bytes: end of stream.
	if int64(len(data)) == b.chunkSize && (ptr.Size == 0 || next < ptr.Size) {
		token, err := b.tokenizer.Issue(KindContent, chat, path, next)
		if err != nil {
			return nil, err
		}
		chunk.NextToken = token
	}
	metrics.RecordChunkServed(KindContent)
	metrics.RecordContentBytes(int64(len(data)))
	return chunk, nil
}

// Redeem resolves a continuation token into its next chunk. A token whose
// node no longer exists fails with ErrExpired; callers restart from the
// beginning.
func (b *Builder) Redeem(ctx context.Context, token string) (*Chunk, error) {
	claims, err := b.tokenizer.Redeem(token)
	if err != nil {
		return nil, err
	}
	tree := b.trees.Get(claims.Chat)
	if tree == nil {
		return nil, ErrExpired
	}
	if _, err := tree.Resolve(claims.Path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	switch claims.Kind {
	case KindListing:
		return b.ListPage(claims.Chat, claims.Path, claims.Offset, 0)
	case KindContent:
		return b.ContentChunk(ctx, claims.Chat, claims.Path, claims.Offset)
	default:
		return nil, ErrExpired
	}
}
