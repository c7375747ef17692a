// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pgvector stores chunks and their embeddings in PostgreSQL with the
// pgvector extension. It serves the same role as the badger VectorStore for
// deployments that already run Postgres.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/poiesic/graphrag/core"
	"github.com/poiesic/graphrag/storage"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS graphrag_chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text        TEXT NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	"offset"    INTEGER NOT NULL DEFAULT 0,
	metadata    JSONB NOT NULL DEFAULT '{}',
	embedding   vector,
	inserted_at TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS graphrag_chunks_document_idx ON graphrag_chunks (document_id);
`

const selectColumns = `id, document_id, text, page, "offset", metadata, embedding, inserted_at, updated_at`

// VectorStore implements storage.VectorStore on a pgx connection pool.
type VectorStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// Open connects to dsn, registers the vector type on every connection and
// creates the chunk table if needed.
func Open(ctx context.Context, dsn string) (*VectorStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	// The extension must exist before the type can be registered.
	if err := ensureExtension(ctx, cfg.ConnConfig); err != nil {
		return nil, err
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &VectorStore{
		pool:   pool,
		logger: slog.Default().With("component", "pgvector"),
	}, nil
}

func ensureExtension(ctx context.Context, cfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *VectorStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertChunks inserts or replaces chunks by id in one transaction.
func (s *VectorStore) UpsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, chunk := range chunks {
		metadata, err := json.Marshal(metadataOrEmpty(chunk.Metadata))
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		var embedding *pgvector.Vector
		if len(chunk.Vector) > 0 {
			v := pgvector.NewVector(chunk.Vector)
			embedding = &v
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO graphrag_chunks (id, document_id, text, page, "offset", metadata, embedding, inserted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				text = EXCLUDED.text,
				page = EXCLUDED.page,
				"offset" = EXCLUDED."offset",
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at
			RETURNING inserted_at`,
			chunk.Id, chunk.DocumentId, chunk.Text, chunk.Page, chunk.Offset, metadata, embedding, now,
		).Scan(&chunk.InsertedAt)
		if err != nil {
			return err
		}
		chunk.UpdatedAt = now
	}
	return tx.Commit(ctx)
}

// GetChunk retrieves a single chunk by id.
func (s *VectorStore) GetChunk(ctx context.Context, id string) (*core.Chunk, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM graphrag_chunks WHERE id = $1`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return chunk, err
}

// GetChunks retrieves multiple chunks by id, in the order requested.
func (s *VectorStore) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM graphrag_chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	byID, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*core.Chunk, len(byID))
	for _, c := range byID {
		index[c.Id] = c
	}
	var result []*core.Chunk
	for _, id := range ids {
		if c, ok := index[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// Nearest ranks chunks by cosine distance using the pgvector operator.
func (s *VectorStore) Nearest(ctx context.Context, vector []float32, k int, filter core.MetadataFilter) ([]*core.ScoredChunk, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}
	filterJSON, err := json.Marshal(metadataOrEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`, 1 - (embedding <=> $1) AS score
		FROM graphrag_chunks
		WHERE embedding IS NOT NULL AND vector_dims(embedding) = $2 AND metadata @> $3
		ORDER BY embedding <=> $1, id
		LIMIT $4`,
		pgvector.NewVector(vector), len(vector), filterJSON, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.ScoredChunk
	for rows.Next() {
		var score float64
		chunk, err := scanChunk(rows, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, &core.ScoredChunk{Chunk: chunk, Score: float32(score)})
	}
	return results, rows.Err()
}

// ForEachChunk walks chunks in byte order of their ids.
func (s *VectorStore) ForEachChunk(ctx context.Context, after string, batchSize int, fn func([]*core.Chunk) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	cursor := after
	for {
		rows, err := s.pool.Query(ctx, `
			SELECT `+selectColumns+` FROM graphrag_chunks
			WHERE id COLLATE "C" > $1
			ORDER BY id COLLATE "C"
			LIMIT $2`, cursor, batchSize)
		if err != nil {
			return err
		}
		batch, err := collectChunks(rows)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		cursor = batch[len(batch)-1].Id
		if len(batch) < batchSize {
			return nil
		}
	}
}

// CountChunks returns the number of stored chunks.
func (s *VectorStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM graphrag_chunks`).Scan(&count)
	return count, err
}

func collectChunks(rows pgx.Rows) ([]*core.Chunk, error) {
	defer rows.Close()
	var result []*core.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, chunk)
	}
	return result, rows.Err()
}

func scanChunk(row pgx.Row, extra ...any) (*core.Chunk, error) {
	var chunk core.Chunk
	var metadata []byte
	var embedding *pgvector.Vector
	dest := []any{
		&chunk.Id, &chunk.DocumentId, &chunk.Text, &chunk.Page, &chunk.Offset,
		&metadata, &embedding, &chunk.InsertedAt, &chunk.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
	}
	if embedding != nil {
		chunk.Vector = embedding.Slice()
	}
	return &chunk, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
