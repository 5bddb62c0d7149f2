// Package postgres provides a PostgreSQL document store backed by the
// pgvector extension. Similarity search runs in the database via the
// cosine distance operator, so large documents never stream their
// vectors to the client.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*Store)(nil)

// Store is a PostgreSQL implementation of driven.DocumentStore.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewStore connects to PostgreSQL and ensures the schema exists. The
// dimension fixes the vector column width and must match the embedding
// model's configured output size.
func NewStore(ctx context.Context, connStr string, dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: vector dimensions must be positive", domain.ErrInvalidConfig)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool, dimensions: dimensions}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		subject_id BIGINT NOT NULL DEFAULT 0,
		owner_id BIGINT NOT NULL DEFAULT 0,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		total_chunks INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		processing_error TEXT NOT NULL DEFAULT '',
		processing_started_at TIMESTAMP WITH TIME ZONE,
		processing_completed_at TIMESTAMP WITH TIME ZONE,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		position INT NOT NULL,
		content TEXT NOT NULL,
		start_char INT NOT NULL DEFAULT 0,
		end_char INT NOT NULL DEFAULT 0,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, position);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		vector vector(%d) NOT NULL,
		model_name TEXT NOT NULL,
		model_version TEXT NOT NULL DEFAULT '',
		dimensions INT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_vector ON embeddings
		USING ivfflat (vector vector_cosine_ops) WITH (lists = 100);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, query)
	return err
}

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents
			(id, subject_id, owner_id, filename, file_type, file_size, total_chunks,
			 status, processing_error, processing_started_at, processing_completed_at,
			 metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			owner_id = EXCLUDED.owner_id,
			filename = EXCLUDED.filename,
			file_type = EXCLUDED.file_type,
			file_size = EXCLUDED.file_size,
			total_chunks = EXCLUDED.total_chunks,
			status = EXCLUDED.status,
			processing_error = EXCLUDED.processing_error,
			processing_started_at = EXCLUDED.processing_started_at,
			processing_completed_at = EXCLUDED.processing_completed_at,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, doc.ID, doc.SubjectID, doc.OwnerID, doc.Filename, doc.FileType,
		doc.FileSize, doc.TotalChunks, string(doc.Status), doc.ProcessingError,
		doc.ProcessingStartedAt, doc.ProcessingCompletedAt,
		metadata, doc.CreatedAt, doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx, documentColumns+" FROM documents WHERE id = $1", id)
	return scanDocument(row)
}

// UpdateDocumentStatus transitions the document's processing status
// under a row lock so concurrent writers cannot interleave an illegal
// hop.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, errMsg string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, documentColumns+" FROM documents WHERE id = $1 FOR UPDATE", id)
	doc, err := scanDocument(row)
	if err != nil {
		return err
	}
	if err := doc.Transition(status, errMsg); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE documents SET
			status = $1,
			processing_error = $2,
			processing_started_at = $3,
			processing_completed_at = $4,
			updated_at = $5
		WHERE id = $6
	`, string(doc.Status), doc.ProcessingError,
		doc.ProcessingStartedAt, doc.ProcessingCompletedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CreateChunks replaces the document's chunk set. Embeddings of the
// replaced chunks go with them via the foreign key cascade.
func (s *Store) CreateChunks(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)", documentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}

	now := time.Now().UTC()
	for _, chunk := range chunks {
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, position, content, start_char, end_char, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, chunk.ID, documentID, chunk.Index, chunk.Text, chunk.StartChar, chunk.EndChar, metadata, createdAt)
		if err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents SET total_chunks = $1, updated_at = $2 WHERE id = $3
	`, len(chunks), now, documentID); err != nil {
		return fmt.Errorf("updating chunk count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document ordered by position.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, chunkColumns+`
		FROM chunks WHERE document_id = $1
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ChunksWithoutEmbedding returns chunks that have no stored embedding.
func (s *Store) ChunksWithoutEmbedding(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, c.start_char, c.end_char, c.metadata, c.created_at
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE c.document_id = $1 AND e.chunk_id IS NULL
		ORDER BY c.position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks without embedding: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// UpsertEmbedding stores the embedding for a chunk, updating in place.
func (s *Store) UpsertEmbedding(ctx context.Context, emb domain.Embedding) error {
	createdAt := emb.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (chunk_id, vector, model_name, model_version, dimensions, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM chunks WHERE id = $1)
		ON CONFLICT (chunk_id) DO UPDATE SET
			vector = EXCLUDED.vector,
			model_name = EXCLUDED.model_name,
			model_version = EXCLUDED.model_version,
			dimensions = EXCLUDED.dimensions
	`, emb.ChunkID, pgvector.NewVector(emb.Vector), emb.ModelName,
		emb.ModelVersion, emb.Dimensions, createdAt)
	if err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: chunk %s", domain.ErrNotFound, emb.ChunkID)
	}
	return nil
}

// SimilaritySearch ranks the document's embedded chunks by cosine
// distance to the query vector, ascending.
func (s *Store) SimilaritySearch(ctx context.Context, documentID uuid.UUID, query []float32, limit int) ([]driven.ChunkDistance, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	vector := pgvector.NewVector(query)
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, c.start_char, c.end_char,
		       c.metadata, c.created_at, e.vector <=> $2 AS distance
		FROM chunks c
		JOIN embeddings e ON e.chunk_id = c.id
		WHERE c.document_id = $1
		ORDER BY e.vector <=> $2
		LIMIT $3
	`, documentID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("querying similar chunks: %w", err)
	}
	defer rows.Close()

	var results []driven.ChunkDistance //nolint:prealloc // size unknown from query
	for rows.Next() {
		var result driven.ChunkDistance
		if err := rows.Scan(&result.Chunk.ID, &result.Chunk.DocumentID,
			&result.Chunk.Index, &result.Chunk.Text, &result.Chunk.StartChar,
			&result.Chunk.EndChar, &result.Chunk.Metadata, &result.Chunk.CreatedAt,
			&result.Distance); err != nil {
			return nil, fmt.Errorf("scanning similar chunk: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating similar chunks: %w", err)
	}

	return results, nil
}

// DeleteDocument removes a document; chunks and embeddings cascade.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// requireDocument verifies the document exists.
func (s *Store) requireDocument(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

// documentColumns is the shared select list for document scans.
const documentColumns = `
	SELECT id, subject_id, owner_id, filename, file_type, file_size, total_chunks,
	       status, processing_error, processing_started_at, processing_completed_at,
	       metadata, created_at, updated_at`

// chunkColumns is the shared select list for chunk scans.
const chunkColumns = `
	SELECT id, document_id, position, content, start_char, end_char, metadata, created_at`

// scanDocument scans a single document row.
func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var status string

	if err := row.Scan(&doc.ID, &doc.SubjectID, &doc.OwnerID, &doc.Filename,
		&doc.FileType, &doc.FileSize, &doc.TotalChunks, &status,
		&doc.ProcessingError, &doc.ProcessingStartedAt, &doc.ProcessingCompletedAt,
		&doc.Metadata, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.ProcessingStatus(status)
	return &doc, nil
}

// scanChunks scans chunk rows ordered by the query.
func scanChunks(rows pgx.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index,
			&chunk.Text, &chunk.StartChar, &chunk.EndChar, &chunk.Metadata,
			&chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
