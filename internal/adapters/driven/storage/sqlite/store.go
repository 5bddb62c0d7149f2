// Package sqlite provides a SQLite-backed document store. Vectors are
// stored as little-endian float32 blobs and similarity search is a
// brute-force cosine scan over the document's chunks, which is fast
// enough for per-document retrieval at typical chunk counts.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tutorstack/docproc/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/tutorstack/docproc/internal/core/domain"
	"github.com/tutorstack/docproc/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*Store)(nil)

// Store is a SQLite-based implementation of driven.DocumentStore.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.docproc/data/documents.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".docproc", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "documents.db")

	// WAL mode for better concurrency between the pipeline and queries.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// SaveDocument stores or updates a document.
func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, subject_id, owner_id, filename, file_type, file_size, total_chunks,
			 status, processing_error, processing_started_at, processing_completed_at,
			 metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject_id = excluded.subject_id,
			owner_id = excluded.owner_id,
			filename = excluded.filename,
			file_type = excluded.file_type,
			file_size = excluded.file_size,
			total_chunks = excluded.total_chunks,
			status = excluded.status,
			processing_error = excluded.processing_error,
			processing_started_at = excluded.processing_started_at,
			processing_completed_at = excluded.processing_completed_at,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, doc.ID.String(), doc.SubjectID, doc.OwnerID, doc.Filename, doc.FileType,
		doc.FileSize, doc.TotalChunks, string(doc.Status), doc.ProcessingError,
		nullTime(doc.ProcessingStartedAt), nullTime(doc.ProcessingCompletedAt),
		string(metadataJSON), doc.CreatedAt, doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, owner_id, filename, file_type, file_size, total_chunks,
		       status, processing_error, processing_started_at, processing_completed_at,
		       metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id.String())

	return scanDocument(row)
}

// UpdateDocumentStatus transitions the document's processing status.
// The lifecycle rules live on the domain type; the store loads, checks
// and writes back under a transaction so a concurrent writer cannot
// interleave an illegal hop.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `
		SELECT id, subject_id, owner_id, filename, file_type, file_size, total_chunks,
		       status, processing_error, processing_started_at, processing_completed_at,
		       metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id.String())

	doc, err := scanDocument(row)
	if err != nil {
		return err
	}
	if err := doc.Transition(status, errMsg); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET
			status = ?,
			processing_error = ?,
			processing_started_at = ?,
			processing_completed_at = ?,
			updated_at = ?
		WHERE id = ?
	`, string(doc.Status), doc.ProcessingError,
		nullTime(doc.ProcessingStartedAt), nullTime(doc.ProcessingCompletedAt),
		time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CreateChunks replaces the document's chunk set. Embeddings of the
// replaced chunks go with them via the foreign key cascade.
func (s *Store) CreateChunks(ctx context.Context, documentID uuid.UUID, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", documentID.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	if exists == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID.String()); err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, content, start_char, end_char, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		createdAt := chunk.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		if _, err := stmt.ExecContext(ctx, chunk.ID.String(), documentID.String(),
			chunk.Index, chunk.Text, chunk.StartChar, chunk.EndChar,
			string(metadataJSON), createdAt); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET total_chunks = ?, updated_at = ? WHERE id = ?
	`, len(chunks), now, documentID.String()); err != nil {
		return fmt.Errorf("updating chunk count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks retrieves all chunks for a document ordered by position.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]domain.Chunk, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, start_char, end_char, metadata, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY position
	`, documentID.String())
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, c.start_char, c.end_char, c.metadata, c.created_at
		FROM chunks c
		LEFT JOIN embeddings e ON e.chunk_id = c.id
		WHERE c.document_id = ? AND e.chunk_id IS NULL
		ORDER BY c.position
	`, documentID.String())
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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, model_name, model_version, dimensions, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM chunks WHERE id = ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			model_name = excluded.model_name,
			model_version = excluded.model_version,
			dimensions = excluded.dimensions
	`, emb.ChunkID.String(), float32SliceToBytes(emb.Vector), emb.ModelName,
		emb.ModelVersion, emb.Dimensions, createdAt, emb.ChunkID.String())
	if err != nil {
		return fmt.Errorf("saving embedding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking embedding write: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: chunk %s", domain.ErrNotFound, emb.ChunkID)
	}
	return nil
}

// SimilaritySearch brute-forces cosine distance over the document's
// embedded chunks, ordered by ascending distance.
func (s *Store) SimilaritySearch(ctx context.Context, documentID uuid.UUID, query []float32, limit int) ([]driven.ChunkDistance, error) {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, c.start_char, c.end_char,
		       c.metadata, c.created_at, e.vector
		FROM chunks c
		JOIN embeddings e ON e.chunk_id = c.id
		WHERE c.document_id = ?
	`, documentID.String())
	if err != nil {
		return nil, fmt.Errorf("querying embedded chunks: %w", err)
	}
	defer rows.Close()

	var results []driven.ChunkDistance //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var docID, chunkID, metadataJSON string
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &docID, &chunk.Index, &chunk.Text,
			&chunk.StartChar, &chunk.EndChar, &metadataJSON, &chunk.CreatedAt, &vectorBlob); err != nil {
			return nil, fmt.Errorf("scanning embedded chunk: %w", err)
		}
		if chunk.ID, err = uuid.Parse(chunkID); err != nil {
			return nil, fmt.Errorf("parsing chunk id: %w", err)
		}
		if chunk.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, fmt.Errorf("parsing document id: %w", err)
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
			}
		}

		results = append(results, driven.ChunkDistance{
			Chunk:    chunk,
			Distance: cosineDistance(query, bytesToFloat32Slice(vectorBlob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embedded chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteDocument removes a document; chunks and embeddings cascade.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// requireDocument verifies the document exists.
func (s *Store) requireDocument(ctx context.Context, id uuid.UUID) error {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", id.String()).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking document: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// cosineDistance returns 1 - cosine similarity. Mismatched or zero
// vectors yield the maximum distance of 2.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// nullTime converts an optional time to its SQL representation.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var id, status, metadataJSON string
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(&id, &doc.SubjectID, &doc.OwnerID, &doc.Filename,
		&doc.FileType, &doc.FileSize, &doc.TotalChunks, &status,
		&doc.ProcessingError, &startedAt, &completedAt, &metadataJSON,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing document id: %w", err)
	}
	doc.ID = parsed
	doc.Status = domain.ProcessingStatus(status)
	if startedAt.Valid {
		doc.ProcessingStartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		doc.ProcessingCompletedAt = &completedAt.Time
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &doc, nil
}

// scanChunks scans chunk rows ordered by the query.
func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var id, docID, metadataJSON string
		if err := rows.Scan(&id, &docID, &chunk.Index, &chunk.Text,
			&chunk.StartChar, &chunk.EndChar, &metadataJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parsing chunk id: %w", err)
		}
		chunk.ID = parsed
		if chunk.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, fmt.Errorf("parsing document id: %w", err)
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
