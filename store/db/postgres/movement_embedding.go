package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/nfintake/store"
)

// EnsureVectorSchema provisions the pgvector extension, the embedding column and the
// ivfflat cosine index. Each step is create-if-absent; nothing is ever dropped. A column
// provisioned with a different dimension is reported instead of being recreated.
func (d *DB) EnsureVectorSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions %d", dimensions)
	}

	if _, err := d.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.Wrap(err, "failed to create vector extension")
	}

	var current int32
	err := d.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'movement'::regclass
			AND attname = 'description_embedding'
			AND NOT attisdropped`).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		// DDL cannot take bind parameters; dimensions is an integer from configuration.
		stmt := fmt.Sprintf(`ALTER TABLE movement ADD COLUMN IF NOT EXISTS description_embedding vector(%d)`, dimensions)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to add embedding column")
		}
	case err != nil:
		return errors.Wrap(err, "failed to inspect embedding column")
	case int(current) != dimensions:
		return errors.Errorf("embedding column has %d dimensions but %d are configured", current, dimensions)
	}

	if _, err := d.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS movement_description_embedding_idx
		ON movement USING ivfflat (description_embedding vector_cosine_ops) WITH (lists = 100)`); err != nil {
		return errors.Wrap(err, "failed to create embedding index")
	}
	return nil
}

func (d *DB) ListMovementsWithoutEmbedding(ctx context.Context, limit int) ([]*store.Movement, error) {
	if limit <= 0 {
		return []*store.Movement{}, nil
	}

	query := `SELECT ` + movementColumns + ` FROM movement
		WHERE description_embedding IS NULL
		ORDER BY id ASC
		LIMIT ` + placeholder(1)
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find movements without embedding")
	}
	defer rows.Close()

	list := make([]*store.Movement, 0)
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, movement)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate movements without embedding")
	}

	return list, nil
}

func (d *DB) UpdateMovementEmbedding(ctx context.Context, id int32, embedding []float32) error {
	stmt := `UPDATE movement SET description_embedding = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	result, err := d.db.ExecContext(ctx, stmt, pgvector.NewVector(embedding), id)
	if err != nil {
		return errors.Wrap(err, "failed to update movement embedding")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("movement %d not found", id)
	}
	return nil
}

// SearchMovementsByVector performs cosine similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity), so ordering by
// distance ascending yields the most similar rows first.
func (d *DB) SearchMovementsByVector(ctx context.Context, opts *store.MovementVectorSearch) ([]*store.MovementWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 3
	}

	query := `
		SELECT ` + movementColumns + `,
			1 - (description_embedding <=> ` + placeholder(1) + `) AS similarity
		FROM movement
		WHERE description_embedding IS NOT NULL
		ORDER BY description_embedding <=> ` + placeholder(1) + `
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(opts.Vector), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := make([]*store.MovementWithScore, 0)
	for rows.Next() {
		var similarity float64
		movement, err := scanMovement(rows, &similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, &store.MovementWithScore{Movement: movement, Similarity: similarity})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate vector search results")
	}

	return results, nil
}
