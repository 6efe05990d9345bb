package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/nfintake/store"
)

// EnsureVectorSchema adds the BLOB embedding column when it is missing.
// SQLite has no typed vector column, so the dimension is recorded here and enforced
// on write. Stored vectors of another dimension are reported instead of being mixed.
func (d *DB) EnsureVectorSchema(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return errors.Errorf("invalid embedding dimensions %d", dimensions)
	}

	var count int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('movement') WHERE name = 'description_embedding'`,
	).Scan(&count); err != nil {
		return errors.Wrap(err, "failed to inspect embedding column")
	}
	if count == 0 {
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE movement ADD COLUMN description_embedding BLOB`); err != nil {
			return errors.Wrap(err, "failed to add embedding column")
		}
		d.vectorDims.Store(int32(dimensions))
		return nil
	}

	var size sql.NullInt64
	if err := d.db.QueryRowContext(ctx,
		`SELECT length(description_embedding) FROM movement WHERE description_embedding IS NOT NULL LIMIT 1`,
	).Scan(&size); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "failed to inspect stored embeddings")
	}
	if size.Valid && int(size.Int64/4) != dimensions {
		return errors.Errorf("stored embeddings have %d dimensions but %d are configured", size.Int64/4, dimensions)
	}
	d.vectorDims.Store(int32(dimensions))
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
	if len(embedding) == 0 {
		return errors.New("embedding is empty")
	}
	if dims := int(d.vectorDims.Load()); dims > 0 && len(embedding) != dims {
		return errors.Errorf("embedding has %d dimensions but the column holds %d", len(embedding), dims)
	}
	stmt := `UPDATE movement SET description_embedding = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
	result, err := d.db.ExecContext(ctx, stmt, encodeEmbedding(embedding), id)
	if err != nil {
		return errors.Wrap(err, "failed to update movement embedding")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("movement %d not found", id)
	}
	return nil
}

// SearchMovementsByVector scores every embedded movement by cosine similarity.
// Rows whose stored dimension differs from the query are skipped.
func (d *DB) SearchMovementsByVector(ctx context.Context, opts *store.MovementVectorSearch) ([]*store.MovementWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 3
	}

	query := `SELECT ` + movementColumns + `, description_embedding FROM movement WHERE description_embedding IS NOT NULL`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := make([]*store.MovementWithScore, 0)
	for rows.Next() {
		var blob []byte
		movement, err := scanMovement(rows, &blob)
		if err != nil {
			return nil, err
		}
		embedding, err := decodeEmbedding(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "movement %d", movement.ID)
		}
		similarity, ok := cosineSimilarity(opts.Vector, embedding)
		if !ok {
			continue
		}
		results = append(results, &store.MovementWithScore{Movement: movement, Similarity: similarity})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate vector search results")
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// encodeEmbedding packs vec as little-endian IEEE 754 float32 values.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// cosineSimilarity reports false for mismatched, empty or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
