package catalog

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// Store persists catalogs to SQLite. The on-disk format compresses the
// embedding vectors with zstd; everything else round-trips through plain
// columns, so Save followed by Load reproduces the catalog exactly.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping database: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: init compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: init decompressor: %w", err)
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// Migrate creates the catalog tables. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS patterns (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  category   TEXT NOT NULL,
  language   TEXT NOT NULL,
  embedding  BLOB NOT NULL,
  metadata   TEXT NOT NULL DEFAULT '{}',
  position   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS inheritance (
  child      TEXT PRIMARY KEY,
  parent     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS variants (
  pattern_id TEXT NOT NULL,
  language   TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  similarity REAL NOT NULL,
  PRIMARY KEY (pattern_id, variant_id)
);
`

// Save writes the catalog, replacing any previous contents.
func (s *Store) Save(c *Catalog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"patterns", "inheritance", "variants"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("catalog: clear %s: %w", table, err)
		}
	}

	for i, p := range c.Patterns() {
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("catalog: encode metadata for %s: %w", p.ID, err)
		}
		_, err = tx.Exec(
			"INSERT INTO patterns (id, name, category, language, embedding, metadata, position) VALUES (?, ?, ?, ?, ?, ?, ?)",
			p.ID, p.Name, p.Category, p.Language, s.packEmbedding(p.Embedding), string(meta), i,
		)
		if err != nil {
			return fmt.Errorf("catalog: insert pattern %s: %w", p.ID, err)
		}
	}

	for child, parent := range c.Inheritance().ParentMap() {
		if _, err := tx.Exec("INSERT INTO inheritance (child, parent) VALUES (?, ?)", child, parent); err != nil {
			return fmt.Errorf("catalog: insert inheritance %s -> %s: %w", child, parent, err)
		}
	}

	for id, vs := range c.VariantMap() {
		for _, v := range vs {
			_, err := tx.Exec(
				"INSERT INTO variants (pattern_id, language, variant_id, similarity) VALUES (?, ?, ?, ?)",
				id, v.Language, v.PatternID, v.Similarity,
			)
			if err != nil {
				return fmt.Errorf("catalog: insert variant %s -> %s: %w", id, v.PatternID, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads a complete catalog from the store. Failures are fatal to
// startup per the error taxonomy: a half-loaded catalog is worse than none.
func (s *Store) Load() (*Catalog, error) {
	c := New()

	rows, err := s.db.Query("SELECT id, name, category, language, embedding, metadata FROM patterns ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("catalog: load patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p StoredPattern
		var blob []byte
		var meta string
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Language, &blob, &meta); err != nil {
			return nil, fmt.Errorf("catalog: scan pattern: %w", err)
		}
		if p.Embedding, err = s.unpackEmbedding(blob); err != nil {
			return nil, fmt.Errorf("catalog: pattern %s: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
			return nil, fmt.Errorf("catalog: pattern %s metadata: %w", p.ID, err)
		}
		if err := c.Add(&p); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load patterns: %w", err)
	}

	parents := make(map[string]string)
	prows, err := s.db.Query("SELECT child, parent FROM inheritance")
	if err != nil {
		return nil, fmt.Errorf("catalog: load inheritance: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var child, parent string
		if err := prows.Scan(&child, &parent); err != nil {
			return nil, fmt.Errorf("catalog: scan inheritance: %w", err)
		}
		parents[child] = parent
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load inheritance: %w", err)
	}
	inh, err := NewInheritance(parents)
	if err != nil {
		return nil, err
	}
	c.SetInheritance(inh)

	vrows, err := s.db.Query("SELECT pattern_id, language, variant_id, similarity FROM variants ORDER BY pattern_id, variant_id")
	if err != nil {
		return nil, fmt.Errorf("catalog: load variants: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var id string
		var v Variant
		if err := vrows.Scan(&id, &v.Language, &v.PatternID, &v.Similarity); err != nil {
			return nil, fmt.Errorf("catalog: scan variant: %w", err)
		}
		c.AddVariants(id, []Variant{v})
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load variants: %w", err)
	}

	return c, nil
}

// packEmbedding serializes a vector as little-endian float32 bits and
// compresses it.
func (s *Store) packEmbedding(v []float32) []byte {
	raw := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}
	return s.enc.EncodeAll(raw, nil)
}

func (s *Store) unpackEmbedding(blob []byte) ([]float32, error) {
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress embedding: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(raw))
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, nil
}
