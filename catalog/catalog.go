// Package catalog is the table catalog: parquet data files in the warehouse
// bucket, metadata in Postgres. A write lands its data file first and only
// becomes visible when the metadata transaction commits, so readers never see
// half-written tables.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/engine"
	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/storage"
)

const ddl = `
CREATE TABLE IF NOT EXISTS lake_namespaces (
	name       text PRIMARY KEY,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lake_tables (
	namespace  text NOT NULL REFERENCES lake_namespaces(name),
	name       text NOT NULL,
	schema     jsonb NOT NULL,
	version    bigint NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (namespace, name)
);

CREATE TABLE IF NOT EXISTS lake_files (
	id         uuid PRIMARY KEY,
	namespace  text NOT NULL,
	table_name text NOT NULL,
	path       text NOT NULL,
	row_count  bigint NOT NULL,
	size_bytes bigint NOT NULL,
	added_at   timestamptz NOT NULL DEFAULT now(),
	FOREIGN KEY (namespace, table_name) REFERENCES lake_tables(namespace, name)
);
`

// TableInfo describes a catalog table.
type TableInfo struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Columns   []engine.Column `json:"columns"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Catalog combines the metadata database and the warehouse object store.
type Catalog struct {
	pool     *pgxpool.Pool
	store    *storage.Store
	basePath string
}

// New connects to the metadata database. basePath is the key prefix inside
// the warehouse bucket under which table data lives.
func New(ctx context.Context, dsn string, store *storage.Store, basePath string) (*Catalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "connecting to catalog database")
	}
	return &Catalog{pool: pool, store: store, basePath: basePath}, nil
}

// NewWithPool wraps an existing pool. Used by tests.
func NewWithPool(pool *pgxpool.Pool, store *storage.Store, basePath string) *Catalog {
	return &Catalog{pool: pool, store: store, basePath: basePath}
}

// EnsureSchema creates the metadata tables when missing.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fault.Wrap(fault.KindCatalog, err, "creating catalog schema")
	}
	return nil
}

// Close releases the connection pool.
func (c *Catalog) Close() {
	c.pool.Close()
}

func (c *Catalog) dataKey(namespace, table string) string {
	return fmt.Sprintf("%s/%s/%s/data/%s.parquet", c.basePath, namespace, table, uuid.NewString())
}

// Table fetches a table's metadata. Missing tables are KindNotFound.
func (c *Catalog) Table(ctx context.Context, namespace, table string) (*TableInfo, error) {
	var schemaJSON []byte
	info := TableInfo{Namespace: namespace, Name: table}
	err := c.pool.QueryRow(ctx,
		`SELECT schema, version, updated_at FROM lake_tables WHERE namespace = $1 AND name = $2`,
		namespace, table,
	).Scan(&schemaJSON, &info.Version, &info.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "table %s.%s not found", namespace, table)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "reading table %s.%s", namespace, table)
	}
	if err := json.Unmarshal(schemaJSON, &info.Columns); err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "decoding schema of %s.%s", namespace, table)
	}
	return &info, nil
}

// ListTables returns the tables of a namespace, or all tables when
// namespace is empty.
func (c *Catalog) ListTables(ctx context.Context, namespace string) ([]TableInfo, error) {
	query := `SELECT namespace, name, schema, version, updated_at FROM lake_tables`
	args := []interface{}{}
	if namespace != "" {
		query += ` WHERE namespace = $1`
		args = append(args, namespace)
	}
	query += ` ORDER BY namespace, name`

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "listing tables")
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var info TableInfo
		var schemaJSON []byte
		if err := rows.Scan(&info.Namespace, &info.Name, &schemaJSON, &info.Version, &info.UpdatedAt); err != nil {
			return nil, fault.Wrap(fault.KindCatalog, err, "scanning table row")
		}
		if err := json.Unmarshal(schemaJSON, &info.Columns); err != nil {
			return nil, fault.Wrap(fault.KindCatalog, err, "decoding schema of %s.%s", info.Namespace, info.Name)
		}
		tables = append(tables, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "listing tables")
	}
	return tables, nil
}

// Append writes rel as a new data file of namespace.table, creating the
// namespace and table on first use. Appending to an existing table requires
// an identical column list; a mismatch is rejected before anything is
// written. Returns the rows appended.
//
// The data file is uploaded before the metadata transaction starts. If the
// transaction fails the file is deleted best-effort; an orphan in the bucket
// is invisible to readers either way.
func (c *Catalog) Append(ctx context.Context, namespace, table string, rel *engine.Relation) (int64, error) {
	existing, err := c.Table(ctx, namespace, table)
	if err != nil && fault.KindOf(err) != fault.KindNotFound {
		return 0, err
	}
	if existing != nil {
		if err := schemasMatch(existing.Columns, rel.Columns); err != nil {
			return 0, err
		}
	}

	data, err := engine.WriteParquet(rel)
	if err != nil {
		return 0, err
	}
	key := c.dataKey(namespace, table)
	if err := c.store.PutBytes(ctx, key, data, "application/octet-stream"); err != nil {
		return 0, err
	}

	if err := c.commitAppend(ctx, namespace, table, key, rel, int64(len(data)), existing == nil); err != nil {
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			common.Logger.WithFields(map[string]interface{}{
				"key":   key,
				"error": delErr.Error(),
			}).Warn("failed to remove orphaned data file")
		}
		return 0, err
	}
	return rel.RowCount(), nil
}

func (c *Catalog) commitAppend(ctx context.Context, namespace, table, key string, rel *engine.Relation, sizeBytes int64, create bool) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fault.Wrap(fault.KindCatalog, err, "starting catalog transaction")
	}
	defer tx.Rollback(ctx)

	if create {
		schemaJSON, err := json.Marshal(rel.Columns)
		if err != nil {
			return fault.Wrap(fault.KindCatalog, err, "encoding schema")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO lake_namespaces (name) VALUES ($1) ON CONFLICT DO NOTHING`, namespace); err != nil {
			return fault.Wrap(fault.KindCatalog, err, "creating namespace %s", namespace)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO lake_tables (namespace, name, schema) VALUES ($1, $2, $3)
			 ON CONFLICT (namespace, name) DO NOTHING`,
			namespace, table, schemaJSON); err != nil {
			return fault.Wrap(fault.KindCatalog, err, "creating table %s.%s", namespace, table)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO lake_files (id, namespace, table_name, path, row_count, size_bytes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), namespace, table, key, rel.RowCount(), sizeBytes); err != nil {
		return fault.Wrap(fault.KindCatalog, err, "recording data file for %s.%s", namespace, table)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE lake_tables SET version = version + 1, updated_at = now()
		 WHERE namespace = $1 AND name = $2`,
		namespace, table); err != nil {
		return fault.Wrap(fault.KindCatalog, err, "bumping version of %s.%s", namespace, table)
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.Wrap(fault.KindCatalog, err, "committing append to %s.%s", namespace, table)
	}
	return nil
}

// Scan materializes every committed data file of namespace.table into one
// relation, in file commit order.
func (c *Catalog) Scan(ctx context.Context, namespace, table string) (*engine.Relation, error) {
	info, err := c.Table(ctx, namespace, table)
	if err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx,
		`SELECT path FROM lake_files WHERE namespace = $1 AND table_name = $2 ORDER BY added_at, id`,
		namespace, table)
	if err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "listing data files of %s.%s", namespace, table)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fault.Wrap(fault.KindCatalog, err, "scanning data file row")
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindCatalog, err, "listing data files of %s.%s", namespace, table)
	}

	out := engine.NewRelation(info.Columns)
	for _, path := range paths {
		data, err := c.store.GetBytes(ctx, path)
		if err != nil {
			return nil, err
		}
		part, err := engine.ReadParquet(data)
		if err != nil {
			return nil, err
		}
		merged, err := alignColumns(part, info.Columns)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, merged.Rows...)
	}
	return out, nil
}

// alignColumns reorders a file's columns to the table schema order.
func alignColumns(rel *engine.Relation, cols []engine.Column) (*engine.Relation, error) {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return rel.Project(names)
}

func schemasMatch(existing, incoming []engine.Column) error {
	if len(existing) != len(incoming) {
		return fault.New(fault.KindInvalidInput,
			"schema mismatch: table has %d columns, data has %d", len(existing), len(incoming))
	}
	byName := make(map[string]string, len(existing))
	for _, c := range existing {
		byName[c.Name] = c.Type
	}
	for _, c := range incoming {
		typ, ok := byName[c.Name]
		if !ok {
			return fault.New(fault.KindInvalidInput, "schema mismatch: unexpected column %q", c.Name)
		}
		if typ != c.Type {
			return fault.New(fault.KindInvalidInput,
				"schema mismatch: column %q is %s, data has %s", c.Name, typ, c.Type)
		}
	}
	return nil
}
