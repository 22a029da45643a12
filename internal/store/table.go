package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/schema"
	"github.com/gridapi/gridapi/internal/typedesc"
)

// Table is the storage handle for one schema table. It owns the table's DDL
// and encodes rows with the field codecs derived at startup. Handles are
// read-only after construction and safe for concurrent use.
type Table struct {
	st       *Store
	spec     *schema.TableSpec
	codecs   codec.FieldCodecs
	defaults map[string]any
}

// NewTable builds a handle for the given table, resolving declared default
// values through the field deserializers.
func NewTable(st *Store, spec *schema.TableSpec, codecs codec.FieldCodecs) (*Table, error) {
	defaults := make(map[string]any, len(spec.Defaults))
	for name, raw := range spec.Defaults {
		fc, ok := codecs[name]
		if !ok {
			return nil, fmt.Errorf("table %s: no codec for defaulted field %s", spec.Name, name)
		}
		v, err := fc.Deserialize(raw)
		if err != nil {
			return nil, fmt.Errorf("table %s: invalid default for %s: %w", spec.Name, name, err)
		}
		defaults[name] = v
	}
	return &Table{st: st, spec: spec, codecs: codecs, defaults: defaults}, nil
}

// Spec returns the table's schema spec.
func (t *Table) Spec() *schema.TableSpec { return t.spec }

// EnsureTable creates the table if it does not exist.
func (t *Table) EnsureTable(ctx context.Context) error {
	var defs []string
	for _, f := range t.spec.Fields {
		if f.PrimaryKey {
			defs = append(defs, f.Column()+" INTEGER PRIMARY KEY AUTOINCREMENT")
			continue
		}
		def := f.Column() + " " + columnType(f.Type)
		// Defaulted columns stay nullable so rows written by other tools
		// without the default still load.
		if !f.Nullable && !f.HasDefault {
			def += " NOT NULL"
		}
		if f.Unique {
			def += " UNIQUE"
		}
		if ref, ok := typedesc.Base(f.Type).(typedesc.ForeignRef); ok {
			def += fmt.Sprintf(" REFERENCES %s(id)", ref.Table)
		}
		defs = append(defs, def)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.spec.Name, strings.Join(defs, ", "))
	if _, err := t.st.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.spec.Name, err)
	}
	return nil
}

// columnType maps a type descriptor to its SQLite column affinity.
func columnType(d typedesc.Type) string {
	switch base := typedesc.Base(d).(type) {
	case typedesc.Primitive:
		switch base.Kind {
		case typedesc.KindInt, typedesc.KindBool, typedesc.KindDateTime:
			return "INTEGER"
		case typedesc.KindFloat:
			return "REAL"
		default:
			return "TEXT"
		}
	case typedesc.ForeignRef:
		return "INTEGER"
	default:
		// Literals, enums, containers, records and unions store as TEXT;
		// containers as canonical JSON.
		return "TEXT"
	}
}

// Insert writes a typed row, applying declared defaults for absent fields,
// and returns the new id. Row keys may use declared field names or, for
// references, the column alias.
func (t *Table) Insert(ctx context.Context, row map[string]any) (int64, error) {
	normalized, err := t.normalize(row)
	if err != nil {
		return 0, err
	}

	var cols []string
	var placeholders []string
	var args []any
	for _, f := range t.spec.Fields {
		if f.PrimaryKey {
			continue
		}
		v, present := normalized[f.Name]
		if !present {
			v, present = t.defaults[f.Name]
			if !present {
				continue
			}
		}
		enc, err := EncodeValue(v)
		if err != nil {
			return 0, fmt.Errorf("table %s: field %s: %w", t.spec.Name, f.Name, err)
		}
		cols = append(cols, f.Column())
		placeholders = append(placeholders, "?")
		args = append(args, enc)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.spec.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := t.st.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.spec.Name, err)
	}
	return res.LastInsertId()
}

// Update overwrites the given fields of the row with the given id. It
// returns ErrNotFound when no row has that id.
func (t *Table) Update(ctx context.Context, id int64, row map[string]any) error {
	normalized, err := t.normalize(row)
	if err != nil {
		return err
	}

	var sets []string
	var args []any
	for _, f := range t.spec.Fields {
		if f.PrimaryKey {
			continue
		}
		v, present := normalized[f.Name]
		if !present {
			continue
		}
		enc, err := EncodeValue(v)
		if err != nil {
			return fmt.Errorf("table %s: field %s: %w", t.spec.Name, f.Name, err)
		}
		sets = append(sets, f.Column()+" = ?")
		args = append(args, enc)
	}
	if len(sets) == 0 {
		// Nothing to write; still report missing rows.
		ok, err := t.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.spec.Name, strings.Join(sets, ", "))
	res, err := t.st.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.spec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the typed row with the given id, or ErrNotFound.
func (t *Table) Get(ctx context.Context, id int64) (map[string]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.columnList(), t.spec.Name)
	rows, err := t.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// GetMany returns the typed rows matching the given ids, ordered by id.
// Missing ids are simply absent from the result.
func (t *Table) GetMany(ctx context.Context, ids []int64) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s) ORDER BY id ASC",
		t.columnList(), t.spec.Name, strings.Join(placeholders, ", "))
	return t.Query(ctx, query, args...)
}

// Exists reports whether a row with the given id exists.
func (t *Table) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := t.st.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", t.spec.Name), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", t.spec.Name, err)
	}
	return true, nil
}

// Delete removes the row with the given id, or returns ErrNotFound.
func (t *Table) Delete(ctx context.Context, id int64) error {
	res, err := t.st.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.spec.Name), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", t.spec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Truncate removes every row and resets the id sequence.
func (t *Table) Truncate(ctx context.Context) error {
	if _, err := t.st.db.ExecContext(ctx, "DELETE FROM "+t.spec.Name); err != nil {
		return fmt.Errorf("truncate %s: %w", t.spec.Name, err)
	}
	// sqlite_sequence only exists once an AUTOINCREMENT insert happened.
	_, err := t.st.db.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?", t.spec.Name)
	if err != nil && !strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("reset sequence for %s: %w", t.spec.Name, err)
	}
	return nil
}

// Query runs a row query whose column list matches the table's declared
// field order and returns typed rows.
func (t *Table) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := t.st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.spec.Name, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row, err := t.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Count runs a single-value count query.
func (t *Table) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := t.st.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.spec.Name, err)
	}
	return n, nil
}

func (t *Table) scanRow(rows *sql.Rows) (map[string]any, error) {
	raw := make([]any, len(t.spec.Fields))
	dest := make([]any, len(t.spec.Fields))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.spec.Name, err)
	}

	out := make(map[string]any, len(t.spec.Fields))
	for i, f := range t.spec.Fields {
		wire, err := DecodeColumn(f, raw[i])
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.spec.Name, err)
		}
		if wire == nil {
			out[f.Name] = nil
			continue
		}
		typed, err := t.codecs[f.Name].Deserialize(wire)
		if err != nil {
			return nil, fmt.Errorf("table %s: field %s: stored value does not match schema: %w",
				t.spec.Name, f.Name, err)
		}
		out[f.Name] = typed
	}
	return out, nil
}

// normalize rewrites row keys to declared field names and rejects unknown
// keys.
func (t *Table) normalize(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		f, ok := t.spec.Field(k)
		if !ok {
			return nil, fmt.Errorf("table %s: unknown field %s", t.spec.Name, k)
		}
		out[f.Name] = v
	}
	return out, nil
}

func (t *Table) columnList() string {
	cols := make([]string, len(t.spec.Fields))
	for i, f := range t.spec.Fields {
		cols[i] = f.Column()
	}
	return strings.Join(cols, ", ")
}
