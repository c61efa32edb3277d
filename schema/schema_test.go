package schema

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		score REAL,
		avatar BLOB,
		deleted INTEGER DEFAULT 0,
		create_at DATETIME
	)`)
	require.NoError(t, err)
	return db
}

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"bigint(20) unsigned": KindInt,
		"INTEGER":             KindInt,
		"varchar(64)":         KindString,
		"TEXT":                KindString,
		"decimal(10,2)":       KindDecimal,
		"NUMERIC":             KindDecimal,
		"REAL":                KindFloat,
		"bit(1)":              KindBool,
		"bit(8)":              KindBit,
		"BLOB":                KindBytes,
		"datetime":            KindTime,
		"boolean":             KindBool,
		"json":                KindString,
	}
	for typ, want := range cases {
		assert.Equal(t, want, KindOf(typ), typ)
	}
	assert.Equal(t, KindTime, postgresKind("timestamp without time zone"))
	assert.Equal(t, KindFloat, postgresKind("double precision"))
	assert.Equal(t, KindString, postgresKind("character varying"))
	assert.Equal(t, KindString, postgresKind("bit varying"))
	assert.Equal(t, KindDecimal, postgresKind("numeric"))
}

func TestSQLiteIntrospection(t *testing.T) {
	db := openSQLite(t)

	cols, err := SQLiteIntrospector{}.Columns(context.Background(), db, "", "users")
	require.NoError(t, err)
	require.Len(t, cols, 6)

	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].PrimaryKey)
	assert.True(t, cols[0].AutoIncrement)
	assert.Equal(t, KindInt, cols[0].Kind)
	assert.False(t, cols[1].Nullable)
	assert.Equal(t, KindFloat, cols[2].Kind)
	assert.Equal(t, KindBytes, cols[3].Kind)
	require.NotNil(t, cols[4].Default)
	assert.Equal(t, "0", *cols[4].Default)
	assert.Equal(t, KindTime, cols[5].Kind)

	_, err = SQLiteIntrospector{}.Columns(context.Background(), db, "", "missing")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestMySQLIntrospection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SHOW COLUMNS FROM `users` FROM `app`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "bigint(20)", "NO", "PRI", nil, "auto_increment").
			AddRow("name", "varchar(64)", "YES", "", nil, "").
			AddRow("deleted", "tinyint(1)", "NO", "", "0", ""))

	cols, err := MySQLIntrospector{}.Columns(context.Background(), db, "app", "users")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.True(t, cols[0].PrimaryKey)
	assert.True(t, cols[0].AutoIncrement)
	assert.True(t, cols[1].Nullable)
	assert.Equal(t, KindInt, cols[2].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIntrospection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default", "is_pk"}).
			AddRow("id", "bigint", "NO", "nextval('users_id_seq'::regclass)", true).
			AddRow("created", "timestamp with time zone", "YES", nil, false))

	cols, err := PostgresIntrospector{}.Columns(context.Background(), db, "", "users")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.True(t, cols[0].AutoIncrement)
	assert.Equal(t, KindTime, cols[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewIntrospector(t *testing.T) {
	i, err := NewIntrospector("sqlite3")
	require.NoError(t, err)
	assert.IsType(t, SQLiteIntrospector{}, i)

	_, err = NewIntrospector("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestStructureCacheLoadsOnce(t *testing.T) {
	db := openSQLite(t)
	c := NewStructureCache()

	var calls atomic.Int32
	load := func(ctx context.Context) ([]Column, error) {
		calls.Add(1)
		return SQLiteIntrospector{}.Columns(ctx, db, "", "users")
	}

	first, err := c.Load(context.Background(), "main", "", "users", load)
	require.NoError(t, err)
	second, err := c.Load(context.Background(), "main", "", "users", load)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(1), c.Loads())

	got, ok := c.Get("main", "", "users")
	assert.True(t, ok)
	assert.Same(t, first, got)

	_, ok = c.Get("replica", "", "users")
	assert.False(t, ok)
}

func TestStructureCacheLoadError(t *testing.T) {
	c := NewStructureCache()
	boom := errors.New("boom")
	_, err := c.Load(context.Background(), "main", "", "users", func(context.Context) ([]Column, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestStructureCacheForget(t *testing.T) {
	c := NewStructureCache()
	c.Register(NewTableStructure("main", "", "users", []Column{{Name: "id"}}))
	c.Register(NewTableStructure("main", "app", "orders", []Column{{Name: "id"}}))
	c.Register(NewTableStructure("other", "", "users", []Column{{Name: "id"}}))

	c.Forget("main")
	assert.Equal(t, 1, c.Len())
}

func TestBoundedStructureCache(t *testing.T) {
	c := NewBoundedStructureCache(2, 0)
	var calls atomic.Int32
	load := func(context.Context) ([]Column, error) {
		calls.Add(1)
		return []Column{{Name: "id", Kind: KindInt}}, nil
	}
	ctx := context.Background()

	for _, table := range []string{"users", "orders", "users", "items"} {
		_, err := c.Load(ctx, "main", "", table, load)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("main", "", "orders")
	assert.False(t, ok, "least recently used table is evicted")

	_, err := c.Load(ctx, "main", "", "orders", load)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(4), stats.Loads)
	assert.Equal(t, 2, stats.MaxSize)
	assert.Equal(t, int64(2), stats.Evictions)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestStructureCacheExpiryAndInvalidate(t *testing.T) {
	c := NewBoundedStructureCache(0, 10*time.Millisecond)
	var calls atomic.Int32
	load := func(context.Context) ([]Column, error) {
		calls.Add(1)
		return []Column{{Name: "id", Kind: KindInt}}, nil
	}
	ctx := context.Background()

	_, err := c.Load(ctx, "main", "", "users", load)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Load(ctx, "main", "", "users", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "expired structure is reloaded")

	c.Invalidate("main", "", "users")
	_, ok := c.Get("main", "", "users")
	assert.False(t, ok)
	_, err = c.Load(ctx, "main", "", "users", load)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTableStructure(t *testing.T) {
	s := NewTableStructure("main", "", "users", []Column{
		{Name: "id", Type: "INTEGER", Kind: KindInt, PrimaryKey: true},
		{Name: "name", Type: "TEXT", Kind: KindString},
	})
	assert.Equal(t, []string{"id", "name"}, s.ColumnNames())
	assert.Equal(t, []string{"id"}, s.PrimaryKey())
	assert.True(t, s.HasColumn("name"))
	assert.False(t, s.HasColumn("email"))
	assert.Equal(t, "users(id INTEGER, name TEXT)", s.String())
}

func TestRecordMaterialize(t *testing.T) {
	rt := NewRecordType("users", []Column{
		{Name: "id", Kind: KindInt},
		{Name: "name", Kind: KindString},
		{Name: "score", Kind: KindFloat},
		{Name: "active", Kind: KindBool},
		{Name: "create_at", Kind: KindTime},
	})

	rec, err := rt.Materialize(
		[]string{"id", "name", "score", "active", "create_at", "extra"},
		[]interface{}{[]byte("7"), []byte("bob"), "1.5", int64(1), "2024-03-01 10:00:00", "ignored"},
	)
	require.NoError(t, err)

	id, ok := rec.Int64("id")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	name, _ := rec.String("name")
	assert.Equal(t, "bob", name)
	score, _ := rec.Float64("score")
	assert.Equal(t, 1.5, score)
	active, _ := rec.Bool("active")
	assert.True(t, active)
	ts, ok := rec.Time("create_at")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ts)

	assert.Len(t, rec.Map(), 5)

	partial, err := rt.Materialize([]string{"id"}, []interface{}{int64(1)})
	require.NoError(t, err)
	_, ok = partial.Get("name")
	assert.False(t, ok)
	assert.Equal(t, map[string]interface{}{"id": int64(1)}, partial.Map())

	assert.ErrorIs(t, rec.Set("nope", 1), ErrUnknownField)
	require.NoError(t, rec.Set("id", 9))
	id, _ = rec.Int64("id")
	assert.Equal(t, int64(9), id)

	_, err = rt.Materialize([]string{"id"}, []interface{}{"abc"})
	assert.Error(t, err)
}

func TestCoerceMySQLBit(t *testing.T) {
	v, err := Coerce(KindOf("bit(1)"), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = Coerce(KindOf("bit(1)"), []byte{0})
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = Coerce(KindOf("bit(16)"), []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, int64(258), v)
	v, err = Coerce(KindBit, int64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	rt := NewRecordType("t", []Column{{Name: "deleted", Kind: KindOf("bit(1)")}})
	rec, err := rt.Materialize([]string{"deleted"}, []interface{}{[]byte{0}})
	require.NoError(t, err)
	deleted, ok := rec.Bool("deleted")
	assert.True(t, ok)
	assert.False(t, deleted)

	v, err = Coerce(KindBool, []byte("true"))
	require.NoError(t, err)
	assert.Equal(t, true, v)
	v, err = Coerce(KindBool, int64(0))
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestCoerceDecimalIsExact(t *testing.T) {
	v, err := Coerce(KindOf("decimal(20,2)"), []byte("12345678901234567.89"))
	require.NoError(t, err)
	d, ok := v.(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, "12345678901234567.89", d.String())

	v, err = Coerce(KindDecimal, int64(3))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(v.(decimal.Decimal)))

	_, err = Coerce(KindDecimal, "abc")
	assert.Error(t, err)

	rt := NewRecordType("orders", []Column{{Name: "total", Kind: KindDecimal}})
	rec, err := rt.Materialize([]string{"total"}, []interface{}{"0.10"})
	require.NoError(t, err)
	total, ok := rec.Decimal("total")
	assert.True(t, ok)
	assert.Equal(t, "0.1", total.String())
}

func TestCoerceIntRange(t *testing.T) {
	_, err := Coerce(KindOf("bigint(20) unsigned"), uint64(math.MaxUint64))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = Coerce(KindInt, []byte("18446744073709551615"))
	assert.ErrorIs(t, err, ErrOutOfRange)

	v, err := Coerce(KindInt, uint64(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)

	v, err = Coerce(KindInt, []byte("00042"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v, "zerofill text is decimal")

	v, err = Coerce(KindFloat, []byte("1.25"))
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)
}

func TestCoerceTime(t *testing.T) {
	v, err := Coerce(KindTime, "2024-03-01 10:00:00.5+02:00")
	require.NoError(t, err)
	ts, ok := v.(time.Time)
	require.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 8, 0, 0, 500000000, time.UTC)))

	v, err = Coerce(KindTime, int64(0))
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), v)

	v, err = Coerce(KindTime, "not a time")
	require.NoError(t, err)
	assert.Equal(t, "not a time", v)
}

func TestCoerceNil(t *testing.T) {
	for _, k := range []Kind{KindString, KindInt, KindFloat, KindDecimal, KindBool, KindBit, KindBytes, KindTime} {
		v, err := Coerce(k, nil)
		assert.NoError(t, err)
		assert.Nil(t, v)
	}
}
