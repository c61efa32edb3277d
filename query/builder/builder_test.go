package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/satishbabariya/seal-go/query/executor"
	"github.com/satishbabariya/seal-go/query/sqlgen"
	"github.com/satishbabariya/seal-go/runtime/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersDDL = `CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE,
	status INTEGER DEFAULT 1,
	tenant_id INTEGER,
	deleted INTEGER DEFAULT 0,
	create_by INTEGER,
	create_at DATETIME,
	update_by INTEGER,
	update_at DATETIME
)`

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newExecutor(t *testing.T, ddl ...string) *executor.Executor {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "builder.db") + "?_busy_timeout=5000&_txlock=immediate"
	p, err := pool.Open(context.Background(), "main", "sqlite3", dsn, pool.Config{MinConnections: 1, MaxConnections: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	for _, stmt := range ddl {
		_, err := p.DB().Exec(stmt)
		require.NoError(t, err)
	}
	e, err := executor.New(p, "sqlite", executor.Config{})
	require.NoError(t, err)
	return e
}

func softDelete() Options {
	return Options{
		LogicalDeletedField: "deleted",
		LogicalDeletedTrue:  1,
		LogicalDeletedFalse: 0,
		CreatedByField:      "create_by",
		CreatedAtField:      "create_at",
		UpdatedByField:      "update_by",
		UpdatedAtField:      "update_at",
		Now:                 func() time.Time { return fixedNow },
	}
}

func seed(t *testing.T, e *executor.Executor, opts Options, n int) {
	t.Helper()
	records := make([]map[string]interface{}, n)
	for i := range records {
		records[i] = map[string]interface{}{"name": fmt.Sprintf("user%02d", i+1), "status": 1}
	}
	affected, err := NewInsert(e, "users", opts).InsertBulk(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, int64(n), affected)
}

func TestInsertColumnSet(t *testing.T) {
	e := newExecutor(t, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, deleted INTEGER, create_by INTEGER, create_at DATETIME)`)
	ctx := WithOperator(context.Background(), 7)

	q, err := NewInsert(e, "users", softDelete()).Build(ctx, map[string]interface{}{"name": "x"})
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO users (name, deleted, create_by, create_at) VALUES (?, ?, ?, ?)", q.SQL)
	require.Len(t, q.Rows, 1)
	assert.Equal(t, []interface{}{"x", 0, 7, fixedNow}, q.Rows[0])
}

func TestInsertWithoutOperatorKeepsColumnDefault(t *testing.T) {
	e := newExecutor(t, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, deleted INTEGER, create_by INTEGER NOT NULL DEFAULT 0, create_at DATETIME)`)
	ctx := context.Background()

	q, err := NewInsert(e, "users", softDelete()).Build(ctx, map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name, deleted, create_at) VALUES (?, ?, ?)", q.SQL)

	id, err := NewInsert(e, "users", softDelete()).Insert(ctx, map[string]interface{}{"name": "x"})
	require.NoError(t, err)

	res, err := NewQuery(e, "users", softDelete()).Eq("id", id).One(ctx)
	require.NoError(t, err)
	rec, err := res.Get()
	require.NoError(t, err)
	by, ok := rec.Int64("create_by")
	assert.True(t, ok)
	assert.Equal(t, int64(0), by)
}

func TestInsertCallerAuditWins(t *testing.T) {
	e := newExecutor(t, usersDDL)
	ctx := WithOperator(context.Background(), 7)

	id, err := NewInsert(e, "users", softDelete()).Insert(ctx, map[string]interface{}{"name": "x", "create_by": 99})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	res, err := NewQuery(e, "users", softDelete()).Eq("id", id).One(ctx)
	require.NoError(t, err)
	rec, err := res.Get()
	require.NoError(t, err)
	by, _ := rec.Int64("create_by")
	assert.Equal(t, int64(99), by)
	deleted, _ := rec.Int64("deleted")
	assert.Equal(t, int64(0), deleted)
}

func TestInsertStruct(t *testing.T) {
	e := newExecutor(t, usersDDL)

	type user struct {
		ID     int64   `db:"id"`
		Name   string  `db:"name"`
		Email  *string `db:"email"`
		Status int     `db:"status"`
		Ignore string  `db:"-"`
	}
	email := "a@example.com"
	q, err := NewInsert(e, "users", Options{}).Build(context.Background(), user{ID: 5, Name: "a", Email: &email, Status: 2})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name, email, status) VALUES (?, ?, ?)", q.SQL)
	assert.Equal(t, []interface{}{"a", "a@example.com", 2}, q.Rows[0])

	q, err = NewInsert(e, "users", Options{}).Build(context.Background(), &user{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name, status) VALUES (?, ?)", q.SQL)
}

func TestInsertNilRecord(t *testing.T) {
	e := newExecutor(t, usersDDL)
	_, err := NewInsert(e, "users", Options{}).Insert(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilRecord)

	_, err = NewInsert(e, "users", Options{}).InsertBulk(context.Background(), []map[string]interface{}{})
	assert.ErrorIs(t, err, ErrNilRecord)
}

func TestInsertIgnoreAndUpsert(t *testing.T) {
	e := newExecutor(t, usersDDL)
	ctx := context.Background()

	_, err := NewInsert(e, "users", Options{}).Insert(ctx, map[string]interface{}{"name": "a", "email": "a@x"})
	require.NoError(t, err)

	id, err := NewInsert(e, "users", Options{}).IgnoreDuplicates().Insert(ctx, map[string]interface{}{"name": "dup", "email": "a@x"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)

	_, err = NewInsert(e, "users", Options{}).Upsert("email").InsertBulk(ctx, []map[string]interface{}{{"name": "renamed", "email": "a@x"}})
	require.NoError(t, err)

	res, err := NewQuery(e, "users", Options{}).Eq("email", "a@x").One(ctx)
	require.NoError(t, err)
	assert.Equal(t, "renamed", res.AsMap()["name"])

	n, err := NewQuery(e, "users", Options{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpsertDuplicatesArgs(t *testing.T) {
	e := newExecutor(t, usersDDL)

	q, err := NewInsert(e, "users", Options{}).Upsert("email").Build(context.Background(),
		map[string]interface{}{"name": "a", "email": "a@x"},
		map[string]interface{}{"name": "b", "email": "b@x"},
	)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name, email) VALUES (?, ?) ON CONFLICT(email) DO UPDATE SET name = ?, email = ?", q.SQL)
	assert.Equal(t, []interface{}{"b", "b@x", "b", "b@x"}, q.Rows[1])
}

func TestPage(t *testing.T) {
	e := newExecutor(t, usersDDL)
	seed(t, e, Options{}, 25)

	page, err := NewQuery(e, "users", Options{}).Eq("status", 1).Asc("id").Page(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.Page)
	require.Equal(t, 10, page.Records.Len())
	rows := page.Records.AsMaps()
	assert.Equal(t, "user11", rows[0]["name"])
	assert.Equal(t, "user20", rows[9]["name"])

	_, err = NewQuery(e, "users", Options{}).Page(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestSelectAndIgnore(t *testing.T) {
	e := newExecutor(t, usersDDL)
	ctx := context.Background()

	q, err := NewQuery(e, "users", Options{}).Select("id", "name").Eq("id", 1).Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = ?", q.SQL)

	q, err = NewQuery(e, "users", Options{}).Ignore("create_by", "create_at", "update_by", "update_at").Desc("id").Limit(5).Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name, email, status, tenant_id, deleted FROM users ORDER BY id DESC LIMIT 5", q.SQL)

	_, err = NewQuery(e, "users", Options{}).Select("nope").Build(ctx)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = NewQuery(e, "users", Options{}).Eq("id; DROP TABLE users", 1).Build(ctx)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = NewQuery(e, "users", Options{}).Sort("id sideways").Build(ctx)
	assert.Error(t, err)
}

func TestOrFolding(t *testing.T) {
	e := newExecutor(t, usersDDL)

	q, err := NewQuery(e, "users", Options{}).
		Select("id").
		Eq("status", 1).
		Or(Where().Eq("name", "a").RLike("email", "a@")).
		Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE status = ? AND (name = ? OR email LIKE ?)", q.SQL)
	assert.Equal(t, []interface{}{1, "a", "a@%"}, q.Args)
}

func TestLikeVariants(t *testing.T) {
	exp, args := Where().Like("name", "ab").LLike("name", "c").RLike("name", "d").Parse()
	assert.Equal(t, "name LIKE ? AND name LIKE ? AND name LIKE ?", exp)
	assert.Equal(t, []interface{}{"%ab%", "%c", "d%"}, args)
}

func TestPublicFields(t *testing.T) {
	e := newExecutor(t, usersDDL)
	ctx := context.Background()

	opts := softDelete()
	opts.TenantField = "tenant_id"

	_, err := NewQuery(e, "users", opts).Eq("id", 1).Build(ctx)
	assert.ErrorIs(t, err, ErrMissingTenantValue)

	q, err := NewQuery(e, "users", opts).Select("id").Eq("id", 1).Build(WithTenant(ctx, 3))
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE id = ? AND tenant_id = ? AND deleted = ?", q.SQL)
	assert.Equal(t, []interface{}{1, 3, 0}, q.Args)

	q, err = NewQuery(e, "users", opts).Select("id").Eq("id", 1).Build(ctx, FilterDeleted("deleted"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE id = ? AND deleted = ?", q.SQL)

	broken := Options{LogicalDeletedField: "deleted", LogicalDeletedFalse: 0}
	_, err = NewQuery(e, "users", broken).Build(ctx)
	assert.ErrorIs(t, err, ErrMissingLogicalDeleteConfig)
}

func TestPublicFieldsSkipTablesWithoutColumns(t *testing.T) {
	e := newExecutor(t, `CREATE TABLE tags (id INTEGER PRIMARY KEY, label TEXT)`)
	opts := softDelete()
	opts.TenantField = "tenant_id"

	q, err := NewQuery(e, "tags", opts).Eq("id", 1).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, label FROM tags WHERE id = ?", q.SQL)
}

func TestBuilderIsSingleUse(t *testing.T) {
	e := newExecutor(t, usersDDL)
	ctx := context.Background()

	q := NewQuery(e, "users", softDelete()).Eq("status", 1)
	_, err := q.List(ctx)
	require.NoError(t, err)
	_, err = q.Count(ctx)
	assert.ErrorIs(t, err, ErrBuilderConsumed)

	ins := NewInsert(e, "users", Options{})
	_, err = ins.Insert(ctx, map[string]interface{}{"name": "a"})
	require.NoError(t, err)
	_, err = ins.Insert(ctx, map[string]interface{}{"name": "b"})
	assert.ErrorIs(t, err, ErrBuilderConsumed)
}

func TestFullTableMutationRejected(t *testing.T) {
	e := newExecutor(t, usersDDL)
	ctx := context.Background()

	_, err := NewUpdate(e, "users", softDelete()).Set("name", "x").Update(ctx)
	assert.ErrorIs(t, err, sqlgen.ErrUnsupportedFullTableMutation)

	_, err = NewUpdate(e, "users", softDelete()).Delete(ctx)
	assert.ErrorIs(t, err, sqlgen.ErrUnsupportedFullTableMutation)

	_, err = NewUpdate(e, "users", softDelete()).Delete(ctx, LogicalDelete())
	assert.ErrorIs(t, err, sqlgen.ErrUnsupportedFullTableMutation)

	assert.Equal(t, int64(0), e.Structures().Loads())
	assert.Equal(t, int64(0), e.Pool().Stats().Acquired)
}

func TestUpdateWithAudit(t *testing.T) {
	e := newExecutor(t, usersDDL)
	seed(t, e, softDelete(), 3)
	ctx := WithOperator(context.Background(), 42)

	n, err := NewUpdate(e, "users", softDelete()).Set("status", 2).In("id", []int{1, 2}).Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := NewQuery(e, "users", softDelete()).Eq("id", 1).One(ctx)
	require.NoError(t, err)
	rec, err := res.Get()
	require.NoError(t, err)
	by, _ := rec.Int64("update_by")
	assert.Equal(t, int64(42), by)
	at, ok := rec.Time("update_at")
	require.True(t, ok)
	assert.True(t, at.Equal(fixedNow))
}

func TestUpdateSetAll(t *testing.T) {
	e := newExecutor(t, usersDDL)
	seed(t, e, Options{}, 1)

	type patch struct {
		ID     int64   `db:"id"`
		Name   string  `db:"name"`
		Email  *string `db:"email"`
		Extra  string  `db:"not_a_column"`
		Status int
	}
	q, err := NewUpdate(e, "users", Options{}).
		Set("status", 5).
		SetAll(patch{ID: 9, Name: "renamed", Status: 7}).
		Eq("id", 1).
		Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET status = ?, name = ? WHERE id = ?", q.SQL)
	assert.Equal(t, []interface{}{5, "renamed", 1}, q.Args)

	_, err = NewUpdate(e, "users", Options{}).Read(nil).Eq("id", 1).Update(context.Background())
	assert.ErrorIs(t, err, ErrNilRecord)

	_, err = NewUpdate(e, "users", Options{}).Eq("id", 1).Update(context.Background())
	assert.ErrorIs(t, err, sqlgen.ErrEmptyUpdate)
}

func TestLogicalDelete(t *testing.T) {
	e := newExecutor(t, usersDDL)
	seed(t, e, softDelete(), 3)
	ctx := context.Background()

	n, err := NewUpdate(e, "users", softDelete()).Eq("id", 1).Delete(ctx, LogicalDelete())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	visible, err := NewQuery(e, "users", softDelete()).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), visible)

	all, err := NewQuery(e, "users", Options{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)

	n, err = NewUpdate(e, "users", Options{}).Eq("id", 2).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err = NewQuery(e, "users", Options{}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all)

	_, err = NewUpdate(e, "users", Options{}).Eq("id", 3).Delete(ctx, LogicalDelete())
	assert.ErrorIs(t, err, ErrMissingLogicalDeleteConfig)
}

func TestListDecode(t *testing.T) {
	e := newExecutor(t, usersDDL)
	seed(t, e, softDelete(), 2)

	rs, err := NewQuery(e, "users", softDelete()).Select("id", "name", "create_at").Asc("id").List(context.Background())
	require.NoError(t, err)

	var users []struct {
		ID       int64     `db:"id"`
		Name     string    `db:"name"`
		CreateAt time.Time `db:"create_at"`
	}
	require.NoError(t, rs.Decode(&users))
	require.Len(t, users, 2)
	assert.Equal(t, "user01", users[0].Name)
	assert.True(t, users[1].CreateAt.Equal(fixedNow))
}
