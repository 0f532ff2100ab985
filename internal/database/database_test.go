package database

import (
	"errors"
	"testing"
	"time"

	"docstudio/internal/aggregate"
	"docstudio/internal/document"
	"docstudio/internal/globalconst"
	"docstudio/internal/persistence"
	"docstudio/internal/query"
	"docstudio/internal/schema"
	"docstudio/internal/store"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/data"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func shopTables() []*schema.Table {
	noTimestamps := false
	return []*schema.Table{
		{
			Name: "users",
			Fields: []schema.Field{
				schema.String("email", schema.Required(), schema.Unique(), schema.WithFormat(schema.FormatEmail)),
				schema.String("name", schema.Required()),
				schema.String("role", schema.WithDefault("user")),
				schema.String("code", schema.Readonly()),
			},
		},
		{
			Name:       "posts",
			SoftDelete: true,
			Fields: []schema.Field{
				schema.String("title", schema.Required()),
				schema.Reference("authorId", "users", schema.CascadeDelete()),
				schema.Array("tags", schema.String("tag")),
			},
		},
		{
			Name:       "comments",
			Timestamps: &noTimestamps,
			Fields: []schema.Field{
				schema.String("body"),
				schema.Reference("postId", "posts", schema.CascadeDelete()),
				schema.Reference("authorId", "users"),
			},
		},
	}
}

func newShop(t *testing.T) (*Service, *persistence.MemFS) {
	t.Helper()
	fsys := persistence.NewMemFS()
	reg := NewRegistry(fsys, root, store.Options{})
	require.NoError(t, reg.InitializeDatabase("shop", "Shop", shopTables()))
	svc := NewService(reg)
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, fsys
}

func tablePath(table string) string {
	return persistence.TablePath(root, "shop", table)
}

// slowReadFS holds reads of one file until release is closed.
type slowReadFS struct {
	*persistence.MemFS
	path    string
	entered chan struct{}
	release chan struct{}
}

func (f *slowReadFS) ReadFile(path string) ([]byte, error) {
	if path == f.path {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.release
	}
	return f.MemFS.ReadFile(path)
}

func TestInitializeSeedsTableFiles(t *testing.T) {
	svc, fsys := newShop(t)
	for _, table := range []string{"users", "posts", "comments"} {
		data, err := fsys.ReadFile(tablePath(table))
		require.NoError(t, err, table)
		assert.Equal(t, "[]", string(data))
	}

	exists, err := svc.Registry().DatabaseExists("shop")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = svc.Registry().DatabaseExists("nope")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []string{"shop"}, svc.Registry().Databases())
	info, err := svc.Registry().Info("shop")
	require.NoError(t, err)
	assert.Equal(t, Info{ID: "shop", Name: "Shop", Tables: []string{"users", "posts", "comments"}}, info)
}

func TestInitializeRejectsBadInput(t *testing.T) {
	reg := NewRegistry(persistence.NewMemFS(), root, store.Options{})
	assert.Error(t, reg.InitializeDatabase("../escape", "x", nil))
	assert.Error(t, reg.InitializeDatabase("ok", "x", []*schema.Table{{Name: "a"}, {Name: "a"}}))
	assert.Empty(t, reg.Databases())
}

func TestInitializeKeepsExistingData(t *testing.T) {
	fsys := persistence.NewMemFS()
	require.NoError(t, fsys.MkdirAll(root+"/shop"))
	require.NoError(t, fsys.WriteFile(tablePath("users"), []byte(`[{"_id":"u1","email":"a@x.com","name":"Ann"}]`)))

	reg := NewRegistry(fsys, root, store.Options{})
	require.NoError(t, reg.InitializeDatabase("shop", "", shopTables()))
	svc := NewService(reg)

	doc, ok, err := svc.FindByID("shop", "users", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ann", doc["name"])
}

func TestCreateStampsMetadata(t *testing.T) {
	svc, _ := newShop(t)
	doc, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)

	id, ok := doc[globalconst.ID].(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	stamp := document.FormatTime(fixedNow)
	assert.Equal(t, stamp, doc[globalconst.CreatedAt])
	assert.Equal(t, stamp, doc[globalconst.UpdatedAt])
	assert.Equal(t, "user", doc["role"], "defaults are merged under the input")

	found, ok, err := svc.FindByID("shop", "users", id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, found)

	comment, err := svc.Create("shop", "comments", document.Document{"body": "hi"})
	require.NoError(t, err)
	assert.NotContains(t, comment, globalconst.CreatedAt)
	assert.NotContains(t, comment, globalconst.UpdatedAt)
}

func TestCreateMissingRequiredField(t *testing.T) {
	svc, fsys := newShop(t)
	before := fsys.Writes(tablePath("users"))

	_, err := svc.Create("shop", "users", document.Document{"name": "Bob"})
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "email", verr.Field)
	assert.Equal(t, schema.RuleRequired, verr.Rule)
	assert.Contains(t, verr.Error(), "email")
	assert.Equal(t, before, fsys.Writes(tablePath("users")))
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	svc, _ := newShop(t)
	inputs := make([]document.Document, 50)
	for i := range inputs {
		inputs[i] = document.Document{"title": "post"}
	}
	docs, err := svc.CreateMany("shop", "posts", inputs)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, doc := range docs {
		id := doc[globalconst.ID].(string)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}

func TestCreateManyIsOneFlushAndAllOrNothing(t *testing.T) {
	svc, fsys := newShop(t)
	path := tablePath("users")
	before := fsys.Writes(path)

	docs, err := svc.CreateMany("shop", "users", []document.Document{
		{"email": "a@x.com", "name": "Ann"},
		{"email": "b@x.com", "name": "Bob"},
		{"email": "c@x.com", "name": "Cid"},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Equal(t, before+1, fsys.Writes(path))

	_, err = svc.CreateMany("shop", "users", []document.Document{
		{"email": "d@x.com", "name": "Dee"},
		{"name": "no email"},
	})
	assert.Error(t, err)
	_, err = svc.CreateMany("shop", "users", []document.Document{
		{"email": "e@x.com", "name": "Eve"},
		{"email": "e@x.com", "name": "Eve again"},
	})
	assert.Error(t, err, "unique values are checked within the batch")
	assert.Equal(t, before+1, fsys.Writes(path))

	n, err := svc.Count("shop", "users", query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCreateDuplicateExplicitID(t *testing.T) {
	svc, _ := newShop(t)
	_, err := svc.Create("shop", "posts", document.Document{"_id": "p1", "title": "a"})
	require.NoError(t, err)
	_, err = svc.Create("shop", "posts", document.Document{"_id": "p1", "title": "b"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = svc.Create("shop", "posts", document.Document{"_id": 7, "title": "c"})
	var verr *schema.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestUniqueField(t *testing.T) {
	svc, _ := newShop(t)
	ann, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)
	bob, err := svc.Create("shop", "users", document.Document{"email": "b@x.com", "name": "Bob"})
	require.NoError(t, err)

	_, err = svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Copy"})
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.RuleUnique, verr.Rule)

	_, err = svc.Update("shop", "users", bob["_id"].(string), document.Document{"email": "a@x.com"})
	require.True(t, errors.As(err, &verr))

	_, err = svc.Update("shop", "users", ann["_id"].(string), document.Document{"email": "a@x.com", "name": "Ann B"})
	assert.NoError(t, err, "a document does not conflict with itself")
}

func TestUpdate(t *testing.T) {
	svc, fsys := newShop(t)
	created, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann", "code": "A1"})
	require.NoError(t, err)
	id := created["_id"].(string)

	later := fixedNow.Add(time.Hour)
	svc.SetClock(func() time.Time { return later })
	before := fsys.Writes(tablePath("users"))

	updated, err := svc.Update("shop", "users", id, document.Document{"name": "Annie", "_createdAt": "tampered"})
	require.NoError(t, err)
	assert.Equal(t, before+1, fsys.Writes(tablePath("users")))
	assert.Equal(t, "Annie", updated["name"])
	assert.Equal(t, "a@x.com", updated["email"])
	assert.Equal(t, created[globalconst.CreatedAt], updated[globalconst.CreatedAt])
	assert.Equal(t, document.FormatTime(later), updated[globalconst.UpdatedAt])

	found, _, err := svc.FindByID("shop", "users", id)
	require.NoError(t, err)
	assert.Equal(t, updated, found)

	_, err = svc.Update("shop", "users", "missing", document.Document{"name": "x"})
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	var verr *schema.ValidationError
	_, err = svc.Update("shop", "users", id, document.Document{"code": "B2"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.RuleReadonly, verr.Rule)

	_, err = svc.Update("shop", "users", id, document.Document{"_id": "other"})
	require.True(t, errors.As(err, &verr))

	_, err = svc.Update("shop", "users", id, document.Document{"email": "not-an-email"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.RuleFormat, verr.Rule)
}

func TestUpdateMany(t *testing.T) {
	svc, fsys := newShop(t)
	_, err := svc.CreateMany("shop", "posts", []document.Document{
		{"title": "a", "tags": []any{"go"}},
		{"title": "b"},
		{"title": "c", "tags": []any{"go"}},
	})
	require.NoError(t, err)
	path := tablePath("posts")
	before := fsys.Writes(path)

	n, err := svc.UpdateMany("shop", "posts", query.Filter{"tags[0]": "go"}, document.Document{"title": "golang"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, before+1, fsys.Writes(path))

	count, err := svc.Count("shop", "posts", query.Filter{"title": "golang"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err = svc.UpdateMany("shop", "posts", query.Filter{"title": "zzz"}, document.Document{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, before+1, fsys.Writes(path), "nothing matched, nothing flushed")

	_, err = svc.UpdateMany("shop", "posts", query.Filter{}, document.Document{"title": ""})
	assert.Error(t, err)
	count, err = svc.Count("shop", "posts", query.Filter{"title": "golang"})
	require.NoError(t, err)
	assert.Equal(t, 2, count, "failed batch leaves every document untouched")
}

func TestHardDelete(t *testing.T) {
	svc, _ := newShop(t)
	doc, err := svc.Create("shop", "comments", document.Document{"body": "x"})
	require.NoError(t, err)
	id := doc["_id"].(string)

	ok, err := svc.Delete("shop", "comments", id)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err := svc.FindByID("shop", "comments", id)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = svc.Delete("shop", "comments", "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSoftDelete(t *testing.T) {
	svc, _ := newShop(t)
	doc, err := svc.Create("shop", "posts", document.Document{"title": "x"})
	require.NoError(t, err)
	id := doc["_id"].(string)

	ok, err := svc.Delete("shop", "posts", id)
	require.NoError(t, err)
	assert.True(t, ok)
	found, present, err := svc.FindByID("shop", "posts", id)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, document.FormatTime(fixedNow), found[globalconst.DeletedAt])

	n, err := svc.Count("shop", "posts", query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "soft-deleted documents are still returned by reads")
	n, err = svc.Count("shop", "posts", query.Filter{globalconst.DeletedAt: nil})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ok, err = svc.Delete("shop", "posts", "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMany(t *testing.T) {
	svc, _ := newShop(t)
	_, err := svc.CreateMany("shop", "comments", []document.Document{
		{"body": "spam"}, {"body": "ok"}, {"body": "spam"},
	})
	require.NoError(t, err)

	n, err := svc.DeleteMany("shop", "comments", query.Filter{"body": "spam"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	remaining, err := svc.Find("shop", "comments", query.Filter{}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "ok", remaining[0]["body"])

	_, err = svc.CreateMany("shop", "posts", []document.Document{{"title": "a"}, {"title": "a"}})
	require.NoError(t, err)
	n, err = svc.DeleteMany("shop", "posts", query.Filter{"title": "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = svc.DeleteMany("shop", "posts", query.Filter{"title": "a"})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already soft-deleted documents are not counted")
}

func TestCascadeDelete(t *testing.T) {
	svc, _ := newShop(t)
	ann, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)
	annID := ann["_id"].(string)

	post, err := svc.Create("shop", "posts", document.Document{"title": "p", "authorId": annID})
	require.NoError(t, err)
	postID := post["_id"].(string)
	_, err = svc.CreateMany("shop", "comments", []document.Document{
		{"body": "on post", "postId": postID},
		{"body": "by ann, no cascade", "authorId": annID},
	})
	require.NoError(t, err)

	ok, err := svc.Delete("shop", "users", annID)
	require.NoError(t, err)
	assert.True(t, ok)

	// posts is soft-delete: the post stays but is stamped.
	gotPost, _, err := svc.FindByID("shop", "posts", postID)
	require.NoError(t, err)
	assert.Contains(t, gotPost, globalconst.DeletedAt)

	// comments is hard-delete: the post's comment is gone, the plain reference stays.
	comments, err := svc.Find("shop", "comments", query.Filter{}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "by ann, no cascade", comments[0]["body"])
}

func TestFindWithPopulate(t *testing.T) {
	svc, _ := newShop(t)
	ann, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)
	_, err = svc.CreateMany("shop", "posts", []document.Document{
		{"title": "mine", "authorId": ann["_id"]},
		{"title": "orphan", "authorId": "ghost"},
	})
	require.NoError(t, err)

	var opts FindOptions
	require.NoError(t, json.Unmarshal([]byte(`{"sort":{"title":1},"populate":["authorId"]}`), &opts))
	docs, err := svc.Find("shop", "posts", query.Filter{}, opts)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	author, ok := docs[0]["authorId"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ann", author["name"])
	assert.Equal(t, "ghost", docs[1]["authorId"])

	_, err = svc.Find("shop", "posts", query.Filter{}, FindOptions{Populate: []string{"title"}})
	assert.Error(t, err)
}

func TestReadDelegates(t *testing.T) {
	svc, _ := newShop(t)
	_, err := svc.CreateMany("shop", "users", []document.Document{
		{"email": "a@x.com", "name": "Ann", "role": "admin"},
		{"email": "b@x.com", "name": "Bob"},
		{"email": "c@x.com", "name": "Cid"},
	})
	require.NoError(t, err)

	roles, err := svc.Distinct("shop", "users", "role", query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []any{"admin", "user"}, roles)

	exists, err := svc.Exists("shop", "users", query.Filter{"role": "admin"})
	require.NoError(t, err)
	assert.True(t, exists)

	one, ok, err := svc.FindOne("shop", "users", query.Filter{"role": "user"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Bob", one["name"])

	byField, err := svc.FindByField("shop", "users", "email", "c@x.com")
	require.NoError(t, err)
	require.Len(t, byField, 1)

	hits, err := svc.Search("shop", "users", "B@X", []string{"email"}, query.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Bob", hits[0]["name"])
}

func TestAggregateWithLookup(t *testing.T) {
	svc, _ := newShop(t)
	ann, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)
	_, err = svc.CreateMany("shop", "posts", []document.Document{
		{"title": "one", "authorId": ann["_id"]},
		{"title": "two", "authorId": ann["_id"]},
	})
	require.NoError(t, err)

	p, err := aggregate.ParseJSON([]byte(`[
		{"$group": {"_id": "$authorId", "posts": {"$count": {}}}},
		{"$lookup": {"from": "users", "localField": "_id", "foreignField": "_id", "as": "author"}},
		{"$unwind": "$author"},
		{"$project": {"posts": 1, "name": "$author.name"}}
	]`))
	require.NoError(t, err)
	out, err := svc.Aggregate("shop", "posts", p)
	require.NoError(t, err)
	assert.Equal(t, []document.Document{{"posts": 2.0, "name": "Ann"}}, out)
}

func TestTimestampsSortChronologically(t *testing.T) {
	svc, _ := newShop(t)
	stamps := []time.Time{
		fixedNow,
		fixedNow.Add(500 * time.Millisecond),
		fixedNow.Add(510 * time.Millisecond),
	}
	for i, at := range stamps {
		svc.SetClock(func() time.Time { return at })
		_, err := svc.Create("shop", "users", document.Document{
			"_id":   "u" + string(rune('1'+i)),
			"email": "user" + string(rune('1'+i)) + "@x.com",
			"name":  "User",
		})
		require.NoError(t, err)
	}

	asc, err := svc.Find("shop", "users", query.Filter{}, FindOptions{
		Options: query.Options{Sort: query.SortSpec{{Field: globalconst.CreatedAt, Direction: globalconst.SortAsc}}},
	})
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, []any{"u1", "u2", "u3"}, []any{asc[0]["_id"], asc[1]["_id"], asc[2]["_id"]})

	desc, err := svc.Find("shop", "users", query.Filter{}, FindOptions{
		Options: query.Options{Sort: query.SortSpec{{Field: globalconst.CreatedAt, Direction: globalconst.SortDesc}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"u3", "u2", "u1"}, []any{desc[0]["_id"], desc[1]["_id"], desc[2]["_id"]})

	p, err := aggregate.ParseJSON([]byte(`[
		{"$group": {"_id": null, "first": {"$min": "$_createdAt"}, "last": {"$max": "$_createdAt"}}}
	]`))
	require.NoError(t, err)
	out, err := svc.Aggregate("shop", "users", p)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, document.FormatTime(stamps[0]), out[0]["first"])
	assert.Equal(t, document.FormatTime(stamps[2]), out[0]["last"])
}

func TestHandleOpenDoesNotBlockOtherDatabases(t *testing.T) {
	fsys := &slowReadFS{
		MemFS:   persistence.NewMemFS(),
		path:    tablePath("users"),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	reg := NewRegistry(fsys, root, store.Options{})
	require.NoError(t, reg.InitializeDatabase("shop", "Shop", shopTables()))
	require.NoError(t, reg.InitializeDatabase("blog", "", shopTables()))

	results := make(chan *store.Handle, 2)
	for i := 0; i < 2; i++ {
		go func() {
			h, err := reg.Handle("shop", "users")
			assert.NoError(t, err)
			results <- h
		}()
	}
	<-fsys.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := reg.Handle("blog", "users")
		assert.NoError(t, err)
		assert.Equal(t, []string{"blog", "shop"}, reg.Databases())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		close(fsys.release)
		t.Fatal("registry stayed locked while a table file was read")
	}

	close(fsys.release)
	first, second := <-results, <-results
	require.NotNil(t, first)
	assert.Same(t, first, second, "concurrent first uses share one handle")
}

func TestUninitializedDatabase(t *testing.T) {
	svc, fsys := newShop(t)

	_, err := svc.Create("ghost", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = svc.Find("ghost", "users", query.Filter{}, FindOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = svc.Aggregate("ghost", "users", nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = svc.Delete("ghost", "users", "x")
	assert.ErrorIs(t, err, ErrNotInitialized)

	exists, err := fsys.Exists(root + "/ghost")
	require.NoError(t, err)
	assert.False(t, exists, "nothing touches the disk for unknown databases")

	_, err = svc.Find("shop", "nope", query.Filter{}, FindOptions{})
	assert.ErrorIs(t, err, schema.ErrUnknownTable)
}

func TestCloseDatabaseIsIdempotent(t *testing.T) {
	svc, _ := newShop(t)
	reg := svc.Registry()
	h, err := reg.Handle("shop", "users")
	require.NoError(t, err)

	reg.CloseDatabase("shop")
	assert.NotPanics(t, func() { reg.CloseDatabase("shop") })
	assert.NotPanics(t, func() { reg.CloseDatabase("never-registered") })
	assert.Empty(t, reg.Databases())

	_, err = svc.Count("shop", "users", query.Filter{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, h.Mutate(func(*store.Rows) error { return nil }), store.ErrClosed)

	exists, err := reg.DatabaseExists("shop")
	require.NoError(t, err)
	assert.True(t, exists, "closing keeps the data on disk")
}

func TestReinitializeReloadsFromDisk(t *testing.T) {
	svc, _ := newShop(t)
	_, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)

	reg := svc.Registry()
	reg.CloseDatabase("shop")
	require.NoError(t, reg.InitializeDatabase("shop", "Shop", shopTables()))
	n, err := svc.Count("shop", "users", query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFlushFailureIsReported(t *testing.T) {
	svc, fsys := newShop(t)
	_, err := svc.Count("shop", "users", query.Filter{})
	require.NoError(t, err)

	fsys.WriteErr = errors.New("disk full")
	_, err = svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	var serr *persistence.StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "write", serr.Op)
}

func TestBackupAndRestore(t *testing.T) {
	svc, fsys := newShop(t)
	reg := svc.Registry()
	reg.Backups().SetClock(func() time.Time { return fixedNow })

	ann, err := svc.Create("shop", "users", document.Document{"email": "a@x.com", "name": "Ann"})
	require.NoError(t, err)
	_, err = svc.Create("shop", "posts", document.Document{"title": "Hi", "authorId": ann["_id"]})
	require.NoError(t, err)

	name, err := reg.Backup("shop")
	require.NoError(t, err)
	names, err := reg.ListBackups("shop")
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	_, err = svc.Create("shop", "users", document.Document{"email": "b@x.com", "name": "Bob"})
	require.NoError(t, err)
	_, err = svc.DeleteMany("shop", "posts", query.Filter{})
	require.NoError(t, err)

	require.NoError(t, reg.Restore("shop", name))
	users, err := svc.Find("shop", "users", query.Filter{}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ann", users[0]["name"])
	post, found, err := svc.FindOne("shop", "posts", query.Filter{"title": "Hi"})
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, post, globalconst.DeletedAt)

	_, found, err = svc.FindByID("shop", "users", ann["_id"].(string))
	require.NoError(t, err)
	assert.True(t, found, "the id index follows the restored rows")

	var onDisk []map[string]any
	data, err := fsys.ReadFile(tablePath("users"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, 1, "restored tables are flushed")

	err = reg.Restore("shop", "1999-01-01_00-00-00.000")
	assert.ErrorIs(t, err, persistence.ErrBackupNotFound)

	_, err = reg.Backup("ghost")
	assert.ErrorIs(t, err, ErrNotInitialized)
}
