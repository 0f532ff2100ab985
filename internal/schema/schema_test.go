package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersTable() *Table {
	return &Table{
		Name:  "users",
		Label: "Users",
		Fields: []Field{
			String("email", Required(), WithLabel("Email"), WithFormat(FormatEmail)),
			String("name", Required(), MinLength(2), MaxLength(20)),
			Number("age", Integer(), Min(0), Max(150)),
			Enum("role", []string{"admin", "user"}, WithDefault("user")),
			Boolean("active", WithDefault(true)),
			Date("birthday"),
			Array("tags", String("tag", MaxLength(5)), MaxItems(3)),
			Object("address", []Field{String("city", Required(), WithLabel("City"))}),
			Reference("teamId", "teams"),
			String("code", WithComputed(ComputedUUID)),
		},
	}
}

func newUsersGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(usersTable())
	require.NoError(t, err)
	return g
}

func requireValidationError(t *testing.T, err error, field, rule string) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, field, verr.Field)
	assert.Equal(t, rule, verr.Rule)
	return verr
}

func TestValidateDataAcceptsAndCoerces(t *testing.T) {
	g := newUsersGenerator(t)
	birthday := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

	got, err := g.ValidateData("users", map[string]any{
		"_id":      "u1",
		"email":    "ann@example.com",
		"name":     "Ann",
		"age":      int64(30),
		"birthday": birthday,
		"tags":     []string{"a", "b"},
		"address":  map[string]any{"city": "Oslo"},
		"nickname": "annie",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", got["_id"])
	assert.Equal(t, float64(30), got["age"])
	assert.Equal(t, "1990-05-17T00:00:00.000000000Z", got["birthday"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
	assert.Equal(t, "annie", got["nickname"], "non-strict tables keep undeclared fields")
	_, hasRole := got["role"]
	assert.False(t, hasRole, "defaults are not applied by validation")
}

func TestValidateDataRequired(t *testing.T) {
	g := newUsersGenerator(t)

	_, err := g.ValidateData("users", map[string]any{"name": "Bob"})
	verr := requireValidationError(t, err, "email", RuleRequired)
	assert.Equal(t, "Email is required", verr.Message)

	_, err = g.ValidateData("users", map[string]any{"name": "Bob", "email": ""})
	requireValidationError(t, err, "email", RuleRequired)
}

func TestValidateDataRules(t *testing.T) {
	g := newUsersGenerator(t)
	base := func() map[string]any {
		return map[string]any{"email": "a@x.com", "name": "Ann"}
	}

	cases := []struct {
		name  string
		key   string
		value any
		field string
		rule  string
	}{
		{"bad email", "email", "not-an-email", "email", RuleFormat},
		{"short name", "name", "A", "name", RuleMinLength},
		{"long name", "name", "ABCDEFGHIJKLMNOPQRSTUVWXYZ", "name", RuleMaxLength},
		{"age not a number", "age", "30", "age", RuleType},
		{"fractional age", "age", 30.5, "age", RuleInteger},
		{"negative age", "age", -1, "age", RuleMin},
		{"too old", "age", 200, "age", RuleMax},
		{"unknown role", "role", "root", "role", RuleEnum},
		{"bool type", "active", "yes", "active", RuleType},
		{"bad date", "birthday", "yesterday", "birthday", RuleType},
		{"too many tags", "tags", []any{"a", "b", "c", "d"}, "tags", RuleMaxItems},
		{"long tag", "tags", []any{"toolong"}, "tags[0]", RuleMaxLength},
		{"nested required", "address", map[string]any{}, "address.city", RuleRequired},
		{"reference type", "teamId", 12, "teamId", RuleType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := base()
			doc[tc.key] = tc.value
			_, err := g.ValidateData("users", doc)
			requireValidationError(t, err, tc.field, tc.rule)
		})
	}
}

func TestValidateDataStrict(t *testing.T) {
	g, err := NewGenerator(&Table{
		Name:   "notes",
		Strict: true,
		Fields: []Field{String("title")},
	})
	require.NoError(t, err)

	_, err = g.ValidateData("notes", map[string]any{"title": "x", "extra": 1})
	requireValidationError(t, err, "extra", RuleUnknown)

	got, err := g.ValidateData("notes", map[string]any{"title": "x", "_id": "n1"})
	require.NoError(t, err)
	assert.Equal(t, "n1", got["_id"])
}

func TestValidateDataUnknownTable(t *testing.T) {
	g := newUsersGenerator(t)
	_, err := g.ValidateData("missing", map[string]any{})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestExtractDefaults(t *testing.T) {
	g := newUsersGenerator(t)
	defaults, err := g.ExtractDefaults("users")
	require.NoError(t, err)
	assert.Equal(t, "user", defaults["role"])
	assert.Equal(t, true, defaults["active"])
	assert.NotEmpty(t, defaults["code"])
	assert.NotContains(t, defaults, "email")

	other, err := g.ExtractDefaults("users")
	require.NoError(t, err)
	assert.NotEqual(t, defaults["code"], other["code"], "computed uuid defaults are fresh")
}

func TestExtractDefaultsComputedNow(t *testing.T) {
	g, err := NewGenerator(&Table{Name: "events", Fields: []Field{Date("at", WithComputed(ComputedNow))}})
	require.NoError(t, err)
	g.SetClock(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })

	defaults, err := g.ExtractDefaults("events")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00.000000000Z", defaults["at"])
}

func TestRegisterTableRejectsBadSchemas(t *testing.T) {
	g, err := NewGenerator()
	require.NoError(t, err)

	bad := []*Table{
		{Name: "../etc"},
		{Name: "t1", Fields: []Field{{Name: "x", Type: "blob"}}},
		{Name: "t2", Fields: []Field{{Name: "_secret", Type: TypeString}}},
		{Name: "t3", Fields: []Field{String("a"), String("a")}},
		{Name: "t4", Fields: []Field{{Name: "e", Type: TypeEnum}}},
		{Name: "t5", Fields: []Field{{Name: "r", Type: TypeReference}}},
		{Name: "t6", Fields: []Field{{Name: "arr", Type: TypeArray}}},
		{Name: "t7", Fields: []Field{String("s", WithPattern("("))}},
		{Name: "t8", Fields: []Field{String("s", WithFormat("ipv9"))}},
	}
	for _, tbl := range bad {
		assert.Error(t, g.RegisterTable(tbl), tbl.Name)
	}

	require.NoError(t, g.RegisterTable(&Table{Name: "ok"}))
	assert.Error(t, g.RegisterTable(&Table{Name: "ok"}), "duplicate names are rejected")
}

func TestTablesKeepRegistrationOrder(t *testing.T) {
	g, err := NewGenerator(&Table{Name: "b"}, &Table{Name: "a"}, &Table{Name: "c"})
	require.NoError(t, err)
	var names []string
	for _, tbl := range g.Tables() {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.True(t, g.Tables()[0].TimestampsEnabled())
}

func TestParseTables(t *testing.T) {
	tables, err := ParseTables([]byte(`[
		{"name":"users","softDelete":true,"timestamps":false,
		 "fields":[{"name":"email","type":"string","required":true,"format":"email"},
		           {"name":"tags","type":"array","of":{"name":"tag","type":"string"}}]}
	]`))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.True(t, tables[0].SoftDelete)
	assert.False(t, tables[0].TimestampsEnabled())
	f, ok := tables[0].Field("tags")
	require.True(t, ok)
	assert.Equal(t, TypeString, f.Of.Type)

	_, err = ParseTables([]byte(`{`))
	assert.Error(t, err)
}
