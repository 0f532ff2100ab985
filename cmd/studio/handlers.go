package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"docstudio/internal/aggregate"
	"docstudio/internal/database"
	"docstudio/internal/document"
	"docstudio/internal/query"
	"docstudio/internal/schema"

	"github.com/olekukonko/tablewriter"
)

// getCommands defines all available commands, their help, handler, and category.
func (c *cli) getCommands() map[string]command {
	return map[string]command{
		// General
		"help":  {help: "help - Shows this help message", handler: (*cli).handleHelp, category: "General"},
		"exit":  {help: "exit - Exits the shell", handler: (*cli).handleExit, category: "General"},
		"clear": {help: "clear - Clears the screen", handler: (*cli).handleClear, category: "General"},

		// Databases
		"db init":  {help: "db init <id> [name] <tables_json|file:path|-> - Initializes a database from table schemas and uses it", handler: (*cli).handleDBInit, category: "Databases"},
		"db list":  {help: "db list - Lists initialized databases", handler: (*cli).handleDBList, category: "Databases"},
		"db use":   {help: "db use <id>|exit - Selects the database commands run against", handler: (*cli).handleDBUse, category: "Databases"},
		"db info":  {help: "db info [id] - Shows the table schemas of a database", handler: (*cli).handleDBInfo, category: "Databases"},
		"db close": {help: "db close [id] - Closes a database and its table files", handler: (*cli).handleDBClose, category: "Databases"},
		"tables":   {help: "tables - Lists the tables of the database in use", handler: (*cli).handleTables, category: "Databases"},

		// Backups
		"db backup":  {help: "db backup [id] - Writes a backup of every table of a database", handler: (*cli).handleDBBackup, category: "Backups"},
		"db backups": {help: "db backups [id] - Lists the backups of a database", handler: (*cli).handleDBBackups, category: "Backups"},
		"db restore": {help: "db restore <backup_name> - Replaces the tables of the database in use with a backup", handler: (*cli).handleDBRestore, category: "Backups"},

		// Documents
		"insert":      {help: "insert <table> <doc_json|file:path|-> - Creates a document", handler: (*cli).handleInsert, category: "Documents"},
		"insert many": {help: "insert many <table> <docs_json_array|file:path|-> - Creates documents in one write", handler: (*cli).handleInsertMany, category: "Documents"},
		"update":      {help: "update <table> <id> <patch_json|file:path|-> - Updates a document", handler: (*cli).handleUpdate, category: "Documents"},
		"update many": {help: `update many <table> {"filter":{...},"patch":{...}} - Updates every matching document`, handler: (*cli).handleUpdateMany, category: "Documents"},
		"delete":      {help: "delete <table> <id> - Deletes a document (soft on soft-delete tables)", handler: (*cli).handleDelete, category: "Documents"},
		"delete many": {help: "delete many <table> <filter_json> - Deletes every matching document ({} for all)", handler: (*cli).handleDeleteMany, category: "Documents"},

		// Query
		"find":      {help: `find <table> [{"filter":{...},"sort":{...},"skip":n,"limit":n,"populate":[...]}] - Finds documents`, handler: (*cli).handleFind, category: "Query"},
		"get":       {help: "get <table> <id> - Gets a document by id", handler: (*cli).handleGet, category: "Query"},
		"count":     {help: "count <table> [filter_json] - Counts matching documents", handler: (*cli).handleCount, category: "Query"},
		"exists":    {help: "exists <table> [filter_json] - Reports whether any document matches", handler: (*cli).handleExists, category: "Query"},
		"distinct":  {help: "distinct <table> <path> [filter_json] - Lists the distinct values of a field", handler: (*cli).handleDistinct, category: "Query"},
		"search":    {help: "search <table> [fields=a,b] <term> - Case-insensitive text search", handler: (*cli).handleSearch, category: "Query"},
		"aggregate": {help: "aggregate <table> <pipeline_json|file:path|-> - Runs an aggregation pipeline", handler: (*cli).handleAggregate, category: "Query"},
	}
}

func (c *cli) handleHelp(args string) error {
	fmt.Fprintln(c.out, colorInfo("\ndocstudio Shell Help"))
	fmt.Fprintln(c.out, "---------------------")
	fmt.Fprintln(c.out, "JSON payloads may be inline, read from a file with file:<path>, or typed in $EDITOR with '-'.")
	fmt.Fprintln(c.out, "---------------------")

	categories := make(map[string][]string)
	for cmdName, cmdDetails := range c.commands {
		if cmdDetails.category == "" {
			continue
		}
		categories[cmdDetails.category] = append(categories[cmdDetails.category], cmdName)
	}

	categoryNames := make([]string, 0, len(categories))
	for name := range categories {
		categoryNames = append(categoryNames, name)
	}
	sort.Strings(categoryNames)

	for _, category := range categoryNames {
		fmt.Fprintln(c.out, colorOK(category+":"))
		cmds := categories[category]
		sort.Strings(cmds)
		for _, cmd := range cmds {
			fmt.Fprintln(c.out, "  "+c.commands[cmd].help)
		}
	}
	return nil
}

func (c *cli) handleExit(args string) error {
	return errExit
}

func (c *cli) handleClear(args string) error {
	clearScreen()
	return nil
}

func (c *cli) handleDBInit(args string) error {
	id, rest := nextArg(args)
	if id == "" || rest == "" {
		return errors.New("usage: db init <id> [name] <tables_json|file:path|->")
	}
	name := ""
	if first, after := nextArg(rest); !isPayload(first) {
		name, rest = first, after
	}

	data, err := c.getJSONPayload(rest)
	if err != nil {
		return err
	}
	tables, err := schema.ParseTables(data)
	if err != nil {
		return err
	}
	if err := c.svc.Registry().InitializeDatabase(id, name, tables); err != nil {
		return err
	}
	c.currentDB = id
	fmt.Fprintln(c.out, colorOK("√ Database '", id, "' initialized with ", len(tables), " table(s) and in use."))
	return nil
}

func (c *cli) handleDBList(args string) error {
	reg := c.svc.Registry()
	ids := reg.Databases()
	if len(ids) == 0 {
		fmt.Fprintln(c.out, colorInfo("No databases initialized. Use 'db init'."))
		return nil
	}
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Name", "Tables", "In Use"})
	for _, id := range ids {
		info, err := reg.Info(id)
		if err != nil {
			continue
		}
		inUse := ""
		if id == c.currentDB {
			inUse = "*"
		}
		table.Append([]string{info.ID, info.Name, strings.Join(info.Tables, ", "), inUse})
	}
	table.Render()
	return nil
}

func (c *cli) handleDBUse(args string) error {
	id, _ := nextArg(args)
	if id == "" {
		return errors.New("usage: db use <id>|exit")
	}
	if id == "exit" {
		c.currentDB = ""
		fmt.Fprintln(c.out, colorOK("√ No database in use."))
		return nil
	}
	reg := c.svc.Registry()
	if _, err := reg.Info(id); err != nil {
		if onDisk, _ := reg.DatabaseExists(id); onDisk {
			return fmt.Errorf("database '%s' has files under %s but no schemas in this session. Run 'db init %s <tables>' to open it", id, reg.Root(), id)
		}
		return err
	}
	c.currentDB = id
	fmt.Fprintln(c.out, colorOK("√ Using database '", id, "'."))
	return nil
}

func (c *cli) handleDBInfo(args string) error {
	id, err := c.databaseArg(args)
	if err != nil {
		return err
	}
	gen, err := c.svc.Registry().Generator(id)
	if err != nil {
		return err
	}
	return printJSON(c.out, gen.Tables())
}

func (c *cli) handleDBClose(args string) error {
	id, err := c.databaseArg(args)
	if err != nil {
		return err
	}
	c.svc.Registry().CloseDatabase(id)
	if id == c.currentDB {
		c.currentDB = ""
	}
	fmt.Fprintln(c.out, colorOK("√ Database '", id, "' closed."))
	return nil
}

// databaseArg returns the database named in args, or the one in use.
func (c *cli) databaseArg(args string) (string, error) {
	if id, _ := nextArg(args); id != "" {
		return id, nil
	}
	return c.requireDB()
}

func (c *cli) handleDBBackup(args string) error {
	id, err := c.databaseArg(args)
	if err != nil {
		return err
	}
	name, err := c.svc.Registry().Backup(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK("√ Backup '", name, "' of database '", id, "' written."))
	return nil
}

func (c *cli) handleDBBackups(args string) error {
	id, err := c.databaseArg(args)
	if err != nil {
		return err
	}
	names, err := c.svc.Registry().ListBackups(id)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(c.out, colorInfo("No backups of '", id, "'."))
		return nil
	}
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = name
	}
	printValues(c.out, "Backup", values)
	if at, ok := c.svc.Registry().Backups().LastBackupTime(id); ok {
		fmt.Fprintln(c.out, colorInfo("Last backup this session: ", document.FormatTime(at)))
	}
	return nil
}

func (c *cli) handleDBRestore(args string) error {
	db, err := c.requireDB()
	if err != nil {
		return err
	}
	name, _ := nextArg(args)
	if name == "" {
		return errors.New("usage: db restore <backup_name>")
	}
	if err := c.svc.Registry().Restore(db, name); err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK("√ Database '", db, "' restored from '", name, "'."))
	return nil
}

func (c *cli) handleTables(args string) error {
	db, err := c.requireDB()
	if err != nil {
		return err
	}
	reg := c.svc.Registry()
	gen, err := reg.Generator(db)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Table", "Label", "Fields", "Documents", "Soft Delete", "Timestamps", "File"})
	for _, t := range gen.Tables() {
		docs, file := "?", "?"
		if h, err := reg.Handle(db, t.Name); err == nil {
			docs, file = strconv.Itoa(h.Len()), h.Path()
		}
		table.Append([]string{
			t.Name,
			t.Label,
			strconv.Itoa(len(t.Fields)),
			docs,
			strconv.FormatBool(t.SoftDelete),
			strconv.FormatBool(t.TimestampsEnabled()),
			file,
		})
	}
	table.Render()
	return nil
}

// tableArg takes the table name off args and resolves its schema in the
// database in use.
func (c *cli) tableArg(args string) (string, *schema.Table, string, error) {
	db, err := c.requireDB()
	if err != nil {
		return "", nil, "", err
	}
	name, rest := nextArg(args)
	if name == "" || isPayload(name) {
		return "", nil, "", errors.New("a table name is required")
	}
	gen, err := c.svc.Registry().Generator(db)
	if err != nil {
		return "", nil, "", err
	}
	t, ok := gen.Table(name)
	if !ok {
		return "", nil, "", fmt.Errorf("%w: '%s' in database '%s'", schema.ErrUnknownTable, name, db)
	}
	return db, t, rest, nil
}

// hiddenFields lists the fields that are kept out of result tables.
func hiddenFields(t *schema.Table) map[string]bool {
	hidden := make(map[string]bool)
	for _, f := range t.Fields {
		if f.Hidden {
			hidden[f.Name] = true
		}
	}
	return hidden
}

// populateHints lists the reference fields flagged for population.
func populateHints(t *schema.Table) []string {
	var fields []string
	for _, f := range t.Fields {
		switch {
		case f.Type == schema.TypeReference && f.Populate:
			fields = append(fields, f.Name)
		case f.Type == schema.TypeArray && f.Of != nil && f.Of.Type == schema.TypeReference && f.Of.Populate:
			fields = append(fields, f.Name)
		}
	}
	return fields
}

func (c *cli) handleInsert(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	var doc document.Document
	if err := c.decodePayload(rest, &doc); err != nil {
		return err
	}
	created, err := c.svc.Create(db, t.Name, doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK("√ Document created in '", t.Name, "'."))
	printDocument(c.out, created, hiddenFields(t))
	return nil
}

func (c *cli) handleInsertMany(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	var docs []document.Document
	if err := c.decodePayload(rest, &docs); err != nil {
		return err
	}
	created, err := c.svc.CreateMany(db, t.Name, docs)
	if err != nil {
		return err
	}
	printDocuments(c.out, created, hiddenFields(t))
	return nil
}

func (c *cli) handleUpdate(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	id, rest := nextArg(rest)
	if id == "" || rest == "" {
		return errors.New("usage: update <table> <id> <patch_json|file:path|->")
	}
	var patch document.Document
	if err := c.decodePayload(rest, &patch); err != nil {
		return err
	}
	updated, err := c.svc.Update(db, t.Name, id, patch)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK("√ Document '", id, "' updated."))
	printDocument(c.out, updated, hiddenFields(t))
	return nil
}

type updateManyRequest struct {
	Filter query.Filter      `json:"filter"`
	Patch  document.Document `json:"patch"`
}

func (c *cli) handleUpdateMany(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	var req updateManyRequest
	if err := c.decodePayload(rest, &req); err != nil {
		return err
	}
	if len(req.Patch) == 0 {
		return errors.New(`the payload needs a non-empty "patch" object`)
	}
	n, err := c.svc.UpdateMany(db, t.Name, req.Filter, req.Patch)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK("√ ", n, " document(s) updated."))
	return nil
}

func (c *cli) handleDelete(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	id, _ := nextArg(rest)
	if id == "" {
		return errors.New("usage: delete <table> <id>")
	}
	deleted, err := c.svc.Delete(db, t.Name, id)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Fprintln(c.out, colorErr("No document '", id, "' in '", t.Name, "'."))
		return nil
	}
	fmt.Fprintln(c.out, colorOK("√ Document '", id, "' deleted."))
	return nil
}

func (c *cli) handleDeleteMany(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	if rest == "" {
		return errors.New("usage: delete many <table> <filter_json> (use {} to delete every document)")
	}
	filter, err := c.decodeFilter(rest)
	if err != nil {
		return err
	}
	n, err := c.svc.DeleteMany(db, t.Name, filter)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK("√ ", n, " document(s) deleted."))
	return nil
}

type findRequest struct {
	Filter query.Filter `json:"filter"`
	database.FindOptions
}

func (c *cli) handleFind(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	var req findRequest
	if rest != "" {
		if err := c.decodePayload(rest, &req); err != nil {
			return err
		}
	}
	if len(req.Populate) == 0 {
		req.Populate = populateHints(t)
	}
	docs, err := c.svc.Find(db, t.Name, req.Filter, req.FindOptions)
	if err != nil {
		return err
	}
	printDocuments(c.out, docs, hiddenFields(t))
	return nil
}

func (c *cli) handleGet(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	id, _ := nextArg(rest)
	if id == "" {
		return errors.New("usage: get <table> <id>")
	}
	doc, found, err := c.svc.FindByID(db, t.Name, id)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(c.out, colorErr("No document '", id, "' in '", t.Name, "'."))
		return nil
	}
	printDocument(c.out, doc, hiddenFields(t))
	return nil
}

func (c *cli) handleCount(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	filter, err := c.decodeFilter(rest)
	if err != nil {
		return err
	}
	n, err := c.svc.Count(db, t.Name, filter)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK(n, " document(s)"))
	return nil
}

func (c *cli) handleExists(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	filter, err := c.decodeFilter(rest)
	if err != nil {
		return err
	}
	exists, err := c.svc.Exists(db, t.Name, filter)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, colorOK(exists))
	return nil
}

func (c *cli) handleDistinct(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	path, rest := nextArg(rest)
	if path == "" || isPayload(path) {
		return errors.New("usage: distinct <table> <path> [filter_json]")
	}
	filter, err := c.decodeFilter(rest)
	if err != nil {
		return err
	}
	values, err := c.svc.Distinct(db, t.Name, path, filter)
	if err != nil {
		return err
	}
	printValues(c.out, path, values)
	return nil
}

func (c *cli) handleSearch(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	var fields []string
	if first, after := nextArg(rest); strings.HasPrefix(first, "fields=") {
		for _, f := range strings.Split(strings.TrimPrefix(first, "fields="), ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		rest = after
	}
	if rest == "" {
		return errors.New("usage: search <table> [fields=a,b] <term>")
	}
	docs, err := c.svc.Search(db, t.Name, rest, fields, query.Options{})
	if err != nil {
		return err
	}
	printDocuments(c.out, docs, hiddenFields(t))
	return nil
}

func (c *cli) handleAggregate(args string) error {
	db, t, rest, err := c.tableArg(args)
	if err != nil {
		return err
	}
	data, err := c.getJSONPayload(rest)
	if err != nil {
		return err
	}
	pipeline, err := aggregate.ParseJSON(data)
	if err != nil {
		return err
	}
	docs, err := c.svc.Aggregate(db, t.Name, pipeline)
	if err != nil {
		return err
	}
	printDocuments(c.out, docs, nil)
	return nil
}
