package main

import (
	"strings"

	"github.com/chzyer/readline"
)

func (c *cli) getCompleter() readline.AutoCompleter {
	tableItem := func(cmd string) readline.PrefixCompleterInterface {
		return readline.PcItem(cmd, readline.PcItemDynamic(c.fetchTableNames))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("db",
			readline.PcItem("init"),
			readline.PcItem("list"),
			readline.PcItem("use",
				readline.PcItem("exit"),
				readline.PcItemDynamic(c.fetchDatabaseNames),
			),
			readline.PcItem("info", readline.PcItemDynamic(c.fetchDatabaseNames)),
			readline.PcItem("close", readline.PcItemDynamic(c.fetchDatabaseNames)),
			readline.PcItem("backup", readline.PcItemDynamic(c.fetchDatabaseNames)),
			readline.PcItem("backups", readline.PcItemDynamic(c.fetchDatabaseNames)),
			readline.PcItem("restore", readline.PcItemDynamic(c.fetchBackupNames)),
		),
		readline.PcItem("tables"),
		readline.PcItem("insert",
			readline.PcItem("many", readline.PcItemDynamic(c.fetchTableNames)),
			readline.PcItemDynamic(c.fetchTableNames),
		),
		readline.PcItem("update",
			readline.PcItem("many", readline.PcItemDynamic(c.fetchTableNames)),
			readline.PcItemDynamic(c.fetchTableNames),
		),
		readline.PcItem("delete",
			readline.PcItem("many", readline.PcItemDynamic(c.fetchTableNames)),
			readline.PcItemDynamic(c.fetchTableNames),
		),
		tableItem("find"),
		tableItem("get"),
		tableItem("count"),
		tableItem("exists"),
		tableItem("distinct"),
		tableItem("search"),
		tableItem("aggregate"),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

func (c *cli) fetchDatabaseNames(line string) []string {
	return withPrefix(c.svc.Registry().Databases(), lastWord(line))
}

func (c *cli) fetchTableNames(line string) []string {
	if c.currentDB == "" {
		return nil
	}
	gen, err := c.svc.Registry().Generator(c.currentDB)
	if err != nil {
		return nil
	}
	var names []string
	for _, t := range gen.Tables() {
		names = append(names, t.Name)
	}
	return withPrefix(names, lastWord(line))
}

func (c *cli) fetchBackupNames(line string) []string {
	if c.currentDB == "" {
		return nil
	}
	names, err := c.svc.Registry().ListBackups(c.currentDB)
	if err != nil {
		return nil
	}
	return withPrefix(names, lastWord(line))
}

// lastWord returns the word being typed, or "" right after a space.
func lastWord(line string) string {
	if line == "" || strings.HasSuffix(line, " ") {
		return ""
	}
	parts := strings.Fields(line)
	return parts[len(parts)-1]
}

func withPrefix(candidates []string, prefix string) []string {
	var suggestions []string
	for _, candidate := range candidates {
		if strings.HasPrefix(candidate, prefix) {
			suggestions = append(suggestions, candidate)
		}
	}
	return suggestions
}
