package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"docstudio/internal/document"
	"docstudio/internal/query"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Color definitions for the interface
var (
	colorOK     = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorErr    = color.New(color.FgRed, color.Bold).SprintFunc()
	colorPrompt = color.New(color.FgMagenta).SprintFunc()
	colorInfo   = color.New(color.FgBlue).SprintFunc()
)

// getCommandAndRawArgs parses user input into a command and its arguments.
// multiWordCommands must be sorted from longest to shortest.
func getCommandAndRawArgs(input string, multiWordCommands []string) (string, string) {
	for _, mwCmd := range multiWordCommands {
		if strings.HasPrefix(input, mwCmd+" ") || input == mwCmd {
			return mwCmd, strings.TrimSpace(input[len(mwCmd):])
		}
	}

	parts := strings.SplitN(input, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// nextArg splits the first whitespace-separated word off args.
func nextArg(args string) (string, string) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", ""
	}
	if i := strings.IndexAny(args, " \t"); i >= 0 {
		return args[:i], strings.TrimSpace(args[i:])
	}
	return args, ""
}

// isPayload reports whether an argument starts a JSON payload rather than
// naming something.
func isPayload(arg string) bool {
	return strings.HasPrefix(arg, "{") ||
		strings.HasPrefix(arg, "[") ||
		strings.HasPrefix(arg, "file:") ||
		arg == "-"
}

// clearScreen clears the terminal screen.
func clearScreen() {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "cls")
	default:
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	_ = cmd.Run()
}

func (c *cli) getJSONFromEditor() ([]byte, error) {
	if c.rl == nil {
		return nil, errors.New("editor input needs an interactive terminal")
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		if runtime.GOOS == "windows" {
			editor = "notepad"
		} else {
			editor = "vim"
		}
	}

	tmpfile, err := os.CreateTemp("", "docstudio-*.json")
	if err != nil {
		return nil, fmt.Errorf("could not create temp file: %w", err)
	}
	tmpfile.Close()
	defer os.Remove(tmpfile.Name())

	// Give the terminal to the editor.
	c.rl.Close()

	fmt.Fprintln(c.out, colorInfo("Opening editor (", editor, ") for JSON input. Save and close the file to continue..."))

	cmd := exec.Command(editor, tmpfile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()

	c.rl, err = readline.NewEx(c.rlConfig)
	if err != nil {
		return nil, fmt.Errorf("fatal: could not re-initialize readline: %w", err)
	}

	if runErr != nil {
		return nil, fmt.Errorf("error running editor: %w", runErr)
	}

	return os.ReadFile(tmpfile.Name())
}

// getJSONPayload resolves an inline, file: or editor (-) payload.
func (c *cli) getJSONPayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	switch {
	case payload == "":
		return nil, errors.New("missing JSON payload")
	case payload == "-":
		return c.getJSONFromEditor()
	case strings.HasPrefix(payload, "file:"):
		return os.ReadFile(strings.TrimPrefix(payload, "file:"))
	}
	return []byte(payload), nil
}

func (c *cli) decodePayload(payload string, target any) error {
	data, err := c.getJSONPayload(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

// decodeFilter decodes an optional filter payload; an empty payload matches
// everything.
func (c *cli) decodeFilter(payload string) (query.Filter, error) {
	if strings.TrimSpace(payload) == "" {
		return query.Filter{}, nil
	}
	var filter query.Filter
	if err := c.decodePayload(payload, &filter); err != nil {
		return nil, err
	}
	return filter, nil
}

func formatCell(val any) string {
	switch v := val.(type) {
	case map[string]any, []any:
		jsonVal, _ := json.MarshalIndent(v, "", "  ")
		return string(jsonVal)
	case nil:
		return "(nil)"
	default:
		return document.Stringify(v)
	}
}

// printDocuments renders documents as a table with one column per field,
// leaving out the hidden ones.
func printDocuments(w io.Writer, docs []document.Document, hidden map[string]bool) {
	if len(docs) == 0 {
		fmt.Fprintln(w, colorInfo("(no documents)"))
		return
	}
	headerSet := make(map[string]bool)
	for _, doc := range docs {
		for key := range doc {
			if !hidden[key] {
				headerSet[key] = true
			}
		}
	}
	headers := make([]string, 0, len(headerSet))
	for key := range headerSet {
		headers = append(headers, key)
	}
	sort.Strings(headers)

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	for _, doc := range docs {
		row := make([]string, len(headers))
		for i, header := range headers {
			if val, ok := doc[header]; ok {
				row[i] = formatCell(val)
			} else {
				row[i] = "(n/a)"
			}
		}
		table.Append(row)
	}
	table.Render()
	fmt.Fprintln(w, colorOK(len(docs), " document(s)"))
}

// printDocument renders a single document as a key-value table.
func printDocument(w io.Writer, doc document.Document, hidden map[string]bool) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		if !hidden[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)
	for _, k := range keys {
		table.Append([]string{k, formatCell(doc[k])})
	}
	table.Render()
}

// printValues renders plain values as a single-column table.
func printValues(w io.Writer, header string, values []any) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{header})
	for _, v := range values {
		table.Append([]string{formatCell(v)})
	}
	table.Render()
}

// printJSON pretty-prints results that are not documents.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
