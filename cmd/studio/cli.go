package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"docstudio/internal/database"

	"github.com/chzyer/readline"
)

// errExit ends the main loop.
var errExit = errors.New("exit requested")

type command struct {
	help     string
	handler  func(c *cli, args string) error
	category string
}

type cli struct {
	svc               *database.Service
	rl                *readline.Instance
	rlConfig          *readline.Config
	historyFile       string
	out               io.Writer
	currentDB         string
	commands          map[string]command
	multiWordCommands []string
}

func newCLI(svc *database.Service, historyFile string, out io.Writer) *cli {
	c := &cli{
		svc:         svc,
		historyFile: historyFile,
		out:         out,
	}
	c.commands = c.getCommands()

	var mwCmds []string
	for cmd := range c.commands {
		if strings.Contains(cmd, " ") {
			mwCmds = append(mwCmds, cmd)
		}
	}
	// Longest first so "insert many" wins over "insert".
	sort.Slice(mwCmds, func(i, j int) bool {
		if len(mwCmds[i]) != len(mwCmds[j]) {
			return len(mwCmds[i]) > len(mwCmds[j])
		}
		return mwCmds[i] < mwCmds[j]
	})
	c.multiWordCommands = mwCmds

	return c
}

func (c *cli) run() error {
	c.rlConfig = &readline.Config{
		Prompt:          "> ",
		HistoryFile:     c.historyFile,
		AutoComplete:    c.getCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}

	var err error
	c.rl, err = readline.NewEx(c.rlConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer func() { c.rl.Close() }()

	fmt.Fprintln(c.out, colorInfo("Type 'help' for commands. Start with 'db init' or 'db use'."))
	return c.mainLoop()
}

func (c *cli) prompt() string {
	if c.currentDB != "" {
		return "docstudio[" + c.currentDB + "]> "
	}
	return "docstudio> "
}

func (c *cli) mainLoop() error {
	for {
		c.rl.SetPrompt(colorPrompt(c.prompt()))

		input, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(input) == 0 {
					break
				}
				continue
			} else if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		if err := c.execute(input); err != nil {
			if errors.Is(err, errExit) {
				break
			}
			fmt.Fprintln(c.out, colorErr("Command failed: ", err))
		}
	}
	fmt.Fprintln(c.out, colorInfo("\nExiting docstudio. Goodbye!"))
	return nil
}

// execute runs one input line. Empty lines do nothing.
func (c *cli) execute(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	cmd, args := getCommandAndRawArgs(input, c.multiWordCommands)
	handler, found := c.commands[cmd]
	if !found {
		return fmt.Errorf("unknown command '%s'. Type 'help' for commands", cmd)
	}

	startTime := time.Now()
	if err := handler.handler(c, args); err != nil {
		return err
	}
	if cmd != "clear" && cmd != "help" {
		fmt.Fprintln(c.out, colorInfo("Request time: ", time.Since(startTime).Round(time.Microsecond)))
	}
	return nil
}

// requireDB returns the database in use.
func (c *cli) requireDB() (string, error) {
	if c.currentDB == "" {
		return "", errors.New("no database in use. Use 'db use <id>' or 'db init'")
	}
	return c.currentDB, nil
}
