package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"docstudio/internal/config"
	"docstudio/internal/database"
	"docstudio/internal/persistence"
	"docstudio/internal/store"
)

func main() {
	envFile := flag.String("env", config.DefaultEnvFile, "Environment file to load")
	dataDir := flag.String("data", "", "Directory databases are stored in (overrides DOCSTUDIO_DATA_DIR)")
	inMemory := flag.Bool("memory", false, "Keep every table in memory and write nothing to disk")
	script := flag.String("script", "", "Run the commands in this file, one per line, then exit")
	flag.Parse()

	cfg := config.LoadConfig(*envFile)
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *inMemory {
		cfg.InMemory = true
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	var fsys persistence.FileSystem = persistence.NewDiskFS()
	if cfg.InMemory {
		fsys = persistence.NewMemFS()
		slog.Info("Running in memory, nothing is written to disk")
	}

	reg := database.NewRegistry(fsys, cfg.DataDir, store.Options{Pretty: cfg.PrettyJSON})
	defer reg.Close()
	reg.Backups().SetRetention(cfg.BackupKeep)

	c := newCLI(database.NewService(reg), cfg.HistoryFile, os.Stdout)

	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			fmt.Fprintln(os.Stderr, colorErr("Could not open script: ", err))
			os.Exit(1)
		}
		defer f.Close()
		if err := c.runScript(f); err != nil {
			fmt.Fprintln(os.Stderr, colorErr(err))
			reg.Close()
			os.Exit(1)
		}
		return
	}

	if err := c.run(); err != nil {
		fmt.Fprintln(os.Stderr, colorErr("Shell error: ", err))
		reg.Close()
		os.Exit(1)
	}
}

// runScript executes commands line by line and stops at the first failure.
// Blank lines and lines starting with # are skipped.
func (c *cli) runScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fmt.Fprintln(c.out, colorPrompt(c.prompt()), line)
		if err := c.execute(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}
