package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/musher-dev/ember/internal/output"
	"github.com/musher-dev/ember/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot    string `json:"config_root"`
	StateRoot     string `json:"state_root"`
	CacheRoot     string `json:"cache_root"`
	ConfigFile    string `json:"config_file"`
	StartupFile   string `json:"startup_file"`
	StartupExists bool   `json:"startup_exists"`
	LogFile       string `json:"log_file"`
	HistoryDir    string `json:"history_dir"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where Ember stores files",
		Long: `Display all file and directory paths used by Ember.

The startup script runs before the first prompt of every session when it
exists; files that have not been created yet are marked.`,
		Example: `  ember paths
  ember paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo()

			if out.JSON {
				return out.PrintJSON(info)
			}

			renderPaths(out, info)

			return nil
		},
	}
}

func renderPaths(out *output.Writer, info PathsInfo) {
	rows := []struct {
		label, value string
		file         bool
	}{
		{label: "Config root", value: info.ConfigRoot},
		{label: "State root", value: info.StateRoot},
		{label: "Cache root", value: info.CacheRoot},
		{},
		{label: "Config file", value: info.ConfigFile, file: true},
		{label: "Startup file", value: info.StartupFile, file: true},
		{label: "Log file", value: info.LogFile, file: true},
		{label: "History dir", value: info.HistoryDir},
	}

	for _, row := range rows {
		if row.label == "" {
			out.Println()
			continue
		}

		suffix := ""
		if row.file && !exists(row.value) {
			suffix = " (not created)"
		}

		out.Print("%-15s %s%s\n", row.label+":", row.value, suffix)
	}
}

func resolvePathsInfo() PathsInfo {
	info := PathsInfo{
		ConfigRoot:  resolveOrError(paths.ConfigRoot),
		StateRoot:   resolveOrError(paths.StateRoot),
		CacheRoot:   resolveOrError(paths.CacheRoot),
		ConfigFile:  resolveOrError(paths.ConfigFile),
		StartupFile: resolveOrError(paths.StartupFile),
		LogFile:     resolveOrError(paths.DefaultLogFile),
		HistoryDir:  resolveOrError(paths.HistoryDir),
	}

	info.StartupExists = exists(info.StartupFile)

	return info
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
