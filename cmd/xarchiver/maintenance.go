package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"xarchiver/pkg/dedupe"
	"xarchiver/pkg/index"
	"xarchiver/pkg/ui"
	"xarchiver/pkg/urllist"
)

var (
	indexInput   string
	dedupeDelete bool
)

// indexCmd regenerates index.html
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Regenerate index.html over the output directory",
	Long: `Regenerate index.html from the meta.json of every archived folder.

Entries are ordered by post date, newest first. With --input the order of
the URL list is used instead and unlisted folders follow by date.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

// dedupeCmd finds folders archived more than once
var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and remove duplicate archive folders",
	Long: `Find output folders whose meta.json name the same URL. The most recently
downloaded copy is kept. Without --delete only a report is printed.`,
	Args: cobra.NoArgs,
	RunE: runDedupe,
}

// urlsCmd groups URL list helpers
var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Maintain URL list files",
}

var urlsCleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Remove duplicate URLs from a list in place",
	Long: `Remove repeated URLs from a list file, keeping the first occurrence.
Comments and blank lines are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: runURLsClean,
}

func init() {
	rootCmd.AddCommand(indexCmd, dedupeCmd, urlsCmd)
	urlsCmd.AddCommand(urlsCleanCmd)

	indexCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	indexCmd.Flags().StringVarP(&indexInput, "input", "i", "", "URL list whose order the index follows")
	dedupeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	dedupeCmd.Flags().BoolVar(&dedupeDelete, "delete", false, "delete the older copies")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(outputFlags())
	if err != nil {
		return err
	}

	var order []string
	if indexInput != "" {
		if order, err = urllist.ReadFile(indexInput); err != nil {
			return err
		}
	}

	n, err := index.Build(cfg.Output.BaseDirectory, order)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Indexed %d posts in %s", n, filepath.Join(cfg.Output.BaseDirectory, index.FileName)))
	return nil
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(outputFlags())
	if err != nil {
		return err
	}

	rep, err := dedupe.Run(cfg.Output.BaseDirectory, dedupeDelete, log)
	if err != nil {
		return err
	}

	if len(rep.Groups) == 0 {
		ui.PrintSuccess("No duplicate folders found")
		return nil
	}

	for _, g := range rep.Groups {
		ui.PrintHighlight(g.URL)
		fmt.Printf("  keep   %s\n", g.Keep().Name)
		for _, c := range g.Extra() {
			fmt.Printf("  extra  %s (%.1f MB)\n", c.Name, dedupe.MB(c.Size))
		}
	}
	fmt.Println()

	if !dedupeDelete {
		ui.PrintInfo("Reclaimable", fmt.Sprintf("%.1f MB", dedupe.MB(rep.Reclaimable)))
		fmt.Println("Run again with --delete to remove the extra copies")
		return nil
	}
	ui.PrintSuccess(fmt.Sprintf("Deleted %d folders, freed %.1f MB", rep.Deleted, dedupe.MB(rep.Freed)))
	return nil
}

func runURLsClean(cmd *cobra.Command, args []string) error {
	removed, err := urllist.Clean(args[0])
	if err != nil {
		return err
	}
	if removed == 0 {
		ui.PrintSuccess("No duplicates in " + args[0])
		return nil
	}
	ui.PrintSuccess(fmt.Sprintf("Removed %d duplicate URLs from %s", removed, args[0]))
	return nil
}
