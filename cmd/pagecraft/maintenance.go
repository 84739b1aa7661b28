package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagecraft/internal/config"
	"github.com/spf13/cobra"
)

func newBackfillCmd(load func() config.AppConfig) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "translations:backfill",
		Short: "Machine-translate missing strings once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			languages := []string{strings.TrimSpace(language)}
			if languages[0] == "" {
				languages = languages[:0]
				for _, lang := range a.Config.Languages {
					if lang != a.Translations.DefaultLanguage() {
						languages = append(languages, lang)
					}
				}
			}
			if len(languages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no target languages configured")
				return nil
			}

			var errs []error
			for _, lang := range languages {
				result, err := a.Translations.Backfill(cmd.Context(), lang)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: missing=%d translated=%d skipped=%d failed=%d\n",
					lang, result.Missing, result.Translated, result.Skipped, result.Failed)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", lang, err))
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "target language; empty means every configured language")
	return cmd
}

func newSitemapCmd(load func() config.AppConfig) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "sitemap:generate",
		Short: "Write sitemap.xml to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			var buf bytes.Buffer
			if err := a.Sitemap.Render(&buf); err != nil {
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sitemap written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "sitemap.xml", "output file")
	return cmd
}

func newFixTreeCmd(load func() config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "categories:fix-tree",
		Short: "Rebuild category nested-set bounds from parent links",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Categories.Rebuild(); err != nil {
				return err
			}
			nodes, err := a.Categories.List()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "category tree rebuilt, %d nodes\n", len(nodes))
			return nil
		},
	}
}
