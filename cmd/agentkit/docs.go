package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/agentkit/pkg/docs"
	"github.com/jingkaihe/agentkit/pkg/logger"
)

func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Cache documentation sites as Markdown",
		Long: `Crawl the documentation sources listed under docs.sources in the config file
and store every page as Markdown in the docs cache directory, ready to be
read by the assistant.

Example config.yaml:

  docs:
    sources:
      - name: cobra
        urls: [https://cobra.dev/]
        include: ["/docs/**"]
        max_pages: 100`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newDocsCrawlCmd(a),
		newDocsListCmd(a),
		newDocsPagesCmd(a),
	)
	return cmd
}

// selectSources returns the configured sources named in names, all of them
// when names is empty
func (a *app) selectSources(names []string) ([]docs.Source, error) {
	if len(a.cfg.Docs.Sources) == 0 {
		return nil, errors.New("no documentation sources configured, add them under docs.sources")
	}
	if len(names) == 0 {
		return a.cfg.Docs.Sources, nil
	}
	sources := make([]docs.Source, 0, len(names))
	for _, name := range names {
		src, err := docs.Find(a.cfg.Docs.Sources, name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func (a *app) openDocsStore(ctx context.Context) (*docs.Store, error) {
	return docs.OpenStore(ctx, a.cfg.DocsDBPath())
}

// crawlDocs crawls every source in turn. A failing source does not stop the
// others; the failures are returned together.
func (a *app) crawlDocs(ctx context.Context, sources []docs.Source, report func(*docs.CrawlResult)) error {
	store, err := a.openDocsStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	crawler := docs.NewCrawler(a.cfg.Docs.CacheDir, store,
		docs.WithDelay(a.cfg.Docs.Delay),
		docs.WithUserAgent(a.cfg.Docs.UserAgent),
	)

	var result *multierror.Error
	for _, src := range sources {
		res, err := crawler.Crawl(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.G(ctx).WithError(err).WithField("source", src.Name).Error("crawl failed")
			result = multierror.Append(result, errors.Wrapf(err, "source %s", src.Name))
			continue
		}
		if report != nil {
			report(res)
		}
	}
	return result.ErrorOrNil()
}

func newDocsCrawlCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [source...]",
		Short: "Fetch documentation sources into the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := a.selectSources(args)
			if err != nil {
				return err
			}
			return a.crawlDocs(cmd.Context(), sources, func(r *docs.CrawlResult) {
				a.out.Success("%s: %d fetched, %d updated, %d unchanged, %d skipped, %d failed, %d removed in %s",
					r.Source, r.Fetched, r.Updated, r.Unchanged, r.Skipped, r.Failed, r.Removed, r.Duration.Round(time.Millisecond))
				for _, e := range r.Errors {
					a.out.Warning("%s", e)
				}
			})
		},
	}
	return cmd
}

func newDocsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documentation sources and their cached pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openDocsStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.Sources(ctx)
			if err != nil {
				return err
			}
			crawled := make(map[string]docs.SourceSummary, len(summaries))
			for _, s := range summaries {
				crawled[s.Source] = s
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), summaries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tPAGES\tLAST FETCHED\tDIRECTORY")
			fmt.Fprintln(tw, "------\t-----\t------------\t---------")
			seen := map[string]bool{}
			for _, src := range a.cfg.Docs.Sources {
				seen[src.Name] = true
				s, ok := crawled[src.Name]
				last := "never"
				if ok {
					last = s.LastFetched.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", src.Name, s.Pages, last, sourceDir(a, src.Name))
			}
			for _, s := range summaries {
				if seen[s.Source] {
					continue
				}
				fmt.Fprintf(tw, "%s (unconfigured)\t%d\t%s\t%s\n", s.Source, s.Pages,
					s.LastFetched.Local().Format("2006-01-02 15:04"), sourceDir(a, s.Source))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func sourceDir(a *app, name string) string {
	return filepath.Join(a.cfg.Docs.CacheDir, name)
}

func newDocsPagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages <source>",
		Short: "List the cached pages of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openDocsStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pages, err := store.List(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), pages)
			}
			if len(pages) == 0 {
				a.out.Info("No pages cached for %s", args[0])
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTITLE\tURL")
			fmt.Fprintln(tw, "----\t-----\t---")
			for _, p := range pages {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Path, truncate(p.Title, maxDescriptionWidth), p.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}
