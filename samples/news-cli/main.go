package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	newsagg "github.com/airtribe-projects/news-aggregator-api-souzaavi"
)

var (
	flagConfig  string
	flagVerbose bool
	flagJSON    bool
	flagOutput  string
	flagList    bool
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "news-cli",
	Short: "Fetch and cache news articles from the command line",
	Long: `news-cli queries the configured news providers and caches their articles.

Memory cache only lives as long as the command, so 'live' and 'rss' are
mostly useful with the persistent cache (cacheBackend: persistent).`,
	SilenceUsage: true,
}

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search news and cache the results",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetch(cmd.Context(), keywordArg(args), newsagg.ModeSearch)
	},
}

var liveCmd = &cobra.Command{
	Use:   "live [keyword]",
	Short: "Show the current live feed batch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetch(cmd.Context(), keywordArg(args), newsagg.ModeLiveFeed)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached articles older than the TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, client *newsagg.Client) error {
			deleted, err := client.PurgeExpired(ctx)
			if err != nil {
				return err
			}

			if deleted == 0 {
				fmt.Println("Nothing to purge.")
			} else {
				fmt.Printf("Purged %d article(s).\n", deleted)
			}
			return nil
		})
	},
}

var rssCmd = &cobra.Command{
	Use:   "rss <keyword>",
	Short: "Publish the cached articles of a keyword as RSS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := args[0]

		return withClient(cmd.Context(), func(ctx context.Context, client *newsagg.Client) error {
			bytes, err := client.PublishXML(ctx, keyword, "News: "+keyword, "https://localhost/news/rss/"+keyword, "Cached news articles")
			if err != nil {
				return err
			}

			if flagList {
				feeds, err := newsagg.ParseXML(bytes)
				if err != nil {
					return err
				}
				for _, item := range feeds.Channel.Items {
					fmt.Printf("%s\t%s\t%s\t%s\n", item.ID, item.PublishedAt().Format(time.DateTime), item.Title, item.Link)
				}
				return nil
			}

			if flagOutput != "" {
				return os.WriteFile(flagOutput, bytes, 0o644)
			}
			_, err = os.Stdout.Write(bytes)
			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default: "+newsagg.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "print verbose messages")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "timeout of the whole command")

	searchCmd.Flags().BoolVar(&flagJSON, "json", false, "print articles as JSON")
	liveCmd.Flags().BoolVar(&flagJSON, "json", false, "print articles as JSON")
	rssCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write RSS to given file instead of stdout")
	rssCmd.Flags().BoolVar(&flagList, "list", false, "list published items instead of printing XML")

	rootCmd.AddCommand(searchCmd, liveCmd, purgeCmd, rssCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func keywordArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return newsagg.DefaultKeyword
}

// fetch and print news
func fetch(ctx context.Context, keyword string, mode newsagg.Mode) error {
	return withClient(ctx, func(ctx context.Context, client *newsagg.Client) error {
		articles, err := client.FetchNews(ctx, keyword, mode)
		if err != nil {
			return err
		}

		if flagJSON {
			fmt.Println(newsagg.Prettify(articles))
			return nil
		}

		for _, article := range articles {
			fmt.Printf("[%s] %s (%s)\n  %s\n  id: %s\n",
				article.PublishedAt.Format(time.DateTime),
				article.Title,
				article.Source,
				article.URL,
				article.ID,
			)
		}
		fmt.Printf("%d article(s) for '%s' (%s)\n", len(articles), keyword, mode)
		return nil
	})
}

// run `fn` with a client built from config
func withClient(ctx context.Context, fn func(context.Context, *newsagg.Client) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagVerbose {
		cfg.Verbose = true
	}

	client, err := newsagg.NewClientFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	return fn(ctx, client)
}

// load config from given file (or the default one, if it exists) and environment variables
func loadConfig() (cfg *newsagg.Config, err error) {
	path := flagConfig
	if path == "" {
		if _, err := os.Stat(newsagg.DefaultConfigPath()); err == nil {
			path = newsagg.DefaultConfigPath()
		}
	}

	if path != "" {
		if cfg, err = newsagg.LoadConfig(path); err != nil {
			return nil, err
		}
	} else {
		cfg = newsagg.DefaultConfig()
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}
