// NewsBrief fetches the latest news on a topic, reads the articles and
// writes a short AI summary.
//
// Usage:
//
//	newsbrief run          # one briefing, printed to the terminal
//	newsbrief serve        # dashboard and JSON API
//	newsbrief history      # archived briefings
//	newsbrief token        # issue an API token
//	newsbrief config       # print the effective configuration
//	newsbrief version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RobinCoderZhao/newsbrief/internal/api"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief"
	nbconfig "github.com/RobinCoderZhao/newsbrief/internal/newsbrief/config"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/publisher"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/runner"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/scheduler"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/store"
)

var version = "dev"

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "newsbrief",
		Short:         "AI news briefings from NewsAPI headlines",
		Long:          "NewsBrief searches NewsAPI for a topic, reads the full articles, and writes a polished summary with an LLM.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $NEWSBRIEF_CONFIG or newsbrief.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs the default logger. The CLI logs text to stderr,
// the server logs JSON.
func setupLogging(asJSON bool) {
	level := slog.LevelWarn
	if asJSON {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if asJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runCmd() *cobra.Command {
	var (
		topic, query, lang, sortBy string
		days, limit                int
		outputJSON, plain          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, read and summarize the latest news once",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)

			req := newsbrief.Request{
				Topic: topic,
				Query: sources.Query{
					Expression: query,
					Days:       days,
					Language:   lang,
					SortBy:     sortBy,
					PageSize:   limit,
				},
			}
			if req.Query.Expression == "" {
				req.Query.Expression = sources.TopicExpression(topic)
			}
			if err := req.Query.Validate(); err != nil {
				return err
			}
			return runOnce(cmd.Context(), req, outputJSON, plain)
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic named in the summary prompt")
	cmd.Flags().StringVarP(&query, "query", "q", "", "NewsAPI search expression (default: quoted topic)")
	cmd.Flags().IntVar(&days, "days", 0, "look back this many days")
	cmd.Flags().StringVar(&lang, "lang", "", "article language")
	cmd.Flags().StringVar(&sortBy, "sort", "", "relevancy, popularity or publishedAt")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of headlines")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "print the briefing as JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "print plain Markdown without terminal styling")
	return cmd
}

func runOnce(ctx context.Context, req newsbrief.Request, outputJSON, plain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !outputJSON {
		fmt.Fprintln(os.Stderr, "🔍 Fetching news and generating the summary...")
	}
	b, err := a.runner.Run(ctx, req)
	if err != nil {
		return errors.New(runner.Describe(err))
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	return printMarkdown(publisher.FormatMarkdown(b), plain)
}

func printMarkdown(md string, plain bool) error {
	if plain {
		fmt.Print(md)
		return nil
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	fmt.Print(out)
	return nil
}

func serveCmd() *cobra.Command {
	var addr string
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(true)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("refresh") {
				cfg.Server.Refresh = refresh
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "regenerate the briefing on this interval (0 disables)")
	return cmd
}

func serve(cfg *nbconfig.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var history api.History
	if a.store != nil {
		history = a.store
	}
	server := api.NewServer(a.runner, history, cfg.Server.JWTSecret)
	if cfg.Server.JWTSecret == "" {
		slog.Warn("server.jwt_secret is empty, refresh endpoints are unauthenticated")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.Refresh > 0 {
		sched := scheduler.NewScheduler()
		sched.Add(scheduler.Job{
			Name: "briefing",
			Fn: func(ctx context.Context) error {
				_, err := a.runner.TryRun(ctx, newsbrief.Request{})
				if errors.Is(err, runner.ErrRunInProgress) {
					return nil
				}
				return err
			},
		})
		go sched.Start(ctx, cfg.Server.Refresh, true)
		defer sched.Stop()
	}

	go func() {
		slog.Info("starting newsbrief server", "addr", cfg.Server.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func historyCmd() *cobra.Command {
	var limit int
	var plain bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived briefings",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.Storage.Path, 0)
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No briefings yet. Run `newsbrief run` to create one.")
				return nil
			}
			return printMarkdown(historyTable(list), plain)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of briefings")
	cmd.Flags().BoolVar(&plain, "plain", false, "print plain Markdown without terminal styling")
	return cmd
}

func historyTable(list []store.Summary) string {
	var sb strings.Builder
	sb.WriteString("| # | Finished | Topic | Status | Headlines | Read | Tokens |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, s := range list {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %d | %d | %d |\n",
			s.ID, s.FinishedAt.Local().Format("2006-01-02 15:04"), s.Topic, s.Status, s.Headlines, s.Extracted, s.TokensUsed))
	}
	return sb.String()
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the refresh endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Server.TokenTTL
			}
			token, err := api.IssueToken(cfg.Server.JWTSecret, subject, ttl)
			if err != nil {
				return fmt.Errorf("%w (set NEWSBRIEF_JWT_SECRET)", err)
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "Dashboard login: http://localhost%s/login?token=%s\n", cfg.Server.Addr, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "\n⚠️  %v\n", err)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("newsbrief %s\n", version)
		},
	}
}
