package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"SmartIMS/app/config"
	"SmartIMS/app/database"
	"SmartIMS/app/llm"
	"SmartIMS/app/sqlcheck"
	"SmartIMS/app/websocket"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	envFileFlag  = "env-file"
	logLevelFlag = "log-level"
)

// logRetentionDays is how long daily log files are kept by serve
const logRetentionDays = 30

func commonFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		envFileFlag: &cobraflags.StringFlag{
			Name:  envFileFlag,
			Value: ".env",
			Usage: "Env file loaded before the process environment",
		},
		logLevelFlag: &cobraflags.StringFlag{
			Name:  logLevelFlag,
			Value: "",
			Usage: "Overrides LOG_LEVEL (debug, info, warn, error)",
		},
	}
}

func loadConfig(flags map[string]cobraflags.Flag) (*config.AppConfig, error) {
	cfg, err := config.LoadFile(flags[envFileFlag].GetString())
	if err != nil {
		return nil, err
	}
	if level := flags[logLevelFlag].GetString(); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	root := &cobra.Command{
		Use:   "smartims",
		Short: "Smart Inventory Management System",
		Long: `Inventory REST API with natural-language queries translated to SQL by a local
Ollama model and executed through an MCP tool layer.

Without a subcommand the API server is started.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(newMCPServerCommand())
	root.AddCommand(newSeedCommand())
	root.AddCommand(newAskCommand())
	return root
}

func newServeCommand() *cobra.Command {
	flags := commonFlags()
	var seed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, websocket stream and MCP transports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, seed)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&seed, "seed", false, "Seed sample data when the database is empty")
	return cmd
}

func runServe(parent context.Context, cfg *config.AppConfig, seed bool) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, os.Stdout)
	defer func() {
		if r := recover(); r != nil {
			app.LoggerService.LogPanic(r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	app.LoggerService.LogInfo("Application starting", "Smart Inventory Management System")

	if err := app.ConnectDatabase(); err != nil {
		app.LoggerService.LogError("Database connection failed", err)
		app.LoggerService.Close()
		return err
	}
	if seed {
		summary, err := database.Seed(app.DB, false)
		if err != nil {
			app.LoggerService.LogError("Seeding failed", err)
		} else if !summary.Skipped {
			app.LoggerService.LogInfo("Sample data seeded", fmt.Sprintf("%d products, %d inventory rows", summary.Products, summary.Inventory))
		}
	}

	app.WSServer = websocket.NewServer(app.LoggerService.Logger())
	if err := app.InitializeServices(ctx); err != nil {
		app.LoggerService.LogError("Service initialization failed", err)
		app.Shutdown(context.Background())
		return err
	}
	app.InitializeAPI()

	if removed, err := app.LoggerService.CleanOldLogs(logRetentionDays); err != nil {
		app.LoggerService.LogWarning("Could not clean old logs", err.Error())
	} else if removed > 0 {
		app.LoggerService.LogInfo("Old log files removed", fmt.Sprintf("%d files", removed))
	}

	if err := app.MCPService.Start(); err != nil {
		app.LoggerService.LogWarning("MCP HTTP transport start error", err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer app.LoggerService.RecoverPanic()
		app.WSServer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		defer app.LoggerService.RecoverPanic()
		return app.StockMonitor.Run(gctx)
	})
	if cfg.Server.MDNSEnabled {
		if err := app.WSServer.StartMDNS(gctx, cfg.Server.Port); err != nil {
			app.LoggerService.LogWarning("mDNS announcement failed", err.Error())
		}
	}
	g.Go(func() error {
		app.LoggerService.LogInfo("REST API listening", "Address: "+cfg.Server.Addr())
		return listen(gctx, app.APIServer.NewHTTPServer(cfg.Server.Addr()))
	})

	err = g.Wait()
	if err != nil {
		app.LoggerService.LogError("Server stopped with error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
	return err
}

func newMCPServerCommand() *cobra.Command {
	flags := commonFlags()

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve MCP tools as newline-delimited JSON-RPC on stdin/stdout",
		Long: `Serve the MCP tools over stdio. This is the child process started by the
stdio transport (MCP_TRANSPORT=stdio). Logs go to stderr; stdout carries only
JSON-RPC responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runMCPServer(cmd.Context(), cfg, os.Stdin, os.Stdout)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func runMCPServer(ctx context.Context, cfg *config.AppConfig, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Tools run here; a stdio child must never start another child.
	cfg.MCP.Transport = "inprocess"
	cfg.MCP.HTTPEnabled = false

	app := NewApp(cfg, os.Stderr)
	defer app.Shutdown(context.Background())

	if err := app.ConnectDatabase(); err != nil {
		app.LoggerService.LogError("Database connection failed", err)
		return err
	}
	if err := app.InitializeServices(ctx); err != nil {
		return err
	}

	app.LoggerService.LogInfo("MCP stdio server ready")
	return app.MCPService.Server().ServeStdio(ctx, in, out)
}

func newSeedCommand() *cobra.Command {
	flags := commonFlags()
	var reset bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with sample inventory data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			app := NewApp(cfg, os.Stderr)
			defer app.Shutdown(context.Background())
			if err := app.ConnectDatabase(); err != nil {
				return err
			}

			summary, err := database.Seed(app.DB, reset)
			if err != nil {
				return err
			}
			if summary.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "Database already contains products; use --reset to reseed")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d categories, %d warehouses, %d suppliers, %d products, %d inventory rows\n",
				summary.Categories, summary.Warehouses, summary.Suppliers, summary.Products, summary.Inventory)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete existing rows before seeding")
	return cmd
}

func newAskCommand() *cobra.Command {
	flags := commonFlags()
	var execute bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Translate a question to SQL and optionally run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			app := NewApp(cfg, os.Stderr)
			defer app.Shutdown(context.Background())
			if err := app.ConnectDatabase(); err != nil {
				return err
			}
			if err := app.InitializeServices(ctx); err != nil {
				return err
			}
			return ask(ctx, app, strings.Join(args, " "), execute, cmd.OutOrStdout())
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&execute, "execute", false, "Run the generated SQL and print the rows")
	return cmd
}

// ask prints the SQL for question and, with execute, the rows it returns. The
// same guard as POST /api/query applies.
func ask(ctx context.Context, app *App, question string, execute bool, out io.Writer) error {
	client := app.MCPService.Client()

	resp := client.CallTool(ctx, "text_to_sql", map[string]interface{}{"text": question})
	if !resp.Success {
		return fmt.Errorf("text_to_sql: %s", resp.Error)
	}
	var sql string
	if err := resp.Decode(&sql); err != nil {
		return err
	}
	fmt.Fprintln(out, sql)

	if llm.IsErrorSentinel(sql) {
		return fmt.Errorf("translation failed")
	}
	if !execute {
		return nil
	}
	if err := sqlcheck.Check(sql, app.Config.Query.AllowWrites); err != nil {
		return fmt.Errorf("generated SQL rejected: %w", err)
	}

	resp = client.CallTool(ctx, "execute_sql_query", map[string]interface{}{"sql": sql})
	if !resp.Success {
		return fmt.Errorf("execute_sql_query: %s", resp.Error)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp.Result)
}
