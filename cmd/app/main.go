package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/almanac/internal"
	pkgconfig "github.com/starford/almanac/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func exportMemos(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	var out io.Writer = os.Stdout
	if path := cmd.String("out"); path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return internal.ExportMemos(ctx, int(cmd.Int("year")), out, opts...)
}

func importMemos(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	var in io.Reader = os.Stdin
	if path := cmd.String("in"); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	return internal.ImportMemos(ctx, int(cmd.Int("year")), in, opts...)
}

func yearFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "year",
		Aliases:     []string{"y"},
		Usage:       "Calendar year",
		Value:       int64(time.Now().Year()),
		DefaultText: "current year",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "almanac",
		Usage:   "Yearly planner memos with a combined view and debounced autosave",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve memo tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:  "memo",
				Usage: "Export or import the combined memo document",
				Commands: []*cli.Command{
					{
						Name:   "export",
						Usage:  "Write the combined memo of a year",
						Action: exportMemos,
						Flags: []cli.Flag{
							yearFlag(),
							&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file, - for stdout", Value: "-"},
						},
					},
					{
						Name:   "import",
						Usage:  "Split a combined memo and save every window of a year",
						Action: importMemos,
						Flags: []cli.Flag{
							yearFlag(),
							&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "Input file, - for stdin", Value: "-"},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
