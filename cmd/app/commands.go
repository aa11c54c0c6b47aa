package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/ambient/internal"
	"github.com/starford/ambient/internal/models"
)

// withStores runs fn against stores opened from the loaded config. Logs go
// to stderr so stdout carries only the JSON result.
func withStores(cmd *cli.Command, fn func(*internal.Stores) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)

	stores := internal.OpenStores(cfg, logger, internal.Hooks{})
	defer stores.Close()

	return fn(stores)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// mcpCmd creates the mcp command.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP tools over stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return internal.RunMCP(ctx,
				internal.WithConfig(cfg),
				internal.WithLogger(internal.NewLogger(os.Stderr, cfg.App.LogLevel)))
		},
	}
}

// searchCmd creates the search command.
func searchCmd() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over transcripts",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("search: query is required")
			}
			return withStores(cmd, func(s *internal.Stores) error {
				recs, err := s.Transcripts.Search(ctx, query, int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				return outputJSON(recs)
			})
		},
	}
}

// recentCmd creates the recent command.
func recentCmd() *cli.Command {
	return &cli.Command{
		Name:  "recent",
		Usage: "List the newest transcripts",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStores(cmd, func(s *internal.Stores) error {
				recs, err := s.Transcripts.Recent(ctx, int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				return outputJSON(recs)
			})
		},
	}
}

// todosCmd creates the todos command and its subcommands.
func todosCmd() *cli.Command {
	return &cli.Command{
		Name:  "todos",
		Usage: "List and manage structured todos",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "pending", Usage: "Only todos not yet executed"},
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Filter by project id"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStores(cmd, func(s *internal.Stores) error {
				var (
					todos []models.Todo
					err   error
				)
				switch {
				case cmd.String("project") != "":
					todos, err = s.Tasks.ByProject(ctx, cmd.String("project"))
				case cmd.Bool("pending"):
					todos, err = s.Tasks.Pending(ctx)
				default:
					todos, err = s.Tasks.All(ctx)
				}
				if err != nil {
					return err
				}
				return outputJSON(todos)
			})
		},
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a todo",
				ArgsUsage: "<content>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "priority", Usage: "HIGH|MEDIUM|LOW, empty for none"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					content := strings.Join(cmd.Args().Slice(), " ")
					return withStores(cmd, func(s *internal.Stores) error {
						todo, err := s.Tasks.Insert(ctx, content, models.Priority(cmd.String("priority")))
						if err != nil {
							return err
						}
						return outputJSON(todo)
					})
				},
			},
			{
				Name:      "done",
				Usage:     "Mark a todo executed",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Execution output to record"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return fmt.Errorf("todos done: id is required")
					}
					return withStores(cmd, func(s *internal.Stores) error {
						if err := s.Tasks.MarkExecuted(ctx, id, cmd.String("output")); err != nil {
							return err
						}
						todo, err := s.Tasks.Get(ctx, id)
						if err != nil {
							return err
						}
						return outputJSON(todo)
					})
				},
			},
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Delete captures older than the retention window",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Usage: "Retention in days (default from config)"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			days := cfg.Captures.RetentionDays
			if cmd.IsSet("days") {
				days = int(cmd.Int("days"))
			}
			return withStores(cmd, func(s *internal.Stores) error {
				if s.Captures == nil {
					return fmt.Errorf("purge: capture directory unavailable")
				}
				return outputJSON(map[string]int{"removed": s.Captures.PurgeOldCaptures(days)})
			})
		},
	}
}
