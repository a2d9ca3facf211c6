// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage service authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authenticate with a service (OAuth flow for Spotify)",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "timeout",
						Usage: "Seconds to wait for the OAuth callback",
						Value: 300,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show stored credentials per service",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
			{
				Name:  "logout",
				Usage: "Delete stored credentials for a service",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "service"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogout,
			},
		},
	}
}

// syncCommand handles playlist sync operations
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync playlists between services",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run sync cycles for every configured pair",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Run a single cycle and exit",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "status",
				Usage: "Show per-playlist sync state",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncStatus,
			},
		},
	}
}

// reportCommand surfaces missing-track reports written during sync.
func reportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Missing-track reports",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List report files in the missing-tracks directory",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ReportList,
			},
			{
				Name:  "show",
				Usage: "Print one report file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.ReportShow,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for watching a sync cycle.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the live sync dashboard",
		Flags:   []cli.Flag{configFlag()},
		Action:  r.TUI,
	}
}
