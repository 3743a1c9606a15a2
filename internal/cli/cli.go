// Package cli provides the command-line interface of the build download server.
// It supports a YAML configuration file, the SLICER_DOWNLOAD_* environment
// conventions, and one command per server operation.
package cli

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Version is reported by --version and the /version endpoint.
var Version = "1.0.0"

// queryFlags are the resolution criteria accepted by find, findall and sitegen.
// They are passed through as request parameters so the commands validate
// exactly like the HTTP endpoints.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "revision",
			Usage: "exact source revision",
		},
		&cli.StringFlag{
			Name:  "closest-revision",
			Usage: "newest build at or below this revision",
		},
		&cli.StringFlag{
			Name:  "version",
			Usage: "dotted version prefix (e.g. 4.11)",
		},
		&cli.StringFlag{
			Name:  "date",
			Usage: "newest build on or before this day (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "checkout-date",
			Usage: "newest build checked out on or before this day (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "offset",
			Usage: "step to older (negative) or newer (positive) revisions from the match",
		},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "output",
		Value: "text",
		Usage: "output format (text, json)",
	}
}

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "dlserver",
		Usage:    "Resolve and serve application build downloads",
		Version:  Version,
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "Clean Dependency Project",
				Email: "info@example.com",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "dlserver.yaml",
				Usage:   "path to configuration file (missing file means defaults)",
				EnvVars: []string{"DLSERVER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"DLSERVER_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log format (json, text)",
				EnvVars: []string{"DLSERVER_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "api",
				Usage:   "catalog source (Midas_v1, Girder_v1)",
				EnvVars: []string{"SLICER_DOWNLOAD_SERVER_API"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path to the SQLite records database",
				EnvVars: []string{"SLICER_DOWNLOAD_DB_FILE"},
			},
			&cli.StringFlag{
				Name:    "db-fallback",
				Usage:   "read the fallback database under etc/fallback (true, 1)",
				EnvVars: []string{"SLICER_DOWNLOAD_DB_FALLBACK"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the download endpoints over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen",
						Aliases: []string{"l"},
						Usage:   "listen address (overrides server.listen)",
						EnvVars: []string{"DLSERVER_LISTEN"},
					},
					&cli.StringFlag{
						Name:    "hostname",
						Usage:   "public base URL used in rendered pages",
						EnvVars: []string{"SLICER_DOWNLOAD_HOSTNAME"},
					},
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "do not watch the database file for changes",
					},
				},
				Action: serveCommand,
			},
			{
				Name:  "find",
				Usage: "Resolve the single build matching the criteria",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "os",
						Usage: "platform (macosx, win, linux); defaults to the current system",
					},
					&cli.StringFlag{
						Name:  "stability",
						Usage: "release, nightly or any",
					},
					outputFlag(),
				}, queryFlags()...),
				Action: findCommand,
			},
			{
				Name:   "findall",
				Usage:  "Resolve the release and nightly build of every platform",
				Flags:  append([]cli.Flag{outputFlag()}, queryFlags()...),
				Action: findAllCommand,
			},
			{
				Name:  "releases",
				Usage: "List release labels, newest first",
				Flags: []cli.Flag{
					outputFlag(),
				},
				Action: releasesCommand,
			},
			{
				Name:  "fetch",
				Usage: "Fetch build records from the upstream package API into the database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "package API base URL (overrides the upstream section)",
					},
					outputFlag(),
				},
				Action: fetchCommand,
			},
			{
				Name:  "sitegen",
				Usage: "Generate the static download page and findall.json",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Usage:    "output directory for generated files",
						Required: true,
						EnvVars:  []string{"SITEGEN_OUT"},
					},
					&cli.StringFlag{
						Name:    "hostname",
						Usage:   "public base URL prefixed to download links",
						EnvVars: []string{"SLICER_DOWNLOAD_HOSTNAME"},
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "resolve builds without writing files",
					},
				}, queryFlags()...),
				Action: sitegenCommand,
			},
			{
				Name:  "config",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "write",
						Usage: "save the effective configuration to this file instead of printing it",
					},
				},
				Action: configCommand,
			},
		},
	}
}
