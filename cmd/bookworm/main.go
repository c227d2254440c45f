// bookworm tracks authors, finds their books in a metadata catalog, grabs
// releases from Newznab indexers through SABnzbd and files finished
// downloads into the library.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bookworm-app/bookworm/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "bookworm",
		Usage:   "Track authors and keep an e-book library up to date",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"BOOKWORM_CONFIG"},
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Override the log format (json, console)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the scheduler and the HTTP server",
				Action: serve,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Reload settings when the config file changes",
						Value: true,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Search indexers once for every wanted book",
				Action: searchOnce,
			},
			{
				Name:   "postprocess",
				Usage:  "Move finished downloads into the library once",
				Action: postProcessOnce,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the book lists of all active authors",
				Action: refreshOnce,
			},
			{
				Name:      "add-author",
				Usage:     "Start tracking an author and import their books",
				ArgsUsage: "<name>",
				Action:    addAuthor,
			},
			{
				Name:      "discover",
				Usage:     "Import the books matching a catalog query",
				ArgsUsage: "<query>",
				Action:    discover,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		// Use the logger to ensure consistent format
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
