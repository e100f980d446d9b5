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

// serveCommand runs the relay HTTP service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the relay HTTP service",
		Flags: []cli.Flag{
			configFlag(),
			&cli.Float64Flag{
				Name:  "rate-limit",
				Usage: "Maximum inbound requests per second",
				Value: 20,
			},
		},
		Action: r.Serve,
	}
}

// authCommand runs the interactive OAuth2 login flow
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Spotify and print the resulting tokens",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorize URL instead of opening a browser",
			},
		},
		Action: r.Auth,
	}
}

// setupCommand initializes the config file and history database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml and run database migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}
