package main

import (
	"github.com/urfave/cli"
)

var configFlag = cli.StringFlag{
	Name:   "config, c",
	Value:  "./dayplan.yaml",
	Usage:  "path to the yaml/json config",
	EnvVar: "DAYPLAN_CONFIG",
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dayplan"
	app.Usage = "alerts 30 and 15 minutes before, and at the start of, today's events"
	app.Version = version
	app.Flags = []cli.Flag{configFlag}
	app.Action = run
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the scheduler until interrupted",
			Action: run,
		},
		{
			Name:   "check",
			Usage:  "validate the config and exit",
			Action: check,
		},
		{
			Name:      "plan",
			Usage:     "show which alerts would be armed at a given instant",
			UsageText: "dayplan plan [--at \"2006-01-02 15:04\"]",
			Action:    plan,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "at", Usage: "local instant to plan for (default now)"},
			},
		},
		{
			Name:    "events",
			Aliases: []string{"ev"},
			Usage:   "edit the day plan",
			Subcommands: []cli.Command{
				{
					Name:    "list",
					Aliases: []string{"ls"},
					Usage:   "list events of a date",
					Action:  eventsList,
					Flags:   []cli.Flag{dateFlag},
				},
				{
					Name:   "add",
					Usage:  "add one event",
					Action: eventsAdd,
					Flags: []cli.Flag{
						dateFlag,
						cli.StringFlag{Name: "start, s", Usage: "HH:MM"},
						cli.StringFlag{Name: "end, e", Usage: "HH:MM (optional)"},
						cli.StringFlag{Name: "title, t"},
						cli.StringFlag{Name: "description, desc"},
						cli.StringFlag{Name: "id", Usage: "explicit id (default: generated)"},
					},
				},
				{
					Name:      "rm",
					Usage:     "delete events by id",
					ArgsUsage: "<id>...",
					Action:    eventsRemove,
				},
				{
					Name:      "replace",
					Usage:     "replace a date's plan with events from a json file",
					ArgsUsage: "<file.json|->",
					Action:    eventsReplace,
					Flags:     []cli.Flag{dateFlag},
				},
			},
		},
	}
	return app
}

var dateFlag = cli.StringFlag{Name: "date, d", Usage: "YYYY-MM-DD (default today)"}

// configPath resolves --config whether it was given before or after the
// subcommand.
func configPath(c *cli.Context) string {
	if p := c.String("config"); p != "" {
		return p
	}
	return c.GlobalString("config")
}
