package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fedragon/feedme/internal"
	"github.com/fedragon/feedme/internal/config"
	"github.com/fedragon/feedme/internal/errs"
	"github.com/fedragon/feedme/internal/logging"
	"github.com/fedragon/feedme/internal/metrics"
	"github.com/fedragon/feedme/internal/models"
)

const (
	loggerKey  = "logger"
	metricsKey = "metrics"
)

func main() {
	app := &cli.App{
		Name:  "feedme",
		Usage: "Publish a directory of media files as a podcast feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (default: ./feedme.toml, then ~/.config/feedme.toml)",
				EnvVars: []string{config.EnvConfig},
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "media directory holding the records",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debug messages and print stack traces of errors",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write Prometheus metrics of the run to this file",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Render the feed of the media directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "output file, - for standard output",
						Value:   internal.Stdout,
					},
					&cli.BoolFlag{
						Name:  "no-indent",
						Usage: "write the feed without indentation",
					},
				},
				Action: run(func(c *cli.Context, r *internal.Runner) error {
					return r.Build(c.String("out"), !c.Bool("no-indent"))
				}),
			},
			{
				Name:      "manual",
				Usage:     "Record the given media files, in order, as the episodes of a playlist",
				ArgsUsage: "FILES...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "playlist title", Required: true},
					&cli.StringFlag{Name: "description", Usage: "playlist description"},
					&cli.StringFlag{Name: "author", Usage: "playlist author"},
					&cli.StringFlag{Name: "thumbnail", Usage: "playlist artwork, a file below the webroot or a URL"},
					&cli.StringFlag{Name: "url", Usage: "playlist website"},
					&cli.StringFlag{Name: "type", Usage: "episodic or serial"},
				},
				Action: run(func(c *cli.Context, r *internal.Runner) error {
					if c.NArg() == 0 {
						return errs.New(errs.Config, "no media files given")
					}
					playlist := models.Playlist{
						Title:       c.String("title"),
						Description: models.String(c.String("description")),
						Author:      models.String(c.String("author")),
						Thumbnail:   models.String(c.String("thumbnail")),
						URL:         models.String(c.String("url")),
						Type:        models.String(c.String("type")),
					}
					return r.Manual(c.Context, c.Args().Slice(), playlist)
				}),
			},
			{
				Name:  "ytdlp",
				Usage: "Record the downloads yt-dlp left in the media directory",
				Action: run(func(c *cli.Context, r *internal.Runner) error {
					return r.Import(c.Context)
				}),
			},
			{
				Name:  "list",
				Usage: "Print the recorded episodes",
				Action: run(func(c *cli.Context, r *internal.Runner) error {
					return r.List()
				}),
			},
			{
				Name:  "check",
				Usage: "Verify the recorded episodes against the media directory",
				Action: run(func(c *cli.Context, r *internal.Runner) error {
					return r.Check(c.Context)
				}),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		if trace := errs.Trace(err); trace != "" {
			fmt.Fprintf(os.Stderr, "\n%s", trace)
		}
		stop()
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	verbose := c.Bool("verbose")
	errs.CaptureTraces(verbose)

	c.App.Metadata = map[string]interface{}{
		loggerKey:  logging.New(verbose),
		metricsKey: metrics.NewMetrics(c.String("metrics-file")),
	}
	return nil
}

func teardown(c *cli.Context) error {
	if mx, ok := c.App.Metadata[metricsKey].(*metrics.Metrics); ok {
		if err := mx.Close(); err != nil {
			return errs.Wrap(errs.IO, err, "cannot write metrics")
		}
	}
	if logger, ok := c.App.Metadata[loggerKey].(*zap.Logger); ok {
		_ = logger.Sync()
	}
	return nil
}

// run loads the configuration and hands a runner to fn.
func run(fn func(c *cli.Context, r *internal.Runner) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		logger := c.App.Metadata[loggerKey].(*zap.Logger)
		mx := c.App.Metadata[metricsKey].(*metrics.Metrics)

		cfg, used, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		logger.Debug("Loaded configuration",
			zap.String("file", used),
			zap.String("base_url", cfg.BaseURL),
			zap.String("webroot", cfg.Webroot),
			zap.String("backend", cfg.Store.Backend),
		)

		mediaDir, err := filepath.Abs(c.String("dir"))
		if err != nil {
			return errs.Wrap(errs.IO, err, "cannot resolve %s", c.String("dir"))
		}

		return fn(c, internal.NewRunner(logger, mx, cfg, mediaDir, os.Stdout))
	}
}
