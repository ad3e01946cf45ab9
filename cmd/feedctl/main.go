// feedctl prints the ticket feed dashboard in the terminal: the statistics
// row, the sentiment distribution and one card per ticket. With --analyze it
// also scores a piece of text against the scoring endpoint.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/config"
	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/render"
	"ticketfeed-server/pkg/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)

	sourceCfg, scoringCfg := config.LoadClient(logger)

	var (
		source     string
		scoringURL string
		text       string
		width      int
		timeout    time.Duration
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("feedctl", pflag.ContinueOnError)
	flagSet.StringVarP(&source, "source", "s", sourceCfg.Location, "ticket source: a JSON file path or an http(s) URL")
	flagSet.StringVar(&scoringURL, "scoring-url", scoringCfg.URL, "sentiment scoring endpoint")
	flagSet.StringVarP(&text, "analyze", "a", "", "score this text after printing the feed")
	flagSet.IntVarP(&width, "width", "w", 72, "card width in columns")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for fetching and scoring")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log fetch and scoring details to stderr")
	flagSet.BoolP("version", "V", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if v, _ := flagSet.GetBool("version"); v {
		fmt.Fprintln(stdout, "feedctl "+version.Version)
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := feed.NewFetcher(logger, source, nil).Fetch(ctx)
	now := time.Now()

	fmt.Fprintln(stdout, render.TerminalStats(feed.Aggregate(result.Tickets), result.Origin))
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, render.TerminalCards(now, result.Tickets, width))

	if text == "" {
		return nil
	}

	control := analyzer.NewControl(logger, analyzer.VariantModal, analyzer.NewClient(logger, scoringURL, nil), nil)
	analysis, err := control.Submit(ctx, text)
	if errors.IsErrorType(err, errors.ErrEmptyText) {
		return nil
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, render.TerminalAnalysis(render.AnalysisOutcome{Result: analysis, Err: err}))
	return nil
}
