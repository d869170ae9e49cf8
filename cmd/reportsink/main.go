package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "run-consumer", "Run the queue consumer", `
Run the sweep loop: drain every configured queue into the column store,
until signaled to exit (via SIGINT or SIGTERM). Upon receiving a signal
the consumer waits out in-flight drains and exits cleanly.
`, &cmdRunConsumer{})

	addCmd(parser, "rollup-stats", "Emit the daily stats rollup", `
Send the accumulated per-queue message counters to the configured chat
and mail recipients, then reset the counters.
`, &cmdRollupStats{})

	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		log.WithField("err", err).Fatal("command failed")
	}
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	if err != nil {
		log.WithField("err", err).Fatal("failed to add flags parser command")
	}
	return cmd
}
