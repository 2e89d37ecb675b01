// Package main is the chainstate operator tool. Every command opens the
// stores configured in settings.conf, runs, and closes them again; serve
// keeps the chainstate open and exposes its prometheus metrics.
//
// Usage:
//
//	chainstate info
//	chainstate reindex --mode full|chainstate
//	chainstate submitblock <hex>
//	chainstate submittx <hex>
//	chainstate estimatefee <target>
//	chainstate listunspent [--minconf n] [--script hex] [--mature] [--csv]
//	chainstate serve
package main

import (
	"log"
	"os"

	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "chainstate"

// Version & commit strings injected at build with -ldflags -X...
var (
	version string
	commit  string
)

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    progname,
		Usage:   "inspect and operate a chainstate",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "print the active chain and mempool state",
				Action: info,
			},
			{
				Name:   "reindex",
				Usage:  "rebuild the UTXO set from the stored blocks",
				Action: reindex,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "full rebuilds the block index too, chainstate keeps it",
						Value: "chainstate",
					},
				},
			},
			{
				Name:      "submitblock",
				Usage:     "validate a hex encoded block and connect it if it extends the best chain",
				ArgsUsage: "<hex>",
				Action:    submitBlock,
			},
			{
				Name:      "submitheaders",
				Usage:     "validate hex encoded block headers, in chain order, and add them to the block index",
				ArgsUsage: "<hex> [<hex>...]",
				Action:    submitHeaders,
			},
			{
				Name:      "submittx",
				Usage:     "validate a hex encoded transaction and add it to the mempool",
				ArgsUsage: "<hex>",
				Action:    submitTx,
			},
			{
				Name:      "estimatefee",
				Usage:     "estimate the fee rate for confirmation within target blocks",
				ArgsUsage: "<target>",
				Action:    estimateFee,
			},
			{
				Name:   "listunspent",
				Usage:  "list the unspent outputs of the active chain",
				Action: listUnspent,
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  "minconf",
						Usage: "minimum number of confirmations",
					},
					&cli.StringFlag{
						Name:  "script",
						Usage: "only outputs locked by this hex encoded script",
					},
					&cli.BoolFlag{
						Name:  "mature",
						Usage: "skip coinbase outputs that cannot be spent yet",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "write CSV instead of JSON",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "keep the chainstate open and serve prometheus metrics",
				Action: serve,
			},
		},
	}
}
