package main

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/chainstate"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/chainstate/util/tracing"
	"github.com/gocarina/gocsv"
	jsoniter "github.com/json-iterator/go"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const cliPeer = "cli"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// withChainstate opens the configured chainstate, runs fn and closes it.
func withChainstate(ctx context.Context, fn func(ctx context.Context, logger ulogger.Logger, cs *chainstate.Chainstate) error,
	opts ...chainstate.Option) error {
	tSettings := settings.NewSettings()
	logger := ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel))

	cs, err := chainstate.NewFromSettings(ctx, logger, tSettings, opts...)
	if err != nil {
		return err
	}

	err = fn(ctx, logger, cs)

	if closeErr := cs.Close(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Errorf("[%s] failed to close chainstate: %v", progname, closeErr)

		if err == nil {
			err = closeErr
		}
	}

	return err
}

type infoOutput struct {
	Chain   *chainstate.BlockChainInfo `json:"chain"`
	Mempool *mempool.Info              `json:"mempool"`
}

func info(c *cli.Context) error {
	return withChainstate(c.Context, func(_ context.Context, _ ulogger.Logger, cs *chainstate.Chainstate) error {
		return writeJSON(c.App.Writer, infoOutput{
			Chain:   cs.GetBlockChainInfo(),
			Mempool: cs.GetMempoolInfo(),
		})
	})
}

func reindex(c *cli.Context) error {
	mode, err := chainstate.ParseReindexMode(c.String("mode"))
	if err != nil {
		return err
	}

	return withChainstate(c.Context, func(ctx context.Context, logger ulogger.Logger, cs *chainstate.Chainstate) error {
		start := time.Now()

		if err := cs.Reindex(ctx, mode); err != nil {
			return err
		}

		tip := cs.Tip()
		logger.Infof("[%s] %s reindex done in %s, tip %s at height %d", progname, mode, time.Since(start), tip.Hash, tip.Height)

		return nil
	})
}

// verdictOutput is the printable form of a chainstate.Verdict.
type verdictOutput struct {
	Result  string   `json:"result"`
	Hash    string   `json:"hash"`
	Kind    string   `json:"kind,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Penalize bool     `json:"penalize,omitempty"`
	Error    string   `json:"error,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

func newVerdictOutput(verdict chainstate.Verdict) verdictOutput {
	out := verdictOutput{
		Result:   verdict.Result.String(),
		Hash:     verdict.Hash.String(),
		Reason:   verdict.Reason,
		Penalize: verdict.Penalize,
	}

	if verdict.Err != nil {
		out.Kind = verdict.Kind.String()
		out.Error = verdict.Err.Error()
	}

	for _, hash := range verdict.Missing {
		out.Missing = append(out.Missing, hash.String())
	}

	return out
}

func hexArg(c *cli.Context) ([]byte, error) {
	if c.NArg() != 1 {
		return nil, errors.NewInvalidArgumentError("expected exactly one hex argument, got %d", c.NArg())
	}

	raw, err := hex.DecodeString(c.Args().First())
	if err != nil {
		return nil, errors.NewInvalidArgumentError("argument is not valid hex", err)
	}

	return raw, nil
}

func submitBlock(c *cli.Context) error {
	raw, err := hexArg(c)
	if err != nil {
		return err
	}

	return withChainstate(c.Context, func(ctx context.Context, _ ulogger.Logger, cs *chainstate.Chainstate) error {
		return writeJSON(c.App.Writer, newVerdictOutput(cs.OnBlockReceived(ctx, raw, cliPeer)))
	})
}

// headerArgs parses every argument as a hex encoded block header.
func headerArgs(c *cli.Context) ([]*model.BlockHeader, error) {
	if c.NArg() == 0 {
		return nil, errors.NewInvalidArgumentError("expected at least one hex encoded header")
	}

	headers := make([]*model.BlockHeader, 0, c.NArg())

	for i, arg := range c.Args().Slice() {
		header, err := model.NewBlockHeaderFromString(arg)
		if err != nil {
			return nil, errors.NewInvalidArgumentError("header %d is not valid", i, err)
		}

		headers = append(headers, header)
	}

	return headers, nil
}

func submitHeaders(c *cli.Context) error {
	headers, err := headerArgs(c)
	if err != nil {
		return err
	}

	return withChainstate(c.Context, func(ctx context.Context, _ ulogger.Logger, cs *chainstate.Chainstate) error {
		return writeJSON(c.App.Writer, newVerdictOutput(cs.OnHeadersReceived(ctx, headers, cliPeer)))
	})
}

func submitTx(c *cli.Context) error {
	raw, err := hexArg(c)
	if err != nil {
		return err
	}

	return withChainstate(c.Context, func(ctx context.Context, _ ulogger.Logger, cs *chainstate.Chainstate) error {
		return writeJSON(c.App.Writer, newVerdictOutput(cs.OnTransactionReceived(ctx, raw, cliPeer)))
	})
}

type feeOutput struct {
	Target      int     `json:"target"`
	SatsPerKB   float64 `json:"satsPerKB"`
	SatsPerByte float64 `json:"satsPerByte"`
	TipHeight   uint32  `json:"tipHeight"`
}

func estimateFee(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.NewInvalidArgumentError("expected the confirmation target in blocks")
	}

	target, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return errors.NewInvalidArgumentError("target %q is not a number", c.Args().First(), err)
	}

	return withChainstate(c.Context, func(_ context.Context, _ ulogger.Logger, cs *chainstate.Chainstate) error {
		rate, err := cs.EstimateFee(target)
		if err != nil {
			return err
		}

		return writeJSON(c.App.Writer, feeOutput{
			Target:      target,
			SatsPerKB:   float64(rate),
			SatsPerByte: rate.SatsPerByte(),
			TipHeight:   cs.Tip().Height,
		})
	})
}

func coinFilter(c *cli.Context) (chainstate.CoinFilter, error) {
	filter := chainstate.CoinFilter{
		MinConfirmations: uint32(c.Uint("minconf")), //nolint:gosec // confirmation counts fit
		ExcludeImmature:  c.Bool("mature"),
	}

	if script := c.String("script"); script != "" {
		b, err := hex.DecodeString(script)
		if err != nil {
			return filter, errors.NewInvalidArgumentError("--script is not valid hex", err)
		}

		filter.LockingScript = b
	}

	return filter, nil
}

func listUnspent(c *cli.Context) error {
	filter, err := coinFilter(c)
	if err != nil {
		return err
	}

	return withChainstate(c.Context, func(ctx context.Context, _ ulogger.Logger, cs *chainstate.Chainstate) error {
		outputs, err := cs.ListUnspent(ctx, filter)
		if err != nil {
			return err
		}

		return writeUnspent(c.App.Writer, outputs, c.Bool("csv"))
	})
}

// writeUnspent writes outputs as CSV with a header row, or as a JSON array.
func writeUnspent(w io.Writer, outputs []*chainstate.UnspentOutput, asCSV bool) error {
	if outputs == nil {
		outputs = []*chainstate.UnspentOutput{}
	}

	if asCSV {
		if err := gocsv.Marshal(outputs, w); err != nil {
			return errors.NewProcessingError("failed to write CSV", err)
		}

		return nil
	}

	return writeJSON(w, outputs)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return errors.NewProcessingError("failed to write JSON", err)
	}

	return nil
}

func serve(c *cli.Context) error {
	tSettings := settings.NewSettings()
	logger := ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel))

	stats := gocore.Config().Stats()
	logger.Infof("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	if tSettings.Tracing.Enabled {
		if err := tracing.InitTracer(tSettings); err != nil {
			logger.Warnf("[%s] tracing disabled: %v", progname, err)
		} else {
			defer func() {
				if err := tracing.ShutdownTracer(context.Background()); err != nil {
					logger.Warnf("[%s] failed to shut down tracer: %v", progname, err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	verdictLogger := logger.New("verdicts")

	return withChainstate(ctx, func(ctx context.Context, logger ulogger.Logger, cs *chainstate.Chainstate) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              tSettings.Chainstate.PrometheusListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 20 * time.Second,
		}

		errCh := make(chan error, 1)

		go func() {
			logger.Infof("[%s] serving metrics on %s/metrics", progname, server.Addr)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		tip := cs.Tip()
		logger.Infof("[%s] chainstate open, tip %s at height %d", progname, tip.Hash, tip.Height)

		var err error

		select {
		case <-ctx.Done():
			logger.Infof("[%s] shutting down", progname)
		case err = <-errCh:
			err = errors.NewServiceError("metrics server failed", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warnf("[%s] metrics server shutdown: %v", progname, shutdownErr)
		}

		return err
	}, chainstate.WithVerdictHandler(func(fromPeer string, verdict chainstate.Verdict) {
		if verdict.Result == chainstate.Invalid {
			verdictLogger.Warnf("[%s][%s] %s from %s: %s", progname, verdict.Hash, verdict.Result, fromPeer, verdict.Reason)
		}
	}))
}

