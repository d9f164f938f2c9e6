// Command rangecache reads byte ranges and chunks through a shared range
// cache and prints cache keys for operators.
//
// Usage:
//
//	rangecache [-config file] [-metrics addr] read <path> <offset> <length>
//	rangecache [-config file] chunk <array> <i.j.k>
//	rangecache [-config file] key <path> <blockIndex>
//	rangecache [-config file] key <array> <i.j.k>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/rangecache/cache"
	"github.com/IvanBrykalov/rangecache/chunk"
	"github.com/IvanBrykalov/rangecache/config"
	"github.com/IvanBrykalov/rangecache/internal/logging"
	"github.com/IvanBrykalov/rangecache/key"
	pmet "github.com/IvanBrykalov/rangecache/metrics/prom"
	"github.com/IvanBrykalov/rangecache/policy"
	chunkpolicy "github.com/IvanBrykalov/rangecache/policy/chunk"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rangecache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file (TOML, YAML or JSON)")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics at addr while running; overrides metrics.addr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: rangecache [flags] read <path> <offset> <length> | chunk <array> <i.j.k> | key <path|array> <index|i.j.k>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	logger.SetOutput(stderrIfStdout(logger, stderr))

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	log := logger.WithFields(logging.Fields(cmd, *configPath))

	switch cmd {
	case "read":
		err = cmdRead(ctx, cfg, log, rest, stdout)
	case "chunk":
		err = cmdChunk(ctx, cfg, log, rest, stdout)
	case "key":
		err = cmdKey(ctx, cfg, rest, stdout)
	default:
		err = usageError(fmt.Sprintf("unknown command %q", cmd))
	}

	var ue usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, "rangecache:", err)
		fs.Usage()
		return exitUsage
	default:
		log.WithError(err).Error("command failed")
		fmt.Fprintln(stderr, "rangecache:", err)
		return exitError
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func cmdRead(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, args []string, stdout io.Writer) error {
	if len(args) != 3 {
		return usageError("read needs <path> <offset> <length>")
	}
	off, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return usageError("offset: " + err.Error())
	}
	n, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return usageError("length: " + err.Error())
	}

	e, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	b, err := e.Read(ctx, args[0], off, n)
	if err != nil {
		return err
	}
	if _, err := stdout.Write(b); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"path": args[0], "offset": off, "length": n, "hits": e.Stats().Hits}).Info("read complete")
	return nil
}

func cmdChunk(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return usageError("chunk needs <array> <i.j.k>")
	}
	coord, err := chunk.ParseCoord(args[1])
	if err != nil {
		return usageError(err.Error())
	}

	e, err := newEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	b, err := e.ReadChunk(ctx, args[0], coord)
	if err != nil {
		return err
	}
	_, err = stdout.Write(b)
	return err
}

func cmdKey(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) != 2 {
		return usageError("key needs <path> <blockIndex> or <array> <i.j.k>")
	}
	codec := key.New(cfg.KeyPrefix)

	kind, err := policy.ParseKind(cfg.Policy)
	if err != nil {
		return err
	}
	if kind == policy.KindBlock {
		idx, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || idx < 0 {
			return usageError("block index must be a non-negative integer")
		}
		_, err = fmt.Fprintln(stdout, codec.Block(args[0], idx))
		return err
	}

	coord, err := chunk.ParseCoord(args[1])
	if err != nil {
		return usageError(err.Error())
	}
	ix, err := cfg.LoadChunkIndex(ctx)
	if err != nil {
		return err
	}
	p, err := chunkpolicy.New(ix, codec)
	if err != nil {
		return err
	}
	u, err := p.Unit(args[0], coord)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, u.Key)
	return err
}

func newEngine(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*cache.Engine, error) {
	opt, err := cfg.EngineOptions(ctx)
	if err != nil {
		return nil, err
	}
	opt.Logger = log

	var reg *prometheus.Registry
	if cfg.Metrics.Addr != "" {
		reg = prometheus.NewRegistry()
		opt.Metrics = pmet.New(reg, cfg.Metrics.Namespace, "engine", nil)
	}
	e, err := openEngine(opt)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.WithField("addr", cfg.Metrics.Addr).Info("metrics: serving")
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}
	return e, nil
}

// openEngine builds the engine and releases opt.Store if that fails.
func openEngine(opt cache.Options) (*cache.Engine, error) {
	e, err := cache.New(opt)
	if err != nil {
		config.CloseStore(opt.Store)
		return nil, err
	}
	return e, nil
}

// stderrIfStdout keeps log lines out of stdout, which carries read data.
func stderrIfStdout(l *logrus.Logger, stderr io.Writer) io.Writer {
	if l.Out == os.Stdout {
		return stderr
	}
	return l.Out
}
