// Command cadcore serves and maintains cadcore documents.
//
// Usage:
//
//	cadcore [-config file] <command> [args]
//
// Commands: serve, list, inspect, export, import, delete, asset.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"

	"cadcore/internal/assets"
	"cadcore/internal/blob"
	"cadcore/internal/config"
	"cadcore/internal/core"
	"cadcore/internal/logging"
	"cadcore/internal/observability"
	"cadcore/pkg/domain"
)

var (
	exitFunc = os.Exit
	getenv   = os.Getenv
	stdin    io.Reader = os.Stdin
)

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

const usage = `usage: cadcore [-config file] <command> [args]

commands:
  serve   [-doc id] [-name name] [-addr host:port] [-trace file]
  list
  inspect <id>
  export  <id> [-o file]
  import  <file|->
  delete  <id>
  asset   put [-overwrite] <key> <file> | url <key> | list
`

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cadcore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	var configPath string
	fs.StringVar(&configPath, "config", "", "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(configPath, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}
	logging.SetLogger(logger)

	cmd, cmdArgs := rest[0], rest[1:]
	ctx := context.Background()
	var run func(context.Context, *app, []string, io.Writer) error
	switch cmd {
	case "serve":
		run = runServe
	case "list":
		run = runList
	case "inspect":
		run = runInspect
	case "export":
		run = runExport
	case "import":
		run = runImport
	case "delete":
		run = runDelete
	case "asset":
		run = runAsset
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	defer a.Close()
	if err := run(ctx, a, cmdArgs, stdout); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
			return 2
		}
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

// app holds the process-wide components every command shares.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	docs     domain.DocumentStore
	blobs    blob.Store
	loader   *assets.Loader
	registry *prometheus.Registry
	metrics  *observability.PrometheusRecorder
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	rec, err := observability.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	loader, err := assets.New(blobs,
		assets.WithCacheSize(cfg.Assets.CacheSize),
		assets.WithMetrics(rec),
		assets.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	docs, err := core.OpenDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}
	return &app{cfg: cfg, logger: logger, docs: docs, blobs: blobs, loader: loader, registry: reg, metrics: rec}, nil
}

func (a *app) Close() {
	if err := core.CloseDocumentStore(a.docs); err != nil {
		a.logger.Warn("close document store", "error", err)
	}
}

// service builds a document service; extra options are appended to the
// defaults derived from the config.
func (a *app) service(extra ...core.Option) *core.Service {
	opts := append([]core.Option{
		core.WithAssetLoader(a.loader),
		core.WithMaxDepth(a.cfg.History.MaxDepth),
		core.WithMetrics(a.metrics),
		core.WithLogger(a.logger),
	}, extra...)
	return core.NewService(a.docs,
		core.WithAutosave(a.cfg.Storage.Autosave),
		core.WithDocumentOptions(opts...),
		core.WithServiceLogger(a.logger))
}

func oneArg(args []string, what string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usageError("expected " + what)
	}
	return args[0], nil
}

func runList(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 0 {
		return usageError("list takes no arguments")
	}
	sums, err := a.service().List(ctx)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Fprintln(out, "no documents")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENTITIES\tLAYERS\tUPDATED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Name, humanize.Comma(int64(s.Entities)), s.Layers, humanize.Time(s.UpdatedAt))
	}
	return tw.Flush()
}

func runInspect(ctx context.Context, a *app, args []string, out io.Writer) error {
	id, err := oneArg(args, "document id")
	if err != nil {
		return err
	}
	d, err := a.service().Open(ctx, id)
	if err != nil {
		return err
	}
	defer d.Close()
	wait, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := d.Scene().Await(wait); err != nil {
		a.logger.Warn("asset loads still pending", "error", err)
	}

	state := d.State()
	fmt.Fprintf(out, "%s (%s)\n", state.Name, state.ID)
	fmt.Fprintf(out, "created  %s\n", humanize.Time(state.CreatedAt))
	fmt.Fprintf(out, "updated  %s\n", humanize.Time(state.UpdatedAt))

	counts := state.Entities.Counts()
	kinds := domain.Kinds()
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%s", k, humanize.Comma(int64(counts[k]))))
	}
	fmt.Fprintf(out, "entities %s\n", strings.Join(parts, " "))

	fmt.Fprintln(out, "layers")
	for _, l := range state.Layers {
		flags := []string{}
		if !l.Visible {
			flags = append(flags, "hidden")
		}
		if l.Locked {
			flags = append(flags, "locked")
		}
		refs := d.Store().EntitiesOnLayer(l.ID)
		fmt.Fprintf(out, "  %-12s %-20s %s entities %s\n", l.ID, l.Name, humanize.Comma(int64(len(refs))), strings.Join(flags, ","))
	}

	var assetBytes uint64
	seen := map[string]bool{}
	for _, n := range d.Scene().Nodes() {
		if n.Mesh != nil && n.Mesh.Asset != nil && !seen[n.Mesh.Asset.Path] {
			seen[n.Mesh.Asset.Path] = true
			assetBytes += uint64(n.Mesh.Asset.Size)
		}
	}
	st := d.Scene().Stats()
	fmt.Fprintf(out, "scene    %d nodes, %d resources, %d failures, %d assets (%s)\n",
		st.Nodes, st.Resources, st.Failures, len(seen), humanize.Bytes(assetBytes))
	if err := d.Check(); err != nil {
		fmt.Fprintf(out, "check    FAILED\n")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
		return nil
	}
	fmt.Fprintln(out, "check    ok")
	return nil
}

func runExport(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var target string
	fs.StringVar(&target, "o", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	id, err := oneArg(fs.Args(), "document id")
	if err != nil {
		return err
	}
	state, err := a.service().Export(ctx, id)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if target == "" {
		_, err = out.Write(raw)
		return err
	}
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s (%s)\n", target, humanize.Bytes(uint64(len(raw))))
	return nil
}

func runImport(ctx context.Context, a *app, args []string, out io.Writer) error {
	path, err := oneArg(args, "file or - for stdin")
	if err != nil {
		return err
	}
	var raw []byte
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	var state domain.DocumentState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	sum, err := a.service().Import(ctx, state)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %s (%s entities, %d layers)\n", sum.ID, humanize.Comma(int64(sum.Entities)), sum.Layers)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string, out io.Writer) error {
	id, err := oneArg(args, "document id")
	if err != nil {
		return err
	}
	ok, err := a.service().Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDocumentNotFound{ID: id}
	}
	fmt.Fprintf(out, "deleted %s\n", id)
	return nil
}

func runAsset(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("expected put or url")
	}
	switch args[0] {
	case "put":
		fs := flag.NewFlagSet("asset put", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		overwrite := fs.Bool("overwrite", false, "replace an existing asset")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		if fs.NArg() != 2 {
			return usageError("expected <key> <file>")
		}
		data, err := os.ReadFile(fs.Arg(1))
		if err != nil {
			return err
		}
		info, err := a.loader.Put(ctx, fs.Arg(0), data, *overwrite)
		if err != nil {
			return err
		}
		format, _ := assets.Detect(info.Key, data)
		fmt.Fprintf(out, "stored %s (%s, %s, %s)\n", info.Key, format, info.ContentType, humanize.Bytes(uint64(info.Size)))
		return nil
	case "url":
		key, err := oneArg(args[1:], "asset key")
		if err != nil {
			return err
		}
		u, err := a.loader.URL(ctx, key)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, u)
		return nil
	case "list":
		infos, err := a.blobs.List(ctx, "")
		if err != nil {
			return err
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
		for _, info := range infos {
			fmt.Fprintf(out, "%s\t%s\n", info.Key, humanize.Bytes(uint64(info.Size)))
		}
		return nil
	default:
		return usageError("unknown asset command " + args[0])
	}
}
