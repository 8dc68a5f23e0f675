// Command d4 discovers semantic domains in relational data.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/hupe1980/d4"
	"github.com/hupe1980/d4/config"
	"github.com/hupe1980/d4/source"
	"github.com/hupe1980/d4/source/csvdir"
	"github.com/hupe1980/d4/source/postgres"
	"github.com/hupe1980/d4/source/sqlite"
)

const version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "eqs":
		err = runEQs(ctx, rest, stdout)
	case "signatures", "expand", "local-domains", "strong-domains":
		err = runStep(ctx, cmd, rest, stdout)
	case "run":
		err = runAll(ctx, rest, stdout)
	case "stats":
		err = runStats(ctx, rest, stdout)
	case "config":
		err = runConfig(rest, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "d4 %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", cmd)
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `d4 - signature-driven domain discovery

Usage:
  d4 <command> [flags]

Commands:
  eqs             build the EQ index from a database or CSV directory
  signatures      compute the signature blocks of every EQ
  expand          expand every column
  local-domains   derive local domains from the expanded columns
  strong-domains  merge local domains into strong domains
  run             run signatures through strong-domains and commit a manifest
  stats           summarize the index and the written outputs
  config          print the resolved settings and their origins
  version         print the version

Locations are local directories, s3://bucket/prefix or
minio://host:port/bucket/prefix. Run "d4 <command> -h" for flags.
`)
}

// settingFlags binds the flags every command shares to setting names.
type settingFlags struct {
	configPath string
	values     map[string]*string
	sets       setFlag
}

// setFlag collects repeated -set key=value flags.
type setFlag []string

func (s *setFlag) String() string { return strings.Join(*s, ",") }

func (s *setFlag) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*s = append(*s, v)
	return nil
}

var flagKeys = map[string]string{
	"input":       config.KeyInput,
	"output":      config.KeyOutput,
	"workers":     config.KeyWorkers,
	"log-level":   config.KeyLogLevel,
	"log-format":  config.KeyLogFormat,
	"compression": config.KeyCompression,
}

func newFlagSet(name string, stdout io.Writer) (*flag.FlagSet, *settingFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stdout)
	sf := &settingFlags{values: make(map[string]*string)}
	fs.StringVar(&sf.configPath, "config", "", "YAML config file (default $D4_CONFIG)")
	fs.Var(&sf.sets, "set", "override a setting, key=value (repeatable)")
	for _, flagName := range sortedKeys(flagKeys) {
		key := flagKeys[flagName]
		sf.values[flagName] = fs.String(flagName, "", fmt.Sprintf("%s (env %s)", key, config.EnvName(key)))
	}
	return fs, sf
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolve merges the flags with environment, config file and defaults.
func (sf *settingFlags) resolve(fs *flag.FlagSet) (config.Resolved, error) {
	cli := make(map[string]string)
	for _, kv := range sf.sets {
		k, v, _ := strings.Cut(kv, "=")
		cli[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			cli[key] = *sf.values[f.Name]
		}
	})
	return config.Resolve(config.ResolveOptions{ConfigPath: sf.configPath, CLI: cli})
}

func (sf *settingFlags) settings(fs *flag.FlagSet) (config.Settings, error) {
	r, err := sf.resolve(fs)
	if err != nil {
		return config.Settings{}, err
	}
	return r.Settings()
}

func storeOptions(s config.Settings) d4.StoreOptions {
	return d4.StoreOptions{
		MinioAccessKey: s.MinioAccessKey,
		MinioSecretKey: s.MinioSecretKey,
		MinioSecure:    s.MinioSecure,
	}
}

// openPipeline opens the configured stores. The output defaults to the input.
func openPipeline(ctx context.Context, s config.Settings) (*d4.Pipeline, error) {
	if s.Input == "" {
		return nil, fmt.Errorf("%w: -input (or %s) is required", errUsage, config.EnvName(config.KeyInput))
	}
	output := s.Output
	if output == "" {
		output = s.Input
	}
	in, err := d4.OpenStore(ctx, s.Input, storeOptions(s))
	if err != nil {
		return nil, err
	}
	out := in
	if output != s.Input {
		out, err = d4.OpenStore(ctx, output, storeOptions(s))
		if err != nil {
			return nil, err
		}
	}
	committer, err := d4.OpenCommitter(ctx, output, s.CommitTable, out)
	if err != nil {
		return nil, err
	}
	opts := append(d4.SettingsOptions(s),
		d4.WithLogger(d4.SettingsLogger(s)),
		d4.WithCommitter(committer),
	)
	return d4.New(in, out, opts...), nil
}

func runEQs(ctx context.Context, args []string, stdout io.Writer) error {
	fs, sf := newFlagSet("eqs", stdout)
	sqlitePath := fs.String("sqlite", "", "read a SQLite database file")
	pgURL := fs.String("postgres", "", "read a PostgreSQL database (connection URL)")
	schema := fs.String("schema", "public", "PostgreSQL schema")
	csvDir := fs.String("csv", "", "read a directory of CSV files (local path or store location)")
	comma := fs.String("comma", ",", "CSV field delimiter")
	tables := fs.String("tables", "", "comma-separated tables to read (default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := sf.settings(fs)
	if err != nil {
		return err
	}
	if s.Output == "" {
		return fmt.Errorf("%w: -output (or %s) is required", errUsage, config.EnvName(config.KeyOutput))
	}
	include := splitList(*tables)
	logger := d4.SettingsLogger(s)

	var r source.Reader
	switch {
	case *sqlitePath != "":
		db, err := sqlite.Open(*sqlitePath, func(o *sqlite.Options) {
			o.Tables = include
			o.Logger = logger.Logger
		})
		if err != nil {
			return err
		}
		defer db.Close()
		r = db
	case *pgURL != "":
		db, err := postgres.Connect(ctx, *pgURL, func(o *postgres.Options) {
			o.Schema = *schema
			o.Tables = include
			o.Logger = logger.Logger
		})
		if err != nil {
			return err
		}
		defer db.Close()
		r = db
	case *csvDir != "":
		if len([]rune(*comma)) != 1 {
			return fmt.Errorf("%w: -comma must be a single character", errUsage)
		}
		store, err := d4.OpenStore(ctx, *csvDir, storeOptions(s))
		if err != nil {
			return err
		}
		r = csvdir.New(store, "", func(o *csvdir.Options) {
			o.Comma = []rune(*comma)[0]
			o.Tables = include
			o.Logger = logger.Logger
		})
	default:
		return fmt.Errorf("%w: one of -sqlite, -postgres or -csv is required", errUsage)
	}

	out, err := d4.OpenStore(ctx, s.Output, storeOptions(s))
	if err != nil {
		return err
	}
	opts := append(d4.SettingsOptions(s), d4.WithLogger(logger))
	idx, err := d4.New(out, out, opts...).BuildIndex(ctx, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "eqs: %d, columns: %d\n", idx.Len(), len(idx.Columns()))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runStep(ctx context.Context, step string, args []string, stdout io.Writer) error {
	fs, sf := newFlagSet(step, stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := sf.settings(fs)
	if err != nil {
		return err
	}
	p, err := openPipeline(ctx, s)
	if err != nil {
		return err
	}

	var n int
	switch step {
	case "signatures":
		n, err = p.Signatures(ctx)
	case "expand":
		cols, e := p.Expand(ctx)
		n, err = len(cols), e
	case "local-domains":
		domains, e := p.LocalDomains(ctx)
		n, err = len(domains), e
	case "strong-domains":
		domains, e := p.StrongDomains(ctx)
		n, err = len(domains), e
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d records\n", step, n)
	return nil
}

func runAll(ctx context.Context, args []string, stdout io.Writer) error {
	fs, sf := newFlagSet("run", stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := sf.settings(fs)
	if err != nil {
		return err
	}
	p, err := openPipeline(ctx, s)
	if err != nil {
		return err
	}
	m, err := p.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run %d committed\n", m.ID)
	for _, step := range d4.Steps()[1:] {
		f := m.Files[step.String()]
		fmt.Fprintf(stdout, "  %-15s %-28s %8d records  %s\n", step, f.Name, f.Records, f.Duration)
	}
	return nil
}

func runStats(ctx context.Context, args []string, stdout io.Writer) error {
	fs, sf := newFlagSet("stats", stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := sf.settings(fs)
	if err != nil {
		return err
	}
	p, err := openPipeline(ctx, s)
	if err != nil {
		return err
	}
	st, err := p.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runConfig(args []string, stdout io.Writer) error {
	fs, sf := newFlagSet("config", stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := sf.resolve(fs)
	if err != nil {
		return err
	}
	if _, err := r.Settings(); err != nil {
		return err
	}
	for _, key := range config.Keys() {
		v := r.Get(key)
		value := v.Value
		if strings.HasSuffix(key, "secret_key") && value != "" {
			value = "***"
		}
		fmt.Fprintf(stdout, "%-26s %-14s %s (%s)\n", key, value, v.Source, v.From)
	}
	return nil
}
