// Romscript CLI - decodes game script assets and exports their tables.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/romscript/assets"
	"github.com/chazu/romscript/cache"
	"github.com/chazu/romscript/config"
	"github.com/chazu/romscript/extract"
	"github.com/chazu/romscript/luadec"
	"github.com/chazu/romscript/store"
	"github.com/chazu/romscript/translate"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: romscript <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  decode <asset>          Decode a script asset and print its source text\n")
	fmt.Fprintf(os.Stderr, "  dump <asset> <table>    Evaluate a script asset and print a global table as JSON\n")
	fmt.Fprintf(os.Stderr, "  extract [datasets...]   Export datasets as JSON files (default: all)\n")
	fmt.Fprintf(os.Stderr, "  load [datasets...]      Load exported dataset files into the database\n")
	fmt.Fprintf(os.Stderr, "  languages               List the languages available for translation\n\n")
	fmt.Fprintf(os.Stderr, "Known datasets: %s\n\n", strings.Join(extract.Datasets(), ", "))
	fmt.Fprintf(os.Stderr, "Common options:\n")
	fmt.Fprintf(os.Stderr, "  -c dir    Directory containing romscript.toml (default: search upward)\n")
	fmt.Fprintf(os.Stderr, "  -v        Verbose logging\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  romscript decode Table_Item            # Print the decoded table source\n")
	fmt.Fprintf(os.Stderr, "  romscript dump Table_Item Table_Item   # Print the table contents as JSON\n")
	fmt.Fprintf(os.Stderr, "  romscript extract items monsters       # Export two datasets\n")
	fmt.Fprintf(os.Stderr, "  romscript load -tag 2026-08-30         # Import datasets under a tag\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "decode":
		err = runDecode(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "load":
		err = runLoad(os.Args[2:])
	case "languages":
		err = runLanguages(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "romscript: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "romscript: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags adds the options every command shares.
func commonFlags(fs *flag.FlagSet) (configDir *string, verbose *bool) {
	configDir = fs.String("c", "", "directory containing romscript.toml")
	verbose = fs.Bool("v", false, "verbose logging")
	return
}

func setup(configDir string, verbose bool) (*config.Config, error) {
	verbosity := 0
	if verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if configDir != "" {
		return config.Load(configDir)
	}
	c, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = config.Default()
	}
	return c, nil
}

func newDecoder(c *config.Config) *luadec.Decoder {
	return luadec.NewDecoder(c.Runtime(), c.ExtTools())
}

func newLoader(c *config.Config) (*extract.Loader, error) {
	if c.Paths.Assets == "" {
		return nil, fmt.Errorf("no asset directory configured; set paths.assets in romscript.toml")
	}
	src, err := assets.NewDirSource(c.Resolve(c.Paths.Assets))
	if err != nil {
		return nil, err
	}
	return extract.NewLoader(src, newDecoder(c)), nil
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	configDir, verbose := commonFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("decode expects one asset name")
	}

	c, err := setup(*configDir, *verbose)
	if err != nil {
		return err
	}
	l, err := newLoader(c)
	if err != nil {
		return err
	}
	text, err := l.Text(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	configDir, verbose := commonFlags(fs)
	noCache := fs.Bool("no-cache", false, "bypass the decoded table cache")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("dump expects an asset name and a table name")
	}

	c, err := setup(*configDir, *verbose)
	if err != nil {
		return err
	}
	if c.Paths.Assets == "" {
		return fmt.Errorf("no asset directory configured; set paths.assets in romscript.toml")
	}
	src, err := assets.NewDirSource(c.Resolve(c.Paths.Assets))
	if err != nil {
		return err
	}
	obj, err := src.Get(fs.Arg(0))
	if err != nil {
		return err
	}

	dec := newDecoder(c)
	dump := dec.DumpTable
	if !*noCache {
		tableCache, err := cache.Open(c.Resolve(c.Paths.CacheDir))
		if err != nil {
			return err
		}
		dump = cache.NewDumper(tableCache, dec.DumpTable).DumpTable
	}

	v, err := dump(obj.Data, fs.Arg(1))
	if err != nil {
		return err
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configDir, verbose := commonFlags(fs)
	output := fs.String("o", "", "output directory (default: paths.output)")
	languages := fs.String("languages", "", "comma-separated language list (default: discover)")
	extractedAt := fs.String("extracted-at", "", "timestamp to stamp into records (default: now, RFC 3339)")
	fs.Parse(args)

	c, err := setup(*configDir, *verbose)
	if err != nil {
		return err
	}
	l, err := newLoader(c)
	if err != nil {
		return err
	}
	if c.Paths.Translate == "" {
		return fmt.Errorf("no translation directory configured; set paths.translate in romscript.toml")
	}

	var langs []string
	if *languages != "" {
		langs = strings.Split(*languages, ",")
	}
	ts := *extractedAt
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	ctx, err := extract.NewContext(c.Resolve(c.Paths.Translate), langs, ts)
	if err != nil {
		return err
	}

	outputDir := *output
	if outputDir == "" {
		outputDir = c.Resolve(c.Paths.Output)
	}

	names := fs.Args()
	if len(names) == 0 {
		names = extract.Datasets()
	}
	for _, name := range names {
		p, ok := extract.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown dataset %q (known: %s)", name, strings.Join(extract.Datasets(), ", "))
		}
		path, err := p(l, ctx, outputDir)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		fmt.Printf("%s -> %s\n", name, path)
	}
	return nil
}

func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configDir, verbose := commonFlags(fs)
	dataDir := fs.String("d", "", "dataset directory (default: paths.output)")
	tag := fs.String("tag", "", "dataset tag (default: dataset directory name)")
	markLatest := fs.Bool("mark-latest", false, "record this tag as the latest snapshot")
	fs.Parse(args)

	c, err := setup(*configDir, *verbose)
	if err != nil {
		return err
	}

	dir := *dataDir
	if dir == "" {
		dir = c.Resolve(c.Paths.Output)
	}
	datasetTag := *tag
	if datasetTag == "" {
		datasetTag = filepath.Base(dir)
	}

	s, err := store.Open(c.Resolve(c.Store.Path))
	if err != nil {
		return err
	}
	defer s.Close()

	names := fs.Args()
	if len(names) == 0 {
		names = extract.Datasets()
	}
	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name+".json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		res, err := s.LoadFile(name, path, datasetTag)
		if err != nil {
			return fmt.Errorf("loading %s: %w", name, err)
		}
		fmt.Printf("%s: inserted %d new, updated %d, skipped %d unchanged\n",
			name, res.Inserted, res.Updated, res.Skipped)
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no dataset files found in %s", dir)
	}
	if *markLatest {
		if err := s.MarkLatest(datasetTag, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func runLanguages(args []string) error {
	fs := flag.NewFlagSet("languages", flag.ExitOnError)
	configDir, verbose := commonFlags(fs)
	fs.Parse(args)

	c, err := setup(*configDir, *verbose)
	if err != nil {
		return err
	}
	if c.Paths.Translate == "" {
		return fmt.Errorf("no translation directory configured; set paths.translate in romscript.toml")
	}
	langs, err := translate.Languages(c.Resolve(c.Paths.Translate))
	if err != nil {
		return err
	}
	for _, lang := range langs {
		fmt.Println(lang)
	}
	return nil
}
