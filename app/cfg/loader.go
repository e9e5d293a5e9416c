package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	ConfigPath string `short:"c" long:"config" env:"FEEDS_CONFIG" default:"config.yaml" description:"Path to the feeds configuration file"`
	Prefix     string `long:"prefix" env:"PREFIX" description:"Prefix for rewritten identifiers (overrides the config file)"`
	OutDir     string `long:"out-dir" env:"OUT_DIR" default:"." description:"Directory for transformed feeds"`
	Timeout    int    `long:"timeout" env:"FETCH_TIMEOUT" description:"Per-attempt fetch timeout in seconds (overrides the config file)"`
	Retries    int    `long:"retries" env:"FETCH_RETRIES" description:"Fetch attempts per feed (overrides the config file)"`
	CurlPath   string `long:"curl-path" env:"CURL_PATH" default:"curl" description:"curl binary used as fetch fallback"`
	DBPath     string `long:"db-path" env:"DB_PATH" default:"xml-clone.db" description:"SQLite database for run history (empty disables history)"`
	UserAgent  string `long:"user-agent" env:"USER_AGENT" description:"User agent string for HTTP requests"`
	Debug      bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Clone   cloneCmd   `command:"clone" description:"Fetch, transform and write all enabled feeds (default)"`
	Compare compareCmd `command:"compare" description:"Compare stock and price fields of an original and a cloned feed"`
	Serve   serveCmd   `command:"serve" description:"Run scheduled clones and serve results over HTTP"`
}

type cloneCmd struct {
	Only  string `long:"only" description:"Process a single feed key"`
	Pause bool   `long:"pause" env:"PAUSE_ON_EXIT" description:"Wait for Enter before exiting"`
}

type compareCmd struct {
	Args struct {
		Type     string `positional-arg-name:"TYPE" description:"Feed type (ebi, tkt)"`
		Original string `positional-arg-name:"ORIGINAL" description:"Original feed file"`
		Cloned   string `positional-arg-name:"CLONED" description:"Cloned feed file"`
	} `positional-args:"yes" required:"yes"`
}

type serveCmd struct {
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
}

// ErrHelp is returned when usage was printed and the program should exit
var ErrHelp = errors.New("help requested")

// Load parses command-line arguments and environment variables
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if raw.Timeout < 0 || raw.Retries < 0 {
		return nil, fmt.Errorf("timeout and retries must be non-negative")
	}

	cfg := &Cfg{
		Command:    CommandClone,
		ConfigPath: raw.ConfigPath,
		Prefix:     raw.Prefix,
		OutDir:     raw.OutDir,
		Timeout:    time.Duration(raw.Timeout) * time.Second,
		Retries:    raw.Retries,
		CurlPath:   raw.CurlPath,
		DBPath:     raw.DBPath,
		UserAgent:  raw.UserAgent,
		Debug:      raw.Debug,
		Version:    GetVersion(),
	}

	if parser.Active != nil {
		cfg.Command = Command(parser.Active.Name)
	}

	switch cfg.Command {
	case CommandClone:
		cfg.Only = raw.Clone.Only
		cfg.Pause = raw.Clone.Pause
	case CommandCompare:
		cfg.CompareType = raw.Compare.Args.Type
		cfg.CompareOriginal = raw.Compare.Args.Original
		cfg.CompareCloned = raw.Compare.Args.Cloned
	case CommandServe:
		cfg.Port = raw.Serve.Port
		cfg.APIAccessKey = raw.Serve.APIAccessKey
	}

	return cfg, nil
}

// SetupLogger installs the default slog text handler on stderr
func SetupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
