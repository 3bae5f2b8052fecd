package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/formsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   submit endpoint URL
//	-i int      online check interval in seconds
//	-d string   local data directory
//	-l string   listen address of the asset cache
//	-v string   log level (debug, info, warn, error)
//
// Unknown flags are filtered out with flagx.FilterArgs first, so -c/-config
// and flags of other components do not break parsing.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-d", "-l", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.SubmitEndpoint, "a", cfg.SubmitEndpoint, "submit endpoint URL")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.ShellListenAddr, "l", cfg.ShellListenAddr, "asset cache listen address")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
