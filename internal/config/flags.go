package config

import (
	"flag"
	"os"

	"github.com/dkomarov/curio/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   path to the local database file
//	-m string   base URL of the cloud mirror
//	-s bool     enable or disable sync
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-m", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database file")
	fs.StringVar(&cfg.MirrorEndpoint, "m", cfg.MirrorEndpoint, "base URL of the cloud mirror")
	fs.BoolVar(&cfg.SyncEnabled, "s", cfg.SyncEnabled, "enable cloud sync")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
