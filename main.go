package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/fragring/cmd"
	"github.com/tphakala/fragring/internal/buildinfo"
	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/telemetry"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = ""
	buildDate = ""
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := buildinfo.NewContext(version, buildDate)
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(settings, info)
	err := rootCmd.ExecuteContext(ctx)

	// Flush pending error reports before exit
	telemetry.Shutdown(2 * time.Second)

	if err != nil {
		return 1
	}
	return 0
}
