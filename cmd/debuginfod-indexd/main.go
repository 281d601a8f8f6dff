// Command debuginfod-indexd walks a tree of RPM packages, builds the
// build-id index, and reports the resulting statistics.
//
// The HTTP surface that would normally sit in front of the lookup
// service is out of scope for this core; this entrypoint exists to
// exercise scan → analyze → index-build end to end and to demonstrate
// the ambient config/logging wiring those stages share.
package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/quay/zlog"
	"github.com/rs/zerolog"

	"github.com/quay/rpmdebuginfod/analyze"
	"github.com/quay/rpmdebuginfod/indexbuild"
	"github.com/quay/rpmdebuginfod/scan"
)

// Config uses the goconfig library for simple flag and env var parsing.
// See: https://github.com/crgimenes/goconfig
type Config struct {
	RPMRoot  string `cfgDefault:"." cfg:"RPM_ROOT" cfgHelper:"Root directory to scan for .rpm files"`
	Workers  int    `cfgDefault:"0" cfg:"INDEX_WORKERS" cfgHelper:"Analyzer worker pool width; 0 selects GOMAXPROCS"`
	LogLevel string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`
}

func main() {
	ctx := context.Background()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().
		Logger()

	conf := Config{}
	if err := goconfig.Parse(&conf); err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}

	log = log.Level(logLevel(conf))
	zlog.Set(&log)

	start := time.Now()
	scanned, err := scan.Scan(ctx, conf.RPMRoot)
	if err != nil {
		log.Fatal().Msgf("failed to scan %q: %v", conf.RPMRoot, err)
	}

	raw, err := analyze.AnalyzeAll(ctx, scanned.Paths, conf.Workers)
	if err != nil {
		log.Fatal().Msgf("failed to analyze packages: %v", err)
	}

	ix := indexbuild.Build(ctx, raw)

	zlog.Info(ctx).
		Str("root", conf.RPMRoot).
		Int("rpmsScanned", len(scanned.Paths)).
		Int64("bytesScanned", scanned.TotalBytes).
		Int("packagesAnalyzed", len(raw)).
		Int("debugInfoRecords", len(ix.Records)).
		Int("buildIDs", len(ix.ByBuildID)).
		Dur("elapsed", time.Since(start)).
		Msg("indexing complete")
}

func logLevel(conf Config) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}
