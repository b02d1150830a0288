// Command tusupload drives one or more tus uploads from the command line.
// It is a thin demonstrator of the session engine: flag parsing, config
// loading, and batch fan-out live here; none of this is part of the
// engine's own contract (see SPEC_FULL.md §A.3).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/auriora/tusclient/cache"
	"github.com/auriora/tusclient/internal/logging"
	"github.com/auriora/tusclient/session"
)

const version = "0.1.0"

func main() {
	var (
		baseURL     = pflag.StringP("url", "u", "", "tus server base URL (required)")
		appName     = pflag.String("app", "", "application namespace for the cache and staging directories")
		logLevel    = pflag.String("log", "", "log level: trace, debug, info, warn, error, fatal")
		token       = pflag.String("token", "", "bearer token attached to every request")
		insecure    = pflag.Bool("insecure-skip-tls", false, "skip TLS certificate verification")
		configPath  = pflag.String("config", defaultConfigPath(), "path to a YAML config file")
		clearCache  = pflag.Bool("clear-cache", false, "discard any existing cache before starting")
		showVersion = pflag.BoolP("version", "v", false, "print the version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Println("tusupload " + version)
		return
	}

	bootstrapLog := logging.New(os.Stderr, logging.InfoLevel, "tusupload")
	cfg := loadConfig(*configPath, bootstrapLog)

	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *appName != "" {
		cfg.AppName = *appName
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *token != "" {
		cfg.BearerToken = *token
	}
	if *insecure {
		cfg.InsecureSkipTLS = true
	}

	if cfg.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "tusupload: --url is required")
		os.Exit(2)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logging.InfoLevel
	}
	log := logging.New(os.Stderr, level, cfg.AppName)

	files := pflag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "tusupload: at least one file path is required")
		os.Exit(2)
	}

	cacheRepo, err := cache.NewJSONRepository(cfg.AppName, *clearCache, log)
	if err != nil {
		log.Error().Err(err).Msg("could not open cache repository")
		os.Exit(1)
	}

	if uploadAll(files, cfg, level, log, cacheRepo) != nil {
		os.Exit(1)
	}
}

// uploadAll runs one independent session per file concurrently. Each
// session owns its own UploadSession, Chunker, and HTTP client; the only
// thing shared is the cache repository, which is already safe for
// concurrent use (see cache.JSONRepository's mutex). This concurrency lives
// entirely in the CLI, not the engine, per the Non-goal against fleet
// management inside a session (spec.md §7).
func uploadAll(files []string, cfg config, level logging.Level, log logging.Logger, cacheRepo cache.Repository) error {
	var g errgroup.Group
	for _, f := range files {
		f := f
		g.Go(func() error {
			s, err := session.New(cfg.AppName, cfg.BaseURL, f, 0, level, cacheRepo, cfg.InsecureSkipTLS)
			if err != nil {
				log.Error().Err(err).Str("file", f).Msg("could not start session")
				return err
			}
			if cfg.BearerToken != "" {
				s.SetBearerToken(cfg.BearerToken)
			}
			ok, err := s.Upload()
			if err != nil {
				log.Error().Err(err).Str("file", f).Msg("upload failed")
				return err
			}
			if !ok {
				return fmt.Errorf("upload of %s did not finish", f)
			}
			log.Info().Str("file", f).Msg("upload finished")
			return nil
		})
	}
	return g.Wait()
}
