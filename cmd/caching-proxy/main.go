package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cachingproxy "github.com/caching-proxy/caching-proxy"
	"github.com/caching-proxy/caching-proxy/accesslog"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFlag         string
	managementFlag     string
	logFilenameFlag    string
	verbosityTraceFlag bool

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Path to YAML config file")
	flag.StringVar(&managementFlag, "management", "", "Address for the management API (empty disables it)")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <port>\n", os.Args[0])
		flag.PrintDefaults()
	}

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// exactly one positional argument: the listening port
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	port := flag.Arg(0)

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var fileConfig cachingproxy.FileConfig
	if configFlag != "" {
		fc, err := cachingproxy.LoadConfigFile(configFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot read config file")
		}
		fileConfig = fc
	}

	cfg := cachingproxy.Config{
		Addr:     ":" + port,
		MaxConns: fileConfig.MaxConns,
		Logger:   &log.Logger,
	}
	if fileConfig.DialTimeoutSeconds > 0 {
		cfg.DialTimeout = time.Duration(fileConfig.DialTimeoutSeconds) * time.Second
	}

	if fileConfig.AccessLog != "" {
		dbFilename := fileConfig.AccessLog
		if dbFilename == "memory" {
			dbFilename = "file::memory:?cache=shared"
		}
		alog, err := accesslog.Open(dbFilename)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot open access log")
		}
		defer alog.Close()
		cfg.AccessLog = alog
	}

	srv := cachingproxy.New(cfg)

	managementAddr := managementFlag
	if managementAddr == "" {
		managementAddr = fileConfig.ManagementAddr
	}
	if managementAddr != "" {
		go func() {
			log.Info().Str("addr", managementAddr).Msg("Management API listening")
			if err := http.ListenAndServe(managementAddr, srv.ManagementHandler()); err != nil {
				log.Error().Err(err).Msg("Management API failed")
			}
		}()
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info().Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown did not finish cleanly")
		}
	}()

	if err := srv.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Proxy server failed")
	}
}
