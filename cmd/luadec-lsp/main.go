// SPDX-License-Identifier: Apache-2.0
package main

import (
	"log"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"luadec/internal/config"
	"luadec/internal/decompiler"
	"luadec/internal/lsp"
)

const lsName = "luadec" // Name identifier for the language server

var (
	version = "0.1.0"        // Server version
	handler protocol.Handler // Protocol handler instance (wired up below)
)

func main() {
	configPath := flag.String("config", "", "path to luadec.toml (default: search upwards from the working directory)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		log.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to the configured file or
	// stderr.
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logFile)

	luadecHandler := lsp.NewHandler(decompiler.Options{
		Dialect:       cfg.Decompile.Dialect,
		Jobs:          cfg.Decompile.Jobs,
		IterationCap:  cfg.Decompile.IterationCap,
		DebugComments: cfg.Decompile.DebugComments,
		Include:       cfg.Decompile.Include,
		Exclude:       cfg.Decompile.Exclude,
	})

	handler = protocol.Handler{
		Initialize:                     luadecHandler.Initialize,
		Initialized:                    luadecHandler.Initialized,
		Shutdown:                       luadecHandler.Shutdown,
		SetTrace:                       luadecHandler.SetTrace,
		TextDocumentDidOpen:            luadecHandler.TextDocumentDidOpen,
		TextDocumentDidClose:           luadecHandler.TextDocumentDidClose,
		TextDocumentDidChange:          luadecHandler.TextDocumentDidChange,
		TextDocumentCompletion:         luadecHandler.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: luadecHandler.TextDocumentSemanticTokensFull,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Printf("Starting luadec LSP server %s...", version)

	if err := s.RunStdio(); err != nil {
		log.Println("Error starting luadec LSP server:", err)
		os.Exit(1)
	}
}
