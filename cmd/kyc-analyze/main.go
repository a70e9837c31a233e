package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/internal/app"
	"github.com/joseph-ayodele/kyc-extractor/internal/common"
	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exiting.
func run() int {
	var (
		configPath = flag.String("config", "", "YAML config file (default $KYC_CONFIG)")
		textPath   = flag.String("text", "", "analyze an already-transcribed UTF-8 text file instead of an image")
		narrative  = flag.Bool("narrative", false, "request the AI narrative")
		apiKey     = flag.String("key", "", "chat-completion API key (default $DEEPSEEK_API_KEY)")
		save       = flag.Bool("save", false, "record the analysis in the journal")
		timeout    = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	if (*textPath == "") == (flag.NArg() != 1) {
		fmt.Fprintln(os.Stderr, "usage: kyc-analyze [flags] <image> | kyc-analyze [flags] -text <file.txt>")
		flag.PrintDefaults()
		return 2
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	if *narrative {
		cfg.Narrative.Enabled = true
	}
	logger := common.NewLogger(os.Stderr, cfg.Server.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var opts []app.Option
	if !*save {
		opts = append(opts, app.WithoutJournal())
	}
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		return 1
	}
	defer a.Close()

	doc := pipeline.Document{Narrative: *narrative, Credential: *apiKey}
	path := *textPath
	if path == "" {
		path = flag.Arg(0)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read input", "path", path, "error", err)
		return 1
	}
	doc.Name = filepath.Base(path)
	if *textPath != "" {
		doc.Text = string(raw)
	} else {
		doc.Data = raw
	}

	res, err := a.Analyzer.Analyze(ctx, doc)
	if err != nil {
		logger.Error("analysis failed", "document", doc.Name, "code", common.ErrorCode(err), "error", err)
		return 1
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		logger.Error("encode result", "error", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
