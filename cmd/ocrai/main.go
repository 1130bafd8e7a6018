package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ocrai/ocrai/internal/analyzer"
	"github.com/ocrai/ocrai/internal/config"
	"github.com/ocrai/ocrai/internal/pipeline"
	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/version"
)

const apiKeyEnvVar = "OPENROUTER_API_KEY"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	pdfDir := flag.String("pdf-dir", "", "directory containing PDF files (overrides config)")
	outputDir := flag.String("output-dir", "", "directory to write converted output (overrides config)")
	dpi := flag.Int("dpi", 0, "rasterization DPI (overrides config)")
	model := flag.String("model", "", "model name to use for analysis (overrides config)")
	apiKey := flag.String("api-key", "", "OpenRouter API key (overrides "+apiKeyEnvVar+")")
	clearOutput := flag.Bool("clear-output", false, "delete the output directory before running")
	saveScans := flag.Bool("save-processed-scans", false, "save cleaned page scans for review")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	debug := flag.Bool("debug", false, "enable debug mode with trace logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo())
		return
	}

	log := logger.New(logger.WithPrefix("[ocrai] "))
	log.SetVerbose(*verbose)

	if *debug {
		log.SetLevel(logger.LevelTrace)
	}

	if *verbose {
		log.Debug("Verbose logging enabled")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Error loading config: %v", err)
	}

	if *pdfDir != "" {
		cfg.PDFSourceDir = *pdfDir
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *dpi != 0 {
		cfg.DPI = *dpi
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *clearOutput {
		cfg.ClearOutput = true
	}
	if *saveScans {
		cfg.SaveProcessedScans = true
	}

	if _, err := os.Stat(cfg.PDFSourceDir); os.IsNotExist(err) {
		log.Fatal("PDF directory does not exist: %s", cfg.PDFSourceDir)
	}

	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	key := *apiKey
	if key == "" {
		key = os.Getenv(apiKeyEnvVar)
	}
	if key == "" {
		log.Fatal("No API key: set %s or pass --api-key", apiKeyEnvVar)
	}

	client := analyzer.NewClient(key, cfg.Model, log)
	pipe := pipeline.New(cfg, client, log)

	report, err := pipe.Run(context.Background())
	report.Print(log)
	if err != nil {
		log.Fatal("Run failed: %v", err)
	}
}
