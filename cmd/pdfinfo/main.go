// pdfinfo is a small diagnostic tool: it reports page dimensions and
// embedded image counts for a PDF, which helps when deciding whether a
// scan is worth running through the full pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ocrai/ocrai/internal/pdf"
	"github.com/ocrai/ocrai/pkg/logger"
)

func main() {
	pdfPath := flag.String("file", "", "Path to PDF file")
	flag.Parse()

	if *pdfPath == "" {
		fmt.Println("Please provide a PDF file path using -file flag")
		os.Exit(1)
	}

	fmt.Printf("Analyzing PDF: %s\n", *pdfPath)

	dims, err := api.PageDimsFile(*pdfPath)
	if err != nil {
		fmt.Printf("Error getting page dimensions: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.WithPrefix("[pdfinfo] "), logger.WithFlags(0))
	extractor := pdf.NewSubImageExtractor(log)
	subsByPage, err := extractor.Extract(context.Background(), *pdfPath)
	if err != nil {
		fmt.Printf("Error extracting embedded images: %v\n", err)
		os.Exit(1)
	}

	for i, dim := range dims {
		fmt.Printf("\nPage %d:\n", i+1)
		fmt.Printf("Dimensions (Width x Height): %.3f x %.3f points\n", dim.Width, dim.Height)
		fmt.Printf("Embedded images: %d\n", len(subsByPage[i+1]))
		for _, sub := range subsByPage[i+1] {
			fmt.Printf("  img_%d: %s %dx%d (%d bytes)\n", sub.Index, sub.Format, sub.Width, sub.Height, len(sub.Data))
		}
	}
}
