package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"pdfrag/internal/client"
	"pdfrag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("PDFRAG_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:3000"
	}
	var (
		server  string
		timeout time.Duration
	)
	flag.StringVar(&server, "server", defaultServer, "Base URL of the pdfrag server")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Timeout for each upload or question")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: ragq [--server=URL] [file1.pdf file2.pdf ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	c := client.New(server, timeout)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := c.Health(ctx, false)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server %s unavailable: %v\n", server, err)
		os.Exit(1)
	}

	var summaries []string
	for _, path := range flag.Args() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		res, err := c.UploadFile(ctx, path)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload %s failed: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("indexed %d chunks from %s\n", res.Indexed, res.Source)
		if res.Summary != "" {
			summaries = append(summaries, res.Source+": "+res.Summary)
		}
	}

	m := tui.New(c, strings.Join(summaries, "\n"), timeout)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
