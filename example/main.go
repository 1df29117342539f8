package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/urfave/cli/v3"

	"github.com/ivanvanderbyl/stext"
)

func main() {
	cmd := &cli.Command{
		Name:  "stext",
		Usage: "Extract and search structured text in PDF files",
		Commands: []*cli.Command{
			{
				Name:   "text",
				Usage:  "Print the plain text of each page",
				Flags:  commonFlags(),
				Action: printText,
			},
			{
				Name:  "search",
				Usage: "Find a string and print one quad per line fragment of each match",
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:     "needle",
						Aliases:  []string{"n"},
						Usage:    "Text to search for",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum quads reported per page",
						Value: stext.DefaultMaxHits,
					},
				),
				Action: searchText,
			},
			{
				Name:   "json",
				Usage:  "Dump the block, line and character hierarchy of each page as JSON",
				Flags:  commonFlags(),
				Action: dumpJSON,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "Input PDF file path",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "engine",
			Usage: "PDF engine: pdfium or native",
			Value: "pdfium",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML configuration file",
		},
		&cli.IntFlag{
			Name:  "start-page",
			Usage: "Start page number (0-indexed)",
			Value: -1,
		},
		&cli.IntFlag{
			Name:  "end-page",
			Usage: "End page number (0-indexed)",
			Value: -1,
		},
		&cli.BoolFlag{
			Name:  "metrics",
			Usage: "Log extraction timing and statistics",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable debug logging",
		},
	}
}

// session holds an extracted page range and everything needed to release it.
type session struct {
	sctx    *stext.Context
	results []stext.PageResult
	close   func()
}

func openSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := stext.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		loaded, err := stext.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Logger = logger
	if cmd.Bool("metrics") {
		cfg.EnableMetricsLogging = true
	}

	doc, closeDoc, err := openDocument(cmd.String("engine"), cmd.String("input"))
	if err != nil {
		return nil, err
	}

	sctx, err := stext.NewContext(cfg)
	if err != nil {
		closeDoc()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Processing PDF with %d pages...\n", doc.PageCount())

	results, _, err := stext.NewExtractor(sctx).ExtractPageRange(ctx, doc, cmd.Int("start-page"), cmd.Int("end-page"))
	if err != nil {
		sctx.Drop()
		closeDoc()
		return nil, fmt.Errorf("failed to extract pages: %w", err)
	}

	return &session{
		sctx:    sctx,
		results: results,
		close: func() {
			sctx.Drop()
			closeDoc()
		},
	}, nil
}

// openDocument opens input with the selected engine and returns a function
// releasing the document and the engine.
func openDocument(engine, input string) (stext.Document, func(), error) {
	switch engine {
	case "native":
		doc, err := stext.OpenReaderDocument(input)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
		}
		return doc, func() { doc.Close() }, nil

	case "pdfium":
		// Initialise pdfium
		pool, err := webassembly.Init(webassembly.Config{
			MinIdle:  1,
			MaxIdle:  1,
			MaxTotal: 1,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise pdfium: %w", err)
		}

		instance, err := pool.GetInstance(time.Second * 30)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to get pdfium instance: %w", err)
		}

		doc, err := stext.OpenPdfiumDocument(instance, input)
		if err != nil {
			instance.Close()
			pool.Close()
			return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
		}
		return doc, func() {
			doc.Close()
			instance.Close()
			pool.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine %q (want pdfium or native)", engine)
	}
}

func printText(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	for _, res := range s.results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "page %d: text unavailable: %v\n", res.Index+1, res.Err)
			continue
		}

		buf, err := s.sctx.NewBufferFromSTextPage(res.STextPage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "page %d: %v\n", res.Index+1, err)
			continue
		}
		data, err := s.sctx.BufferData(buf)
		if err != nil {
			return err
		}

		fmt.Printf("--- page %d ---\n", res.Index+1)
		os.Stdout.Write(data)
		fmt.Println()

		if err := s.sctx.DropBuffer(buf); err != nil {
			return err
		}
	}
	return nil
}

func searchText(ctx context.Context, cmd *cli.Command) error {
	needle := cmd.String("needle")
	maxHits := cmd.Int("max-hits")

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	total := 0
	for _, res := range s.results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "page %d: text unavailable: %v\n", res.Index+1, res.Err)
			continue
		}

		hits, err := s.sctx.SearchSTextPage(ctx, res.STextPage, needle, maxHits)
		if err != nil {
			return fmt.Errorf("search failed on page %d: %w", res.Index+1, err)
		}

		for _, hit := range hits {
			r := hit.Quad.Rect()
			fmt.Printf("page %d\tmatch %d\t%.2f %.2f %.2f %.2f\n", res.Index+1, hit.Mark, r.X0, r.Y0, r.X1, r.Y1)
		}
		if len(hits) == maxHits {
			fmt.Fprintf(os.Stderr, "page %d: hit limit %d reached, there may be more\n", res.Index+1, maxHits)
		}
		total += len(hits)
	}

	fmt.Fprintf(os.Stderr, "%d quads found\n", total)
	return nil
}

func dumpJSON(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	for _, res := range s.results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "page %d: text unavailable: %v\n", res.Index+1, res.Err)
			continue
		}

		page, err := s.sctx.STextPage(res.STextPage)
		if err != nil {
			return err
		}
		if err := page.WriteJSON(os.Stdout); err != nil {
			return err
		}
	}
	return nil
}
