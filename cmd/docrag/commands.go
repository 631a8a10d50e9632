package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/conversation"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/documents"
	"github.com/poiesic/docrag/notify"
	"github.com/poiesic/docrag/reembed"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from DOCRAG_LISTEN, then :8080)",
			},
		},
		Action: func(c *cli.Context) error {
			db, cfg, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			srv, err := db.NewServer()
			if err != nil {
				return err
			}
			addr := c.String("addr")
			if addr == "" {
				addr = cfg.ListenAddr
			}

			describeAI(c.App.ErrWriter, cfg.AI)
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, addr)
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Add text or markdown files as documents",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "title",
				Usage: "Document title (single file only; default is the file name)",
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Tag to attach, may be repeated",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait until the documents are embedded",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return errors.New("at least one file is required")
			}
			if c.String("title") != "" && len(files) > 1 {
				return errors.New("--title needs a single file")
			}

			// Each file raises an upload and an embedding notification.
			db, _, err := openDatabase(c, docrag.WithEvents(2*len(files)))
			if err != nil {
				return err
			}
			defer db.Close()

			ids := make([]core.ID, 0, len(files))
			for _, file := range files {
				content, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				title := c.String("title")
				if title == "" {
					title = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
				}

				id, err := db.Documents().Create(c.Context, documents.NewDocument{
					Title:   title,
					Content: string(content),
					Kind:    kindOf(file),
					Tags:    c.StringSlice("tag"),
				})
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				ids = append(ids, id)
				fmt.Fprintf(c.App.Writer, "Added document %d: %s\n", id, title)
			}

			if !c.Bool("wait") {
				return nil
			}
			db.WaitForEmbeddings()
			for len(db.Events()) > 0 {
				if event := <-db.Events(); event.Type == notify.DocumentEmbedding {
					fmt.Fprintf(c.App.Writer, "%s: %s\n", event.Title, event.Message)
				}
			}

			failed := 0
			for _, id := range ids {
				doc, err := db.Documents().Get(c.Context, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Document %d: %s\n", id, doc.State)
				if !doc.Ready() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d documents were not embedded", failed)
			}
			return nil
		},
	}
}

func kindOf(file string) core.ContentKind {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".md", ".markdown":
		return core.ContentKindMarkdown
	default:
		return core.ContentKindText
	}
}

func embedCommand() *cli.Command {
	return &cli.Command{
		Name:      "embed",
		Usage:     "Embed documents now, waiting for the result",
		ArgsUsage: "ID...",
		Action: func(c *cli.Context) error {
			ids, err := parseIDs(c.Args().Slice())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return errors.New("at least one document id is required")
			}

			db, cfg, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, id := range ids {
				outcome, err := db.Orchestrator().ProcessDocument(c.Context, id, cfg.Ingestion.ProcessOptions())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Document %d: %d of %d units embedded (%s, %d dimensions, %s) in %s\n",
					id, outcome.Embedded, outcome.TotalUnits, outcome.Method, outcome.Dimensions,
					outcome.Model, shortDuration(outcome.Duration))
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List documents, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of documents",
				Value: documents.DefaultPageSize,
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include deleted documents",
			},
		},
		Action: func(c *cli.Context) error {
			db, _, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			page, err := db.Documents().List(c.Context, documents.ListOptions{
				ActiveOnly: !c.Bool("all"),
				PageSize:   c.Int("limit"),
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tKIND\tWORDS\tSTATE\tCREATED")
			for _, doc := range page.Documents {
				state := doc.State.String()
				if !doc.Active {
					state = "deleted"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					doc.Id, doc.Title, doc.Kind, doc.WordCount, state, doc.CreatedAt.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find documents containing the given words",
		ArgsUsage: "WORDS...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: documents.DefaultSearchLimit,
			},
		},
		Action: func(c *cli.Context) error {
			db, _, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			hits, err := db.Documents().Search(c.Context, strings.Join(c.Args().Slice(), " "), c.Int("limit"))
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(c.App.Writer, "No matching documents")
				return nil
			}
			for _, hit := range hits {
				fmt.Fprintf(c.App.Writer, "%.2f\t%d\t%s\n", hit.Score, hit.Document.Id, hit.Document.Title)
			}
			return nil
		},
	}
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question from documents or within a conversation",
		ArgsUsage: "QUESTION",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "doc",
				Usage: "Document id to answer from, may be repeated or comma separated",
			},
			&cli.Uint64Flag{
				Name:  "conversation",
				Usage: "Ask within this conversation and store the exchange",
			},
		},
		Action: func(c *cli.Context) error {
			question := strings.Join(c.Args().Slice(), " ")
			ids, err := parseIDs(c.StringSlice("doc"))
			if err != nil {
				return err
			}
			convID := core.ID(c.Uint64("conversation"))
			if convID == 0 && len(ids) == 0 {
				return errors.New("either --doc or --conversation is required")
			}

			db, _, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			var reply *conversation.Reply
			if convID != 0 {
				reply, err = db.Chat().Ask(c.Context, convID, question)
			} else {
				reply, err = db.Chat().AskDocuments(c.Context, question, ids)
			}
			if err != nil {
				return err
			}
			printReply(c.App.Writer, reply)
			return nil
		},
	}
}

func printReply(w io.Writer, reply *conversation.Reply) {
	if reply.Title != "" {
		fmt.Fprintf(w, "[%s]\n", reply.Title)
	}
	fmt.Fprintln(w, reply.Answer)
	if len(reply.Sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSources (%s):\n", reply.Tier)
	for i, src := range reply.Sources {
		fmt.Fprintf(w, "  [%d] %s (document %d, score %.2f)\n", i+1, src.Title, src.DocumentId, src.Score)
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize the document collection",
		Action: func(c *cli.Context) error {
			db, _, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Documents().Stats(c.Context)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "Documents: %d\n", stats.TotalDocuments)
			fmt.Fprintf(w, "Words: %d\n", stats.TotalWords)
			fmt.Fprintf(w, "Characters: %d\n", stats.TotalSize)
			fmt.Fprintf(w, "Uploaded in the last hour: %d\n", stats.UploadsLastHour)
			fmt.Fprintf(w, "Uploaded in the last day: %d\n", stats.UploadsLastDay)
			fmt.Fprintln(w, "Embedding states:")
			for _, state := range []core.EmbeddingState{core.StateReady, core.StateUnprocessed, core.StateEmbedding, core.StateFailed} {
				fmt.Fprintf(w, "  %s: %d\n", state, stats.States[state])
			}
			return nil
		},
	}
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Embed every document again, for example after changing the embedding model",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of documents to process in each batch",
				Value: reembed.DefaultBatchSize,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N documents",
				Value: 10,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per document",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "pending-only",
				Usage: "Only embed documents that are not ready",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Int("batch-size") <= 0 {
				return fmt.Errorf("batch-size must be greater than 0")
			}
			if c.Int("report-interval") <= 0 {
				return fmt.Errorf("report-interval must be greater than 0")
			}
			if c.Int("max-retries") <= 0 {
				return fmt.Errorf("max-retries must be greater than 0")
			}

			db, cfg, err := openDatabase(c)
			if err != nil {
				return err
			}
			defer db.Close()

			reembedder, err := db.NewReembedder(&reembed.Config{
				BatchSize:      c.Int("batch-size"),
				ReportInterval: c.Int("report-interval"),
				MaxAttempts:    c.Int("max-retries"),
				RetryDelay:     c.Duration("retry-delay"),
				PendingOnly:    c.Bool("pending-only"),
				Options:        cfg.Ingestion.ProcessOptions(),
			}, c.App.ErrWriter)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.DatabasePath)
			describeAI(c.App.ErrWriter, cfg.AI)
			fmt.Fprintln(c.App.ErrWriter)

			report, err := reembedder.Run(c.Context)
			if err != nil {
				return fmt.Errorf("reembedding failed: %w", err)
			}
			if report.Failed > 0 {
				for id, err := range report.Errors {
					fmt.Fprintf(c.App.ErrWriter, "  document %d: %v\n", id, err)
				}
				return fmt.Errorf("%d documents failed to embed", report.Failed)
			}
			return nil
		},
	}
}

// parseIDs parses document ids given as separate or comma separated values.
func parseIDs(values []string) ([]core.ID, error) {
	var ids []core.ID
	for _, value := range values {
		for _, field := range strings.Split(value, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			id, err := strconv.ParseUint(field, 10, 64)
			if err != nil || id == 0 {
				return nil, fmt.Errorf("invalid document id %q", field)
			}
			ids = append(ids, core.ID(id))
		}
	}
	return ids, nil
}
