package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Akphawee/accessible-library/internal/helper"
	"github.com/Akphawee/accessible-library/internal/jobs"
	"github.com/Akphawee/accessible-library/internal/library"
	"github.com/Akphawee/accessible-library/internal/models"
)

var serveDrain time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the library open and run commands read from stdin",
	Long: `serve opens the library once and reads one command per line. Jobs run in
the background, so several books can be ingested while another is being
scanned, and a second scan is refused while one is running.

Commands:
  ingest <file>                 start indexing a new book
  scan <book-id>                start a full OCR scan
  reindex <book-id>             start re-embedding a book from its cached pages
  summarize <book-id>           start writing a summary
  questions <book-id>           start building a question bank
  ask <book-id> <question>      answer a question
  library                       list books and categories
  jobs                          list every job of this session
  job <job-id>                  show one job
  wait <job-id>                 block until a job has finished
  quit

On exit, running jobs get --drain to finish.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			s := &session{svc: a.svc, lang: lang, out: cmd.OutOrStdout()}
			err := s.run(ctx, cmd.InOrStdin())

			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serveDrain)
			defer cancel()
			if err := a.svc.Jobs.Shutdown(drainCtx); err != nil {
				log.Warn().Err(err).Msg("Jobs still running at exit")
			}
			return err
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&lang, "lang", models.DefaultLanguage, "language tag of the reader, e.g. th-TH")
	serveCmd.Flags().DurationVar(&serveDrain, "drain", 30*time.Second, "how long running jobs may finish after quit")
}

// session dispatches stdin commands against one open library.
type session struct {
	svc  *library.Service
	lang string
	out  io.Writer
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			quit, err := s.handle(ctx, line)
			if err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

var errUsage = errors.New("usage")

func (s *session) handle(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s needs %d argument(s)", errUsage, name, n)
		}
		return nil
	}

	var job *jobs.Job
	switch name {
	case "quit", "exit":
		return true, nil
	case "ingest":
		if err := need(1); err != nil {
			return false, err
		}
		job, err = s.svc.Ingest(ctx, library.IngestRequest{SourcePath: args[0]})
	case "scan":
		if err := need(1); err != nil {
			return false, err
		}
		job, err = s.svc.Scan(ctx, args[0])
	case "reindex":
		if err := need(1); err != nil {
			return false, err
		}
		job, err = s.svc.Reindex(ctx, args[0])
	case "summarize":
		if err := need(1); err != nil {
			return false, err
		}
		job, err = s.svc.Summarize(ctx, args[0], s.lang)
	case "questions":
		if err := need(1); err != nil {
			return false, err
		}
		var exists bool
		job, exists, err = s.svc.GenerateQuestionBank(ctx, args[0], s.lang)
		if err == nil && exists {
			fmt.Fprintf(s.out, "question bank for %s already exists\n", args[0])
			return false, nil
		}
	case "ask":
		if err := need(2); err != nil {
			return false, err
		}
		answer, err := s.svc.Ask(ctx, args[0], rest(line, 2), s.lang)
		helper.Fprint(s.out, answer)
		return false, err
	case "library":
		books, categories, err := s.svc.Library()
		if err != nil {
			return false, err
		}
		helper.Fprint(s.out, map[string]any{"books": books, "categories": categories})
		return false, nil
	case "jobs":
		helper.Fprint(s.out, s.svc.Jobs.List())
		return false, nil
	case "job", "wait":
		if err := need(1); err != nil {
			return false, err
		}
		job, err := s.svc.Jobs.Get(args[0])
		if err != nil {
			return false, err
		}
		if name == "wait" {
			err = s.svc.Jobs.Wait(ctx, job.ID)
		}
		helper.Fprint(s.out, job.Snapshot())
		return false, err
	default:
		return false, fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	if errors.Is(err, jobs.ErrBusy) {
		return false, fmt.Errorf("another scan is running, try again later: %w", err)
	}
	if err != nil {
		return false, err
	}
	log.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Str("book_id", job.BookID).Msg("Job submitted")
	helper.Fprint(s.out, job.Snapshot())
	return false, nil
}

// rest returns line without its first n fields.
func rest(line string, n int) string {
	line = strings.TrimSpace(line)
	for range n {
		i := strings.IndexFunc(line, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		line = strings.TrimSpace(line[i:])
	}
	return line
}
