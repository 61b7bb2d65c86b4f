// Package main provides the BookForge command-line client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/do/v2"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/di"
	"github.com/bookforgeapp/bookforge-client/internal/di/providers"
	"github.com/bookforgeapp/bookforge-client/internal/domain"
	"github.com/bookforgeapp/bookforge-client/internal/export"
	"github.com/bookforgeapp/bookforge-client/internal/library"
	"github.com/bookforgeapp/bookforge-client/internal/logger"
	"github.com/bookforgeapp/bookforge-client/internal/reducer"
	"github.com/bookforgeapp/bookforge-client/internal/session"
)

const usage = `BookForge - AI book generation client

Usage:
  bookforge [flags] <command> [args]

Commands:
  generate    Start a new book generation
  resume      Resume an interrupted generation
  status      Show the backend status of the interrupted session
  cancel      Cancel the interrupted session
  pdf         Download the PDF for a completed book (pdf <usage-id>)
  export      Export an archived book to Markdown (export <book-id>)
  library     List archived books

Run "bookforge -help" for flags.
`

// generation flags; registered before config parsing so everything shares one
// flag set.
var (
	flagPrompt   = flag.String("prompt", "", "What the book should be about (generate)")
	flagTitle    = flag.String("title", "", "Book title (generate)")
	flagAuthor   = flag.String("author", "", "Author name (generate)")
	flagChapters = flag.Int("chapters", 8, "Number of chapters (generate)")
	flagStyle    = flag.String("style", "narrative", "Writing style: narrative, academic, conversational, technical (generate)")
	flagLanguage = flag.String("language", "en", "Content language tag (generate)")
	flagImages   = flag.Bool("images", false, "Request chapter illustrations (generate)")
	flagYes      = flag.Bool("yes", false, "Assume yes on resume confirmation prompts")
	flagPDF      = flag.Bool("pdf", false, "Download the PDF after completion (generate, resume)")
)

func main() {
	injector := di.NewContainer()

	// Bootstrap parses flags (via config loading) and opens storage.
	mgr, err := di.Bootstrap(injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookforge: %v\n", err)
		os.Exit(1)
	}
	log := do.MustInvoke[*logger.Logger](injector)

	command := flag.Arg(0)
	if command == "" {
		fmt.Fprint(os.Stderr, usage)
		shutdown(injector, log)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &app{
		injector: injector,
		mgr:      mgr.Manager,
		client:   do.MustInvoke[*providers.APIClientHandle](injector).Client,
		library:  do.MustInvoke[*providers.LibraryHandle](injector).Library,
		exporter: do.MustInvoke[*export.Exporter](injector),
		log:      log,
	}

	err = app.run(ctx, command, flag.Args()[1:])
	shutdown(injector, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookforge: %v\n", err)
		os.Exit(1)
	}
}

func shutdown(injector *do.RootScope, log *logger.Logger) {
	if err := injector.Shutdown(); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

type app struct {
	injector *do.RootScope
	mgr      *session.Manager
	client   *api.Client
	library  *library.Library
	exporter *export.Exporter
	log      *logger.Logger
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "generate":
		return a.generate(ctx)
	case "resume":
		return a.resume(ctx)
	case "status":
		return a.status(ctx)
	case "cancel":
		return a.cancel(ctx)
	case "pdf":
		if len(args) < 1 {
			return fmt.Errorf("usage: bookforge pdf <usage-id>")
		}
		return a.pdf(ctx, args[0], "")
	case "export":
		if len(args) < 1 {
			return fmt.Errorf("usage: bookforge export <book-id>")
		}
		return a.exportBook(ctx, args[0])
	case "library":
		return a.list(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) generate(ctx context.Context) error {
	// A leftover interrupted session takes priority over a fresh start.
	decision, snapState, err := a.mgr.CheckResume(ctx, time.Now())
	if err != nil {
		return err
	}
	if decision != session.ResumeFresh {
		fmt.Printf("An interrupted generation exists (%d%% complete, %d chapters).\n",
			snapState.Session.Progress, len(snapState.Book.Chapters))
		if decision == session.ResumeAuto || *flagYes || confirm("Resume it instead of starting over?") {
			return a.resumeState(ctx, *snapState)
		}
		if err := a.mgr.Discard(ctx); err != nil {
			return err
		}
	}

	req := domain.GenerationRequest{
		Prompt:        *flagPrompt,
		Title:         *flagTitle,
		Author:        *flagAuthor,
		Chapters:      *flagChapters,
		Style:         *flagStyle,
		Language:      *flagLanguage,
		IncludeImages: *flagImages,
	}

	done := a.installCallbacks(ctx)
	if err := a.mgr.Generate(ctx, req); err != nil {
		return err
	}
	return a.wait(ctx, done)
}

func (a *app) resume(ctx context.Context) error {
	decision, snapState, err := a.mgr.CheckResume(ctx, time.Now())
	if err != nil {
		return err
	}
	if decision == session.ResumeFresh {
		return fmt.Errorf("nothing to resume")
	}
	if decision == session.ResumeAsk && !*flagYes {
		fmt.Printf("This generation has been running for %s.\n",
			snapState.Session.Elapsed(time.Now()).Round(time.Minute))
		if !confirm("Resume anyway?") {
			return a.mgr.Discard(ctx)
		}
	}
	return a.resumeState(ctx, *snapState)
}

func (a *app) resumeState(ctx context.Context, snapState reducer.State) error {
	done := a.installCallbacks(ctx)
	if err := a.mgr.Resume(ctx, snapState); err != nil {
		return err
	}
	st := a.mgr.State()
	if st.Session.Status.Terminal() {
		// Recovery replay already reached the end of the session.
		select {
		case err := <-done:
			return err
		default:
			return nil
		}
	}
	fmt.Printf("Resumed at %d%%.\n", st.Session.Progress)
	return a.wait(ctx, done)
}

// installCallbacks wires progress output and the completion pipeline, and
// returns the channel that reports the session verdict.
func (a *app) installCallbacks(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	lastLine := ""

	a.mgr.SetCallbacks(session.Callbacks{
		OnStateChange: func(st reducer.State) {
			line := fmt.Sprintf("%3d%%  %s", st.Session.Progress, st.Session.Message)
			if line != lastLine {
				fmt.Println(line)
				lastLine = line
			}
		},
		OnConnectionChange: func(connected bool) {
			if connected {
				fmt.Println("Connection restored, catching up...")
			} else {
				fmt.Println("Connection lost; waiting for the backend...")
			}
		},
		OnComplete: func(book domain.Book, usageID string) {
			done <- a.finish(ctx, book, usageID)
		},
		OnError: func(err error) {
			done <- err
		},
	})
	return done
}

// finish archives the completed book, exports it, and optionally downloads
// the PDF.
func (a *app) finish(ctx context.Context, book domain.Book, usageID string) error {
	fmt.Printf("\nDone: %q, %d chapters, %d words.\n",
		book.Metadata.Title, len(book.Chapters), book.WordCount())

	bookID, err := a.library.Archive(ctx, &book, usageID)
	if err != nil {
		a.log.Warn("failed to archive book", "error", err)
	} else {
		fmt.Printf("Archived to library as %s.\n", bookID)
	}

	path, err := a.exporter.Markdown(&book)
	if err != nil {
		a.log.Warn("markdown export failed", "error", err)
	} else {
		fmt.Printf("Markdown: %s\n", path)
	}

	if *flagPDF && usageID != "" {
		if err := a.pdf(ctx, usageID, book.Metadata.Title); err != nil {
			a.log.Warn("pdf download failed", "error", err)
		}
	}
	return nil
}

func (a *app) wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Interrupted: the snapshot survives; resume later.
		a.mgr.Close()
		fmt.Println("\nInterrupted. Run \"bookforge resume\" to continue.")
		return nil
	}
}

func (a *app) status(ctx context.Context) error {
	_, snapState, err := a.mgr.CheckResume(ctx, time.Now())
	if err != nil {
		return err
	}
	if snapState == nil {
		fmt.Println("No session in progress.")
		return nil
	}

	fmt.Printf("Local:   %s, %d%%, %d chapters\n",
		snapState.Session.Status, snapState.Session.Progress, len(snapState.Book.Chapters))

	if snapState.Session.SessionID == "" {
		return nil
	}
	resp, err := a.client.Status(ctx, snapState.Session.SessionID)
	if err != nil {
		return err
	}
	if resp.ProgressInfo != nil {
		fmt.Printf("Backend: %s, %d%%  %s\n", resp.Status, resp.ProgressInfo.Percent, resp.ProgressInfo.Message)
	} else {
		fmt.Printf("Backend: %s\n", resp.Status)
	}
	return nil
}

func (a *app) cancel(ctx context.Context) error {
	_, snapState, err := a.mgr.CheckResume(ctx, time.Now())
	if err != nil {
		return err
	}
	if snapState == nil {
		fmt.Println("No session to cancel.")
		return nil
	}

	if err := a.mgr.Resume(ctx, *snapState); err != nil {
		a.log.Debug("resume before cancel failed, cancelling locally", "error", err)
	}
	resp, err := a.mgr.Cancel(ctx)
	if err != nil {
		return err
	}
	if resp != nil && resp.CreditsRefunded > 0 {
		fmt.Printf("Cancelled; %d credits refunded.\n", resp.CreditsRefunded)
	} else {
		fmt.Println("Cancelled.")
	}
	return nil
}

func (a *app) pdf(ctx context.Context, usageID, title string) error {
	resp, err := a.client.PDF(ctx, usageID)
	if err != nil {
		return err
	}
	path, err := a.exporter.PDF(resp, title)
	if err != nil {
		return err
	}
	fmt.Printf("PDF: %s\n", path)
	return nil
}

func (a *app) exportBook(ctx context.Context, bookID string) error {
	book, err := a.library.Get(ctx, bookID)
	if err != nil {
		return err
	}
	path, err := a.exporter.Markdown(book)
	if err != nil {
		return err
	}
	fmt.Printf("Markdown: %s\n", path)
	return nil
}

func (a *app) list(ctx context.Context) error {
	entries, err := a.library.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Library is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-40q  %2d chapters  %6d words  %s\n",
			e.ID, e.Title, e.Chapters, e.Words, e.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
