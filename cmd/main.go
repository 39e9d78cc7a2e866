package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/stellarlink/storygen/internal/app"
	"github.com/stellarlink/storygen/internal/config"
	"github.com/stellarlink/storygen/internal/dispatcher"
	"github.com/stellarlink/storygen/internal/server"
	"github.com/stellarlink/storygen/internal/store"
	"github.com/stellarlink/storygen/internal/workflow"
)

var (
	loadDotEnv         = godotenv.Load
	buildEngine        = app.BuildEngine
	defaultListenServe = http.ListenAndServe
)

const usage = `Usage:
  storygen run <item_id> [--max-iterations N]   run the workflow for one work item
  storygen check-config                         validate configuration without network calls
  storygen serve [--port N]                     start the HTTP API server
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, defaultListenServe); err != nil {
		log.Fatalf("storygen: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "run":
		return runWorkflow(ctx, args[1:], out)
	case "check-config", "--check-config":
		return checkConfig(out)
	case "serve":
		return runServer(ctx, args[1:], serve)
	case "help", "--help", "-h":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runWorkflow(ctx context.Context, args []string, out io.Writer) error {
	itemID, rest, err := splitItemID(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	maxIterations := fs.Int("max-iterations", 0, "maximum number of generation iterations")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	log.Printf("Starting workflow for work item %s", itemID)

	outcome := engine.Run(ctx, workflow.RunRequest{
		ItemID:        itemID,
		MaxIterations: *maxIterations,
	})

	printSummary(out, outcome)

	if outcome.State == workflow.StateFailed {
		return fmt.Errorf("workflow failed: %s", outcome.ErrorNote)
	}
	return nil
}

// splitItemID pulls the positional item id out of the run arguments so flags
// may appear before or after it.
func splitItemID(args []string) (string, []string, error) {
	var itemID string
	var rest []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			rest = append(rest, arg)
			// a flag written as "--name value" keeps its value with it
			if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				rest = append(rest, args[i+1])
				i++
			}
			continue
		}
		if itemID == "" {
			itemID = arg
		} else {
			rest = append(rest, arg)
		}
	}

	if itemID == "" {
		return "", nil, fmt.Errorf("run: work item id is required")
	}
	return itemID, rest, nil
}

func checkConfig(out io.Writer) error {
	cfg := config.LoadLenient()
	fmt.Fprint(out, cfg.Status())

	if missing := cfg.Missing(); len(missing) > 0 {
		return fmt.Errorf("configuration is incomplete: %s", strings.Join(missing, ", "))
	}
	return nil
}

func runServer(ctx context.Context, args []string, serve func(string, http.Handler) error) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", 0, "listen port (overrides PORT)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *port > 0 {
		cfg.Port = *port
	}

	runStore := store.NewStore()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	engine.WithStore(runStore)

	taskDispatcher := dispatcher.New(server.NewWorkflowRunner(engine, runStore), dispatcher.Config{
		Workers:   cfg.DispatcherWorkers,
		QueueSize: cfg.DispatcherQueueSize,
	})
	defer taskDispatcher.Shutdown(ctx)

	handler := server.NewHandler(runStore, taskDispatcher)

	r := mux.NewRouter()
	handler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting storygen server...")
	log.Printf("Tracker: %s", cfg.Tracker)
	log.Printf("Model: %s", cfg.OpenAIModel)
	log.Printf("Server listening on %s", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

func printSummary(out io.Writer, outcome *workflow.Outcome) {
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out, "WORKFLOW SUMMARY")
	fmt.Fprintf(out, "Work item:          %s\n", outcome.ItemID)
	fmt.Fprintf(out, "State:              %s\n", outcome.State)
	fmt.Fprintf(out, "Final score:        %.1f%%\n", outcome.FinalScore)
	fmt.Fprintf(out, "Iterations:         %d\n", outcome.Iterations)
	fmt.Fprintf(out, "Meets threshold:    %v\n", outcome.MeetsThreshold)
	fmt.Fprintf(out, "Attachment created: %v\n", outcome.AttachmentCreated)
	if outcome.AttachmentPath != "" {
		fmt.Fprintf(out, "Generated file:     %s\n", outcome.AttachmentPath)
	}
	if outcome.ParseWarning {
		fmt.Fprintln(out, "Warning:            at least one evaluation response could not be parsed")
	}
	if outcome.ErrorNote != "" {
		fmt.Fprintf(out, "Note:               %s\n", outcome.ErrorNote)
	}
	fmt.Fprintln(out, strings.Repeat("=", 50))
}
