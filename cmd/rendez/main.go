// SPDX-License-Identifier: Apache-2.0

// Command rendez runs the scheduling agent loop against a local SQLite store
// and an Ollama (or OpenAI-compatible) reasoning oracle. It is the trusted
// surface: propose and confirm map to the two-phase flow, immediate simulates
// a low-trust channel mention.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rendez-ai/rendez/pkg/audit"
	"github.com/rendez-ai/rendez/pkg/config"
	"github.com/rendez-ai/rendez/pkg/conversation"
	"github.com/rendez-ai/rendez/pkg/core"
	"github.com/rendez-ai/rendez/pkg/engine"
	rendezerrors "github.com/rendez-ai/rendez/pkg/errors"
	"github.com/rendez-ai/rendez/pkg/llm"
	"github.com/rendez-ai/rendez/pkg/orchestrator"
	"github.com/rendez-ai/rendez/pkg/plancache"
	"github.com/rendez-ai/rendez/pkg/reason"
	"github.com/rendez-ai/rendez/pkg/resilience"
	"github.com/rendez-ai/rendez/pkg/telemetry"
	"github.com/rendez-ai/rendez/pkg/tool"

	_ "modernc.org/sqlite"
)

const version = "dev"

type globalFlags struct {
	ConfigPath string
	JSON       bool
	Retry      bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		fatal(err)
	}

	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.Init("rendez", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	app, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer app.Close()

	switch args[0] {
	case "seed":
		app.runSeed(ctx, args[1:])
	case "propose":
		app.runPropose(ctx, global, args[1:])
	case "confirm":
		app.runConfirm(ctx, global, args[1:])
	case "immediate":
		app.runImmediate(ctx, global, args[1:])
	case "tools":
		app.runTools(global, args[1:])
	case "audit":
		app.runAudit(ctx, global, args[1:])
	case "messages":
		app.runMessages(ctx, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Println(version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--retry":
			flags.Retry = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// app holds the wired agent core for one CLI invocation.
type app struct {
	db       *sql.DB
	messages conversation.MessageStore
	audits   audit.Store
	orch     *orchestrator.Orchestrator
	registry *tool.Registry
	sweeper  *plancache.Sweeper
}

func buildApp(cfg *config.Config) (*app, error) {
	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", cfg.Store.Path, err)
	}

	messages, err := conversation.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	cache, err := plancache.NewSQLiteStore(db, cfg.Agent.PlanTTL())
	if err != nil {
		return nil, err
	}
	audits, err := audit.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	for _, capability := range []tool.Tool{tool.NewRestaurant(), tool.NewCinema(), tool.NewCalendar()} {
		if err := registry.Register(capability); err != nil {
			return nil, err
		}
	}

	oracle := llm.NewOllama(llm.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		Cloud:   cfg.LLM.Cloud,
	})
	reasoner := reason.New(oracle, registry, reason.Config{
		IntentTimeout:   cfg.LLM.IntentTimeout(),
		PlanTimeout:     cfg.LLM.PlanTimeout(),
		ResponseTimeout: cfg.LLM.ResponseTimeout(),
	})

	orch := orchestrator.New(
		messages,
		reasoner,
		engine.New(registry, cfg.Agent.MaxConcurrentTools),
		registry,
		cache,
		audits,
		orchestrator.Config{Window: cfg.Agent.Window()},
	)

	sweeper := plancache.NewSweeper(cache, cfg.Agent.SweepInterval())
	sweeper.Start()

	return &app{
		db:       db,
		messages: messages,
		audits:   audits,
		orch:     orch,
		registry: registry,
		sweeper:  sweeper,
	}, nil
}

func (a *app) Close() {
	a.sweeper.Stop()
	_ = a.db.Close()
}

func (a *app) runSeed(ctx context.Context, args []string) {
	cmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	conversationID := cmd.String("conversation", "", "Conversation id")
	from := cmd.String("from", "", "Sender username")
	text := cmd.String("text", "", "Message text")
	mention := cmd.Bool("mention", false, "Mark the message as a direct mention")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *conversationID == "" || *from == "" || *text == "" {
		fatal(fmt.Errorf("usage: rendez seed --conversation <id> --from <user> --text <msg> [--mention]"))
	}

	msg := core.Message{
		Username:  *from,
		Text:      *text,
		Timestamp: time.Now(),
		Source:    "cli",
		IsMention: *mention,
	}
	if err := a.messages.AppendMessage(ctx, *conversationID, msg); err != nil {
		fatal(err)
	}
	fmt.Printf("seeded message in %s\n", *conversationID)
}

func (a *app) runPropose(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("propose", flag.ContinueOnError)
	conversationID := cmd.String("conversation", "", "Conversation id")
	key := cmd.String("key", "", "Idempotency key for safe re-propose")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *conversationID == "" {
		fatal(fmt.Errorf("usage: rendez propose --conversation <id> [--key <key>]"))
	}

	req := orchestrator.Request{
		ConversationID: *conversationID,
		TriggerSource:  "desktop_keybind",
		IdempotencyKey: *key,
	}
	outcome := a.invoke(ctx, global, func() orchestrator.Outcome {
		return a.orch.Propose(ctx, req)
	})
	printOutcome(outcome, global.JSON)
}

func (a *app) runConfirm(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("confirm", flag.ContinueOnError)
	conversationID := cmd.String("conversation", "", "Conversation id")
	var actionIDs multiFlag
	cmd.Var(&actionIDs, "action", "Action id to confirm (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *conversationID == "" || len(actionIDs) == 0 {
		fatal(fmt.Errorf("usage: rendez confirm --conversation <id> --action <id> [--action <id> ...]"))
	}

	outcome := a.orch.ConfirmAndExecute(ctx, orchestrator.Request{
		ConversationID: *conversationID,
		TriggerSource:  "desktop_keybind",
		ActionIDs:      actionIDs,
	})
	printOutcome(outcome, global.JSON)
}

func (a *app) runImmediate(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("immediate", flag.ContinueOnError)
	conversationID := cmd.String("conversation", "", "Conversation id")
	trigger := cmd.String("trigger", "telegram_mention", "Trigger source recorded in the audit trail")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *conversationID == "" {
		fatal(fmt.Errorf("usage: rendez immediate --conversation <id> [--trigger <source>]"))
	}

	req := orchestrator.Request{
		ConversationID: *conversationID,
		TriggerSource:  *trigger,
	}
	outcome := a.invoke(ctx, global, func() orchestrator.Outcome {
		return a.orch.Immediate(ctx, req)
	})
	printOutcome(outcome, global.JSON)
}

// invoke optionally retries a run whose terminal outcome is a retryable
// error. The loop itself never retries; retry policy belongs to the caller.
func (a *app) invoke(ctx context.Context, global globalFlags, run func() orchestrator.Outcome) orchestrator.Outcome {
	if !global.Retry {
		return run()
	}

	var outcome orchestrator.Outcome
	_ = resilience.DefaultRetryConfig().Do(ctx, func() error {
		outcome = run()
		if outcome.Status == orchestrator.StatusError && outcome.ErrorRetryable {
			return rendezerrors.New(outcome.ErrorCode, "orchestration run failed", nil)
		}
		return nil
	})
	return outcome
}

func (a *app) runTools(global globalFlags, args []string) {
	if len(args) == 0 || args[0] != "list" {
		fatal(fmt.Errorf("usage: rendez tools list [--mcp]"))
	}
	cmd := flag.NewFlagSet("tools list", flag.ContinueOnError)
	asMCP := cmd.Bool("mcp", false, "Emit the catalog as MCP tool definitions")
	if err := cmd.Parse(args[1:]); err != nil {
		fatal(err)
	}

	if *asMCP {
		printJSON(tool.DiscoverMCP(a.registry))
		return
	}

	statuses := a.registry.Statuses()
	if global.JSON {
		printJSON(statuses)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "TOOL", "MODE", "DESTRUCTIVE", "READ_ONLY", "AUTH")
	for _, status := range statuses {
		mode := "live"
		if status.MockMode {
			mode = "mock"
		}
		writeRow(writer, status.Name, mode,
			fmt.Sprintf("%t", status.Destructive),
			fmt.Sprintf("%t", status.ReadOnly),
			fmt.Sprintf("%t", status.RequiresAuth))
	}
	_ = writer.Flush()
}

func (a *app) runAudit(ctx context.Context, global globalFlags, args []string) {
	if len(args) == 0 || args[0] != "list" {
		fatal(fmt.Errorf("usage: rendez audit list [--conversation <id>] [--type <action>] [--limit N]"))
	}
	cmd := flag.NewFlagSet("audit list", flag.ContinueOnError)
	conversationID := cmd.String("conversation", "", "Conversation id filter")
	actionType := cmd.String("type", "", "Action type filter")
	limit := cmd.Int("limit", 0, "Maximum records")
	if err := cmd.Parse(args[1:]); err != nil {
		fatal(err)
	}

	records, err := a.audits.List(ctx, audit.Filter{
		ConversationID: *conversationID,
		ActionType:     *actionType,
		Limit:          *limit,
	})
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(records)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "CREATED", "CONVERSATION", "ACTION", "TRIGGER", "SUCCESS", "MS")
	for _, rec := range records {
		writeRow(writer,
			rec.CreatedAt.Format(time.RFC3339),
			rec.ConversationID,
			rec.ActionType,
			rec.TriggerSource,
			fmt.Sprintf("%t", rec.Success),
			fmt.Sprintf("%d", rec.DurationMs))
	}
	_ = writer.Flush()
}

func (a *app) runMessages(ctx context.Context, args []string) {
	if len(args) == 0 || args[0] != "prune" {
		fatal(fmt.Errorf("usage: rendez messages prune --conversation <id> --older-than <duration>"))
	}
	cmd := flag.NewFlagSet("messages prune", flag.ContinueOnError)
	conversationID := cmd.String("conversation", "", "Conversation id")
	olderThan := cmd.Duration("older-than", 24*time.Hour, "Delete messages older than this")
	if err := cmd.Parse(args[1:]); err != nil {
		fatal(err)
	}
	if *conversationID == "" {
		fatal(fmt.Errorf("missing --conversation"))
	}

	removed, err := a.messages.DeleteOlderThan(ctx, *conversationID, time.Now().Add(-*olderThan))
	if err != nil {
		fatal(err)
	}
	fmt.Printf("removed %d messages from %s\n", removed, *conversationID)
}

func printOutcome(outcome orchestrator.Outcome, asJSON bool) {
	if asJSON {
		printJSON(outcome)
		return
	}

	switch outcome.Status {
	case orchestrator.StatusNeedsClarification:
		fmt.Printf("clarification needed: %s\n", outcome.Clarification)
	case orchestrator.StatusError:
		fmt.Printf("error (%s, retryable=%t): %s\n", outcome.ErrorCode, outcome.ErrorRetryable, outcome.Message)
	default:
		if outcome.Intent != nil {
			fmt.Printf("intent: %s (confidence %.2f)\n", outcome.Intent.Activity, outcome.Intent.Confidence)
		}
		if len(outcome.Proposed) > 0 {
			writer := newTabWriter()
			writeRow(writer, "ACTION_ID", "TOOL", "DESCRIPTION")
			for _, call := range outcome.Proposed {
				writeRow(writer, call.ActionID, call.Tool, call.Description)
			}
			_ = writer.Flush()
			if outcome.IdempotencyKey != "" {
				fmt.Printf("idempotency_key=%s\n", outcome.IdempotencyKey)
			}
		}
		for _, res := range outcome.Results {
			status := "ok"
			if !res.Success {
				status = "failed"
				if res.Error != "" {
					status = res.Error
				}
			}
			fmt.Printf("result %s: %s\n", res.Tool, status)
		}
		if outcome.Response != "" {
			fmt.Println(outcome.Response)
		}
	}
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		col = strings.TrimSpace(col)
		if col == "" {
			col = "-"
		}
		cols[i] = strings.Join(strings.Fields(col), " ")
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func printUsage() {
	fmt.Print(`Rendez scheduling agent

Usage:
  rendez [global flags] <command> [args]

Global flags:
  --config <path>   Path to YAML config (RENDEZ_* env vars override)
  --json            JSON output
  --retry           Retry runs that end in a retryable error

Commands:
  seed --conversation <id> --from <user> --text <msg> [--mention]
  propose --conversation <id> [--key <idempotency-key>]
  confirm --conversation <id> --action <id> [--action <id> ...]
  immediate --conversation <id> [--trigger <source>]
  tools list [--mcp]
  audit list [--conversation <id>] [--type <action>] [--limit N]
  messages prune --conversation <id> --older-than <duration>
  version
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
