package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/coriolis-labs/conductor/adapters/checkpoint/memstore"
	"github.com/coriolis-labs/conductor/adapters/checkpoint/mongostore"
	"github.com/coriolis-labs/conductor/adapters/checkpoint/redisstore"
	"github.com/coriolis-labs/conductor/adapters/graph/inmemdriver"
	"github.com/coriolis-labs/conductor/adapters/llm/httpcompat"
	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/gateway"
	"github.com/coriolis-labs/conductor/graph"
	"github.com/coriolis-labs/conductor/interrupt"
	"github.com/coriolis-labs/conductor/llm"
	"github.com/coriolis-labs/conductor/registry"
	"github.com/coriolis-labs/conductor/state"
)

var runFlags struct {
	threadID       string
	llmBaseURL     string
	llmAPIKey      string
	model          string
	checkpointKind string
	checkpointDSN  string
	checkpointDB   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process turns read from stdin, one per line",
	Long: `run reads one user message per stdin line and drives each through
gateway.Process and a graph.Driver, printing the assistant's reply, a
pending approval, or a terminal error report for every line.`,
	RunE: runRunE,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.threadID, "thread-id", "cli", "conversation thread ID")
	runCmd.Flags().StringVar(&runFlags.llmBaseURL, "llm-base-url", "http://localhost:11434", "OpenAI-compatible completion endpoint")
	runCmd.Flags().StringVar(&runFlags.llmAPIKey, "llm-api-key", "", "bearer token for the completion endpoint, if required")
	runCmd.Flags().StringVar(&runFlags.model, "model", "mock-model", "model name sent with every completion request")
	runCmd.Flags().StringVar(&runFlags.checkpointKind, "checkpoint", "memory", "checkpoint store: memory, redis, or mongo")
	runCmd.Flags().StringVar(&runFlags.checkpointDSN, "checkpoint-dsn", "", "connection string/address for the redis/mongo checkpoint store")
	runCmd.Flags().StringVar(&runFlags.checkpointDB, "checkpoint-db", "conductor", "database name for the mongo checkpoint store")
	rootCmd.AddCommand(runCmd)
}

func buildCheckpointStore(ctx context.Context) (checkpoint.Store, error) {
	switch runFlags.checkpointKind {
	case "memory", "":
		return memstore.New(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: runFlags.checkpointDSN})
		return redisstore.New(redisstore.Options{Client: client})
	case "mongo":
		client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(runFlags.checkpointDSN))
		if err != nil {
			return nil, fmt.Errorf("conductorctl: connect mongo: %w", err)
		}
		return mongostore.New(mongostore.Options{Client: client, Database: runFlags.checkpointDB})
	default:
		return nil, fmt.Errorf("conductorctl: unknown --checkpoint kind %q", runFlags.checkpointKind)
	}
}

func runRunE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := buildCheckpointStore(ctx)
	if err != nil {
		return err
	}
	reg, err := buildDemoRegistry()
	if err != nil {
		return fmt.Errorf("conductorctl: registry setup: %w", err)
	}
	svc := httpcompat.New(runFlags.llmBaseURL, runFlags.llmAPIKey)
	modelCfg := llm.ModelConfig{Model: runFlags.model, Temperature: 0.2, MaxTokens: 1024, TimeoutMS: 30000}
	driver := &inmemdriver.Driver{
		Registry:     reg,
		Service:      svc,
		ModelConfig:  modelCfg,
		Checkpointer: store,
		Config:       graph.Config{},
	}

	gwCfg := gateway.Config{ThreadID: runFlags.threadID}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		handleTurn(ctx, store, reg, svc, modelCfg, driver, gwCfg, line)
	}
	return scanner.Err()
}

func handleTurn(ctx context.Context, store checkpoint.Store, reg *registry.Registry, svc llm.Service, modelCfg llm.ModelConfig, driver graph.Driver, gwCfg gateway.Config, line string) {
	result := gateway.Process(ctx, store, reg, svc, modelCfg, line, gwCfg)
	if result.Err != nil {
		fmt.Fprintf(os.Stdout, "error: %v\n", result.Err)
		return
	}

	var outcome graph.Outcome
	if result.ResumeCommand != nil {
		suspended, found, err := loadSuspendedState(ctx, store, reg, gwCfg.ThreadID)
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %v\n", err)
			return
		}
		if !found {
			fmt.Fprintln(os.Stdout, "error: no suspended turn to resume")
			return
		}
		outcome = driver.Resume(ctx, suspended, *result.ResumeCommand)
	} else {
		outcome = driver.Run(ctx, result.AgentState)
	}

	printOutcome(outcome)
}

func loadSuspendedState(ctx context.Context, store checkpoint.Store, reg *registry.Registry, threadID string) (state.State, bool, error) {
	snap, found, err := store.Get(ctx, threadID)
	if err != nil || !found {
		return state.State{}, found, err
	}
	s, err := checkpoint.Decode(snap, reg)
	return s, true, err
}

func printOutcome(outcome graph.Outcome) {
	if outcome.Err != nil {
		fmt.Fprintf(os.Stdout, "error: %v\n", outcome.Err)
		return
	}
	if outcome.Suspended {
		printInterrupt(outcome.State.Control.PendingInterrupt)
		return
	}
	if outcome.Report != nil {
		fmt.Fprintf(os.Stdout, "error [%s]: %s\n", outcome.Report.ErrorType, outcome.Report.UserMessage)
		return
	}
	fmt.Fprintln(os.Stdout, lastAssistantMessage(outcome.State))
}

func lastAssistantMessage(s state.State) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return s.Messages[i].Content
		}
	}
	return "(no assistant reply)"
}

func printInterrupt(p *interrupt.Payload) {
	if p == nil {
		fmt.Fprintln(os.Stdout, "suspended (no interrupt payload recorded)")
		return
	}
	fmt.Fprintf(os.Stdout, "approval requested [%s] capability=%s\n", p.Kind, p.CapabilityName)
	if p.Prompt != "" {
		fmt.Fprintln(os.Stdout, p.Prompt)
	}
	if p.Plan != nil {
		yamlBytes, err := p.Plan.MarshalYAML()
		if err == nil {
			fmt.Fprintln(os.Stdout, string(yamlBytes))
		}
	}
	fmt.Fprintln(os.Stdout, "reply approve/reject/edit on the next line to resolve this")
}
