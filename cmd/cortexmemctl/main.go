// Command cortexmemctl is a thin CLI harness exercising
// memory.Orchestrator end to end (store, query, consolidate, forget)
// without a transport layer, since the HTTP/RPC surface is explicitly
// out of scope. Grounded on cmd/agentflow/main.go's build-config →
// build-dependencies → construct → run shape, trimmed to a single
// process with no server loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/config"
	"github.com/cortexmem/engine/memory"
	"github.com/cortexmem/engine/storage"
	"github.com/cortexmem/engine/storage/inprocess"
	"github.com/cortexmem/engine/storage/mongo"
	"github.com/cortexmem/engine/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "store":
		runStore(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "consolidate":
		runConsolidate(os.Args[2:])
	case "forget":
		runForget(os.Args[2:])
	case "patterns":
		runPatterns(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonFlags holds the flags every subcommand shares.
type commonFlags struct {
	configPath    string
	episodicMongo string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&cf.episodicMongo, "episodic-mongo", "", "Mongo URI to use for the episodic tier instead of the configured provider")
	return cf
}

// build loads config, opens the storage bundle (optionally swapping in
// a Mongo-backed episodic tier), wraps it with resilient fallback when
// enabled, and constructs an Orchestrator ready for CLI use.
func build(ctx context.Context, cf *commonFlags, logger *zap.Logger) (*memory.Orchestrator, func(), error) {
	loader := config.NewLoader()
	if cf.configPath != "" {
		loader = loader.WithConfigPath(cf.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	bundle, closer, err := storage.Build(ctx, cfg.Storage, cfg.Embeddings.Dimension, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build storage: %w", err)
	}

	var mongoCloser storage.Closer
	if cf.episodicMongo != "" {
		mcfg := mongo.DefaultConfig()
		mcfg.URI = cf.episodicMongo
		episodic, mc, err := storage.BuildMongoEpisodic(ctx, mcfg, logger)
		if err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			return nil, nil, fmt.Errorf("build mongo episodic: %w", err)
		}
		bundle.Episodic = episodic
		mongoCloser = mc
	}

	if cfg.Storage.EnableFallback {
		policy := memory.BackoffPolicy{Base: 0, Factor: 1, MaxRetries: cfg.Storage.MaxRetries}
		fallback := inProcessFallback()
		bundle.Working = memory.NewResilientWorkingRepo(bundle.Working, fallback.Working, policy, logger)
		bundle.Semantic = memory.NewResilientSemanticRepo(bundle.Semantic, fallback.Semantic, policy, logger)
		bundle.Episodic = memory.NewResilientEpisodicRepo(bundle.Episodic, fallback.Episodic, policy, logger)
		bundle.Procedural = memory.NewResilientProceduralRepo(bundle.Procedural, fallback.Procedural, policy, logger)
	}

	metrics := memory.NewMetricsSink(prometheus.DefaultRegisterer)
	orch := memory.NewOrchestrator(cfg, bundle, noopCollaborator{}, metrics, logger)

	cleanup := func() {
		if closer != nil {
			_ = closer.Close()
		}
		if mongoCloser != nil {
			_ = mongoCloser.Close()
		}
	}
	return orch, cleanup, nil
}

func runStore(args []string) {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	cf := addCommonFlags(fs)
	userID := fs.String("user", "", "user id")
	convID := fs.String("conv", "", "conversation id")
	role := fs.String("role", "user", "message role: user, assistant, system")
	content := fs.String("content", "", "message content")
	fs.Parse(args)

	logger := newLogger()
	defer logger.Sync()

	orch, cleanup, err := build(context.Background(), cf, logger)
	if err != nil {
		fail(err)
	}
	defer cleanup()

	if err := orch.CreateConversation(context.Background(), *userID, *convID); err != nil {
		fail(err)
	}

	msg, err := orch.Store(context.Background(), memory.StoreInput{
		UserID:         *userID,
		ConversationID: *convID,
		Role:           types.Role(*role),
		Content:        *content,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("stored message %s (importance=%.2f)\n", msg.ID, msg.ImportanceScore)
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	cf := addCommonFlags(fs)
	userID := fs.String("user", "", "user id")
	convID := fs.String("conv", "", "conversation id")
	q := fs.String("q", "", "query text")
	fs.Parse(args)

	logger := newLogger()
	defer logger.Sync()

	orch, cleanup, err := build(context.Background(), cf, logger)
	if err != nil {
		fail(err)
	}
	defer cleanup()

	memCtx, err := orch.RetrieveContext(context.Background(), *userID, *convID, *q)
	if err != nil {
		fail(err)
	}
	fmt.Printf("working=%d facts=%d archived=%d applied_pattern=%v tokens=%d\n",
		len(memCtx.WorkingMessages), len(memCtx.Facts), len(memCtx.ArchivedMessages), memCtx.AppliedPattern != nil, memCtx.TotalTokens)
	for _, w := range memCtx.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func runConsolidate(args []string) {
	fs := flag.NewFlagSet("consolidate", flag.ExitOnError)
	cf := addCommonFlags(fs)
	userID := fs.String("user", "", "user id")
	convID := fs.String("conv", "", "conversation id")
	fs.Parse(args)

	logger := newLogger()
	defer logger.Sync()

	orch, cleanup, err := build(context.Background(), cf, logger)
	if err != nil {
		fail(err)
	}
	defer cleanup()

	stats, err := orch.Consolidate(context.Background(), *userID, *convID)
	if err != nil {
		fail(err)
	}
	fmt.Printf("working->semantic=%d semantic->episodic=%d episodic->procedural=%d evicted=%d\n",
		stats.WorkingToSemantic, stats.SemanticToEpisodic, stats.EpisodicToProcedural, stats.Evicted)
}

func runForget(args []string) {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	cf := addCommonFlags(fs)
	userID := fs.String("user", "", "user id to forget entirely")
	messageID := fs.String("message", "", "single message id to forget")
	fs.Parse(args)

	logger := newLogger()
	defer logger.Sync()

	orch, cleanup, err := build(context.Background(), cf, logger)
	if err != nil {
		fail(err)
	}
	defer cleanup()

	if *messageID != "" {
		if err := orch.ForgetMessage(context.Background(), *messageID); err != nil {
			fail(err)
		}
		fmt.Printf("forgot message %s\n", *messageID)
		return
	}
	if *userID != "" {
		if err := orch.ForgetUser(context.Background(), *userID); err != nil {
			fail(err)
		}
		fmt.Printf("forgot user %s\n", *userID)
		return
	}
	fmt.Fprintln(os.Stderr, "forget requires -user or -message")
	os.Exit(1)
}

func runPatterns(args []string) {
	fs := flag.NewFlagSet("patterns", flag.ExitOnError)
	cf := addCommonFlags(fs)
	userID := fs.String("user", "", "user id")
	fs.Parse(args)

	logger := newLogger()
	defer logger.Sync()

	orch, cleanup, err := build(context.Background(), cf, logger)
	if err != nil {
		fail(err)
	}
	defer cleanup()

	patterns, err := orch.ListPatterns(context.Background(), *userID)
	if err != nil {
		fail(err)
	}
	for _, p := range patterns {
		fmt.Printf("%s name=%q triggers=%d success=%d failure=%d\n", p.ID, p.Name, len(p.Triggers), p.SuccessCount, p.FailureCount)
	}
}

// inProcessFallback is the target every Resilient*Repo wrapper falls
// back to when enable_fallback is set, regardless of the primary
// provider, matching spec.md §6's "wraps primary with in-process
// fallback".
func inProcessFallback() memory.RepoBundle {
	return inprocess.NewBundle()
}

// noopCollaborator stands in for the external EmbeddingAndCompletion
// collaborator (spec.md §1 names the LLM/embedding provider itself
// out of scope, §6 specifies it only as an interface). Embed,
// ClassifyQuery, ExtractEntities and AnswerWithContext return
// ErrCapabilityMissing, so the orchestrator's best-effort paths (entity
// extraction, surface-classification deferral) behave as if the
// collaborator were simply unavailable; Summarize returns the first
// text and AnalyzeSentiment returns 0.
type noopCollaborator struct{}

func (noopCollaborator) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, types.NewError(types.ErrCapabilityMissing, "no collaborator configured")
}

func (noopCollaborator) ClassifyQuery(ctx context.Context, query string) (types.QueryKind, error) {
	return "", types.NewError(types.ErrCapabilityMissing, "no collaborator configured")
}

func (noopCollaborator) ExtractEntities(ctx context.Context, content string) ([]types.Entity, error) {
	return nil, types.NewError(types.ErrCapabilityMissing, "no collaborator configured")
}

func (noopCollaborator) Summarize(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", nil
	}
	return texts[0], nil
}

func (noopCollaborator) AnswerWithContext(ctx context.Context, query string, ctxMsgs []types.Message) (string, error) {
	return "", types.NewError(types.ErrCapabilityMissing, "no collaborator configured")
}

func (noopCollaborator) AnalyzeSentiment(ctx context.Context, content string) (float64, error) {
	return 0, nil
}

func newLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("cortexmemctl %s (built %s)\n", version, buildTime)
}

func printUsage() {
	fmt.Println(`cortexmemctl - hierarchical memory engine CLI harness

Usage:
  cortexmemctl <command> [options]

Commands:
  store       Store a message (-user -conv -role -content)
  query       Retrieve merged context for a query (-user -conv -q)
  consolidate Run one consolidation cycle for a conversation (-user -conv)
  forget      Delete a message (-message) or all of a user's memory (-user)
  patterns    List a user's learned procedural patterns (-user)
  version     Show version information
  help        Show this help message

Shared options:
  -config <path>          Path to a YAML config file
  -episodic-mongo <uri>   Use a MongoDB episodic tier instead of the configured provider

Examples:
  cortexmemctl store -user u1 -conv c1 -role user -content "remind me to renew the lease"
  cortexmemctl query -user u1 -conv c1 -q "what do I need to renew?"
  cortexmemctl consolidate -user u1 -conv c1
  cortexmemctl forget -user u1`)
}
