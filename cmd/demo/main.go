// Command demo assembles the chat orchestration engine's full dependency
// container — Event Bus, Agent Registry/Scheduler, LLM Gateway, Retrieval
// Layer, Prompt Registry, Query Classifier, Quality Controller, Manager
// Orchestrator, and specialist agents — and runs a single query through it,
// printing every Unified Event emitted along the way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/classify"
	"github.com/cortexmesh/orchestrator/config"
	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/llmgateway/provider/anthropic"
	"github.com/cortexmesh/orchestrator/manager"
	"github.com/cortexmesh/orchestrator/prompt"
	"github.com/cortexmesh/orchestrator/quality"
	"github.com/cortexmesh/orchestrator/retrieval"
	"github.com/cortexmesh/orchestrator/session"
	"github.com/cortexmesh/orchestrator/session/inmem"
	"github.com/cortexmesh/orchestrator/specialist"
	"github.com/cortexmesh/orchestrator/telemetry"
)

const (
	providerName = "anthropic"
	chatModel    = "claude-sonnet-4-5"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file (defaults applied when omitted)")
	query := flag.String("query", "What is the capital of France?", "query to send through the orchestrator")
	sessionID := flag.String("session", session.NewID(), "session id to run the query under")
	flag.Parse()

	cfg := config.Defaults()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	logger := telemetry.NewNoopLogger()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		log.Fatal("ANTHROPIC_API_KEY is required")
	}
	anthropicClient, err := anthropic.NewFromAPIKey(apiKey, chatModel)
	if err != nil {
		log.Fatalf("anthropic client: %v", err)
	}

	cache, err := llmgateway.NewCache(cfg.LLMCacheCapacity)
	if err != nil {
		log.Fatalf("llm cache: %v", err)
	}
	gateway, err := llmgateway.NewGateway(
		llmgateway.WithProvider(providerName, anthropicClient),
		llmgateway.WithMiddleware(llmgateway.CacheMiddleware(cache, providerName), llmgateway.RetryMiddleware(2, logger)),
		llmgateway.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	prompts := prompt.NewRegistry()
	registerPrompts(prompts)

	bus := eventbus.NewBus(eventbus.WithBufferSize(cfg.EventSubscriberBuffer), eventbus.WithLogger(logger))

	registry := agent.NewRegistry()
	scheduler := agent.NewScheduler(registry,
		agent.WithMaxConcurrent(cfg.MaxConcurrentTasks),
		agent.WithRetryBound(cfg.SchedulerRetryBound),
		agent.WithEventBus(bus),
		agent.WithLogger(logger),
	)

	layer := retrieval.NewLayer(
		retrieval.WithFanout(cfg.RetrievalFanout),
		retrieval.WithCache(retrieval.NewCache(1024, cfg.RetrievalCacheTTL, "default")),
		retrieval.WithLogger(logger),
	)
	if err := layer.Register("docs", retrieval.NewMemStore(
		retrieval.Document{ID: "paris", Text: "Paris is the capital of France."},
		retrieval.Document{ID: "berlin", Text: "Berlin is the capital of Germany."},
	)); err != nil {
		log.Fatalf("register retrieval store: %v", err)
	}

	classifier, err := classify.New(gateway, providerName, chatModel, prompts, "classify")
	if err != nil {
		log.Fatalf("classifier: %v", err)
	}
	planner := manager.NewPlanner(gateway, providerName, chatModel, prompts, "plan")
	qc := quality.New(gateway, providerName, chatModel, prompts, "validate", quality.WithRetryCeiling(cfg.RetryCeiling))

	store := inmem.New()
	recorder := session.NewRecorder(store)

	orchestrator := manager.New(registry, scheduler, bus, classifier, planner, qc,
		manager.WithSessionRecorder(recorder),
		manager.WithLogger(logger),
		manager.WithRetryCeiling(cfg.RetryCeiling),
		manager.WithTaskTimeout(cfg.TaskTimeout),
		manager.WithSynthesisMode(manager.SynthesisMode(cfg.Synthesis)),
		manager.WithSynthesis(gateway, providerName, chatModel),
	)

	bindSpecialists(registry, scheduler, gateway, layer, prompts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.TaskTimeout+cfg.LLMTimeout)
	defer cancel()

	if _, err := store.CreateSession(ctx, *sessionID, time.Now().UTC()); err != nil {
		log.Fatalf("create session: %v", err)
	}

	sub := bus.Subscribe(*sessionID)
	defer sub.Close()
	go printEvents(sub)

	outcome, err := orchestrator.Handle(ctx, manager.Request{
		SessionID: *sessionID,
		Query:     *query,
		Priority:  5,
	})
	if err != nil {
		log.Fatalf("handle: %v", err)
	}

	fmt.Printf("\nstate=%s intent=%s low_confidence=%v retries=%d\nanswer: %s\n",
		outcome.State, outcome.Intent, outcome.LowConfidence, outcome.RetryCount, outcome.Answer)
}

func printEvents(sub *eventbus.Subscription) {
	for evt := range sub.Events {
		b, _ := json.Marshal(evt)
		fmt.Println(string(b))
	}
}

func bindSpecialists(registry *agent.Registry, scheduler *agent.Scheduler, gateway *llmgateway.Gateway, layer *retrieval.Layer, prompts *prompt.Registry) {
	specialists := []specialist.Specialist{
		specialist.NewChat(gateway, providerName, chatModel, prompts, "chat"),
		specialist.NewTranslate(gateway, providerName, chatModel, prompts, "translate"),
		specialist.NewSummarize(gateway, providerName, chatModel, prompts, "summarize"),
		specialist.NewCompute(gateway, providerName, chatModel, prompts, "compute"),
		specialist.NewRetrieval(layer, gateway, providerName, chatModel, prompts, "retrieval"),
		specialist.NewTool(gateway, providerName, chatModel, prompts, "tool_route", "tool_answer"),
	}
	for _, s := range specialists {
		if err := specialist.Bind(registry, scheduler, s); err != nil {
			log.Fatalf("bind %s: %v", s.Name(), err)
		}
	}
}

func registerPrompts(prompts *prompt.Registry) {
	prompts.Register("classify", strings.TrimSpace(`
Classify the intent of the following query. Reply with strict JSON:
{"intent": "...", "confidence": 0.0, "reason": "..."}
Query: {{query}}
Conversation context: {{context}}
`))
	prompts.Register("plan", strings.TrimSpace(`
Produce an ordered JSON array of steps to answer the query, each
{"agent": "...", "input": {...}}.
Query: {{query}}
`))
	prompts.Register("validate", strings.TrimSpace(`
Judge whether the answer addresses the query using only the given sources.
Reply with strict JSON: {"addressed": true/false, "issues": ["..."]}
Query: {{query}}
Answer: {{answer}}
Sources: {{sources}}
`))
	prompts.Register("chat", "Respond conversationally to: {{query}}")
	prompts.Register("translate", "Translate to {{target_language}}: {{query}}")
	prompts.Register("summarize", "Summarize: {{query}}")
	prompts.Register("compute", "Compute and explain: {{query}}")
	prompts.Register("retrieval", strings.TrimSpace(`
Answer the query using only the sources below, citing them by store:doc_id.
Query: {{query}}
Sources:
{{sources}}
`))
	prompts.Register("tool_route", `Which tool should handle: {{query}}? Reply {"tool": "...", "args": {...}}`)
	prompts.Register("tool_answer", "Phrase this tool result for the user. Query: {{query}} Result: {{result}}")
}
