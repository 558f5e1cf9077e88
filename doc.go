// Package stentor is a chat orchestration gateway: one process that
// takes raw user messages, decides how each should be answered, and
// drives the answer through a resilient LLM provider cascade.
//
// Every message is classified into a strategy (llm, rag, agent, tool,
// or command) by a rule-first decision engine, then dispatched to the
// matching subsystem: plain completion, retrieval-grounded completion
// against a vector knowledge base, a configured agent, a tool call, or
// a named tool sequence. Provider failures never surface directly; the
// cascade walks ordered providers behind per-provider circuit breakers
// and returns the first usable answer.
//
// # Quick Start
//
// Install the gateway:
//
//	go install github.com/stentorlabs/stentor/cmd/stentor@latest
//
// Start it against a local ollama with zero configuration:
//
//	stentor serve
//
// Or describe a deployment in YAML:
//
//	providers:
//	  - id: local
//	    adapter: ollama
//	    models: [llama3.2]
//	    primary: true
//	  - id: cloud
//	    adapter: openai
//	    models: [gpt-4o-mini]
//	    api_key: ${OPENAI_API_KEY}
//
//	agents:
//	  - id: analyst
//	    class: code_analyzer
//	    mcp_preference: local
//
// and serve it, with hot reload on edit:
//
//	stentor serve --config stentor.yaml --watch
//
// # Using as a Go Library
//
// The runtime package assembles a configured core that answers chat
// requests in-process, no HTTP involved:
//
//	import (
//	    "github.com/stentorlabs/stentor/pkg/config"
//	    "github.com/stentorlabs/stentor/pkg/orchestrator"
//	    "github.com/stentorlabs/stentor/pkg/runtime"
//	)
//
//	cfg, _ := config.ZeroConfig(config.ZeroConfigOptions{})
//	core, err := runtime.New(ctx, runtime.Options{Config: cfg})
//	if err != nil { ... }
//	defer core.Close(ctx)
//
//	resp, err := core.Chat(ctx, orchestrator.ChatRequest{Message: "2+2?"})
//
// # Key Features
//
//   - Strategy routing: regex rules first, LLM-assisted classification
//     for ambiguous messages, cached decisions
//   - Provider cascade: ordered walk over local and cloud providers
//     with circuit breakers, fallback edges, and model fallthrough
//   - Retrieval: chromem, qdrant, or pinecone knowledge bases with an
//     embedding cascade and token-budgeted context assembly
//   - Tool sequences: templated multi-step chains with retries,
//     parallel groups, and per-step failure policies
//   - Hot reload: file, consul, etcd, or zookeeper config sources with
//     atomic snapshot swaps that never drop an in-flight request
//
// # Architecture
//
// One request flows:
//
//	Client → HTTP server → Orchestrator → Decision Engine
//	       → (cascade | retrieval | agent | tool | sequence) → response
//
// All subsystems log into a shared ring buffer served over SSE, and
// the whole configured world is rebuilt as an immutable snapshot on
// every reload.
package stentor
