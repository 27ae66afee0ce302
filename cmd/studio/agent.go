package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/template"

	"github.com/easeaico/studio-memory/internal/memory"
	"github.com/easeaico/studio-memory/internal/tools"
	"github.com/spf13/cobra"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/cmd/launcher"
	"google.golang.org/adk/cmd/launcher/full"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

const maxGuidelines = 20

func newAgentCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "agent [-- launcher args]",
		Short: "Run the studio assistant with memory tools",
		Long: `Run the studio assistant with memory and Notion export tools.

Memory tools and session ingestion both use the launcher session's user,
so an assistant only recalls its own user's memories plus global ones.
--user selects whose guidelines are loaded into the instructions and is
the tools' user when no session user is set; pass the same id the
launcher sessions use.

Arguments after "--" are passed to the ADK launcher, e.g.
  studio agent --user alice -- console
  studio agent -- web api webui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAgent(); err != nil {
				return err
			}
			obs := newObserver(cmd, cfg)
			log := obs.Log()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, store, cleanup, err := newMemoryService(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer cleanup()

			var exporter tools.Exporter
			if exp, err := newExporter(cfg, obs); err != nil {
				log.Warn().Err(err).Msg("Notion export tool disabled")
			} else {
				exporter = exp
			}

			guidelines, err := loadGuidelines(ctx, store, userID)
			if err != nil {
				log.Warn().Err(err).Msg("failed to load guidelines")
			}

			agentTools, err := tools.BuildTools(tools.ToolsConfig{
				Memory:   svc,
				Exporter: exporter,
				UserID:   userID,
				WorkDir:  cfg.WorkDir,
			})
			if err != nil {
				return fmt.Errorf("failed to build tools: %w", err)
			}

			llmModel, err := gemini.NewModel(ctx, cfg.AgentModel, &genai.ClientConfig{
				APIKey:  cfg.APIKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return fmt.Errorf("failed to create LLM model: %w", err)
			}

			studioAgent, err := llmagent.New(llmagent.Config{
				Name:        "studio_assistant",
				Description: "Design studio assistant that remembers clients, projects and decisions",
				Model:       llmModel,
				Instruction: buildSystemPrompt(guidelines, exporter != nil),
				Tools:       agentTools,
			})
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}

			log.Info().
				Int("guidelines", len(guidelines)).
				Int("tools", len(agentTools)).
				Str("model", cfg.AgentModel).
				Msg("agent initialized")

			l := full.NewLauncher()
			if err := l.Execute(ctx, &launcher.Config{
				AgentLoader:   agent.NewSingleLoader(studioAgent),
				MemoryService: svc,
			}, args); err != nil {
				return fmt.Errorf("failed to run agent: %w\n\n%s", err, l.CommandLineSyntax())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", os.Getenv("USER"), "user whose guidelines are loaded; fallback memory scope")

	return cmd
}

// loadGuidelines returns the user's and globally shared procedural memories.
func loadGuidelines(ctx context.Context, store memory.Store, userID string) ([]string, error) {
	found, err := store.FindExact(ctx, memory.Filter{
		UserID:        userID,
		MemoryType:    memory.MemoryTypeProcedural,
		IncludeGlobal: true,
	}, "", maxGuidelines)
	if err != nil {
		return nil, err
	}

	guidelines := make([]string, 0, len(found))
	for _, m := range found {
		guidelines = append(guidelines, m.Content)
	}
	return guidelines, nil
}

var systemPromptTmpl = template.Must(template.New("systemPrompt").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`
You are the studio assistant for a design team.
You help designers keep track of clients, projects, preferences and past decisions.

You can:
1. Recall stored memories with search_memories
2. Remember new facts and decisions with store_memory
3. Browse the work directory with list_directory
{{- if .CanExport }}
4. Export finished PDFs to Notion with export_pdf_to_notion
{{- end }}
{{- if .Guidelines }}

Follow these studio guidelines:
{{- range $idx, $g := .Guidelines }}
{{ inc $idx }}. {{ $g }}
{{- end }}
{{- end }}

When answering:
- Search memories before asking the user for context they may have given before
- Store decisions as short, self-contained facts
- Set global only for knowledge useful to every designer; it is anonymized
- Keep replies concise and actionable
`))

// buildSystemPrompt renders the agent instruction with the given guidelines.
func buildSystemPrompt(guidelines []string, canExport bool) string {
	data := struct {
		Guidelines []string
		CanExport  bool
	}{
		Guidelines: guidelines,
		CanExport:  canExport,
	}

	var buf bytes.Buffer
	_ = systemPromptTmpl.Execute(&buf, data)
	return buf.String()
}
