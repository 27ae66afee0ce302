// Package tools defines ADK tool declarations for the studio assistant:
// recalling and storing memories, browsing the work directory and exporting
// PDFs to Notion.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/easeaico/studio-memory/internal/memory"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// MemoryService is the part of memory.Service the tools use.
type MemoryService interface {
	StoreMemory(ctx context.Context, req memory.StoreMemoryRequest, opts memory.StoreMemoryOptions) (memory.Memory, error)
	EnhancedSearch(ctx context.Context, req memory.SearchRequest) (*memory.EnhancedMemorySearchResult, error)
}

// Exporter exports a PDF file to Notion.
type Exporter interface {
	ExportFile(ctx context.Context, path, title, description string) (json.RawMessage, error)
}

// ToolsConfig holds dependencies for creating tools.
type ToolsConfig struct {
	Memory MemoryService
	// Exporter is optional; the export tool is omitted when nil.
	Exporter Exporter
	// UserID scopes memories when the tool runs outside an agent session.
	UserID  string
	WorkDir string
}

var errOutsideWorkDir = errors.New("access denied: path is outside working directory")

// scopeUserID returns the user of the agent session carried by ctx, so tool
// reads and writes land under the same user as sessions ingested by the
// memory service. fallback is used outside a session.
func scopeUserID(ctx context.Context, fallback string) string {
	if u, ok := ctx.(interface{ UserID() string }); ok && u.UserID() != "" {
		return u.UserID()
	}
	return fallback
}

// --- Tool Input/Output Structs ---

// SearchMemoriesArgs is the input for search_memories tool.
type SearchMemoriesArgs struct {
	Query      string `json:"query" jsonschema:"What to recall, e.g. a client name or design decision"`
	MemoryType string `json:"memory_type,omitempty" jsonschema:"Optional memory type filter: semantic, episodic, procedural, preference or project"`
}

// SearchMemoriesResult is the output for search_memories tool.
type SearchMemoriesResult struct {
	Success bool                               `json:"success"`
	Data    *memory.EnhancedMemorySearchResult `json:"data,omitempty"`
	Error   string                             `json:"error,omitempty"`
}

// StoreMemoryArgs is the input for store_memory tool.
type StoreMemoryArgs struct {
	Content    string `json:"content" jsonschema:"Self-contained fact to remember"`
	MemoryType string `json:"memory_type,omitempty" jsonschema:"semantic, episodic, procedural, preference or project"`
	Global     bool   `json:"global,omitempty" jsonschema:"Share an anonymized copy with all users"`
}

// StoreMemoryResult is the output for store_memory tool.
type StoreMemoryResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ListDirectoryArgs is the input for list_directory tool.
type ListDirectoryArgs struct {
	Path string `json:"path" jsonschema:"Directory to list, relative to the work directory"`
}

// ListDirectoryResult is the output for list_directory tool.
type ListDirectoryResult struct {
	Success bool       `json:"success"`
	Data    []DirEntry `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// DirEntry is one item returned by list_directory.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size,omitempty"`
}

// ExportPDFArgs is the input for export_pdf_to_notion tool.
type ExportPDFArgs struct {
	Filepath    string `json:"filepath" jsonschema:"PDF file to export, relative to the work directory"`
	Title       string `json:"title" jsonschema:"Title of the Notion page"`
	Description string `json:"description,omitempty" jsonschema:"Optional page description"`
}

// ExportPDFResult is the output for export_pdf_to_notion tool.
type ExportPDFResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// --- Tool Handlers ---

func searchMemories(ctx context.Context, cfg ToolsConfig, args SearchMemoriesArgs) SearchMemoriesResult {
	if strings.TrimSpace(args.Query) == "" {
		return SearchMemoriesResult{Success: false, Error: "query is required"}
	}

	res, err := cfg.Memory.EnhancedSearch(ctx, memory.SearchRequest{
		UserID:        scopeUserID(ctx, cfg.UserID),
		Query:         args.Query,
		MemoryType:    memory.MemoryType(args.MemoryType),
		MinSimilarity: 0.5,
	})
	if err != nil {
		return SearchMemoriesResult{Success: false, Error: fmt.Sprintf("failed to search memories: %v", err)}
	}

	return SearchMemoriesResult{Success: true, Data: res}
}

func storeMemory(ctx context.Context, cfg ToolsConfig, args StoreMemoryArgs) StoreMemoryResult {
	m, err := cfg.Memory.StoreMemory(ctx, memory.StoreMemoryRequest{
		UserID:     scopeUserID(ctx, cfg.UserID),
		Content:    args.Content,
		MemoryType: memory.MemoryType(args.MemoryType),
		Metadata:   map[string]any{"source": "agent"},
	}, memory.StoreMemoryOptions{
		AnonymizeForGlobal: args.Global,
		GenerateEmbedding:  true,
	})
	if err != nil {
		return StoreMemoryResult{Success: false, Error: fmt.Sprintf("failed to store memory: %v", err)}
	}

	return StoreMemoryResult{Success: true, ID: m.ID}
}

func listDirectory(cfg ToolsConfig, args ListDirectoryArgs) ListDirectoryResult {
	absPath, err := resolvePath(cfg.WorkDir, args.Path)
	if err != nil {
		return ListDirectoryResult{Success: false, Error: err.Error()}
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return ListDirectoryResult{Success: false, Error: fmt.Sprintf("failed to read directory: %v", err)}
	}

	items := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		item := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			item.Size = info.Size()
		}
		items = append(items, item)
	}

	return ListDirectoryResult{Success: true, Data: items}
}

func exportPDF(ctx context.Context, cfg ToolsConfig, args ExportPDFArgs) ExportPDFResult {
	if args.Filepath == "" {
		return ExportPDFResult{Success: false, Error: "filepath is required"}
	}

	absPath, err := resolvePath(cfg.WorkDir, args.Filepath)
	if err != nil {
		return ExportPDFResult{Success: false, Error: err.Error()}
	}

	data, err := cfg.Exporter.ExportFile(ctx, absPath, args.Title, args.Description)
	if err != nil {
		return ExportPDFResult{Success: false, Error: err.Error()}
	}

	return ExportPDFResult{Success: true, Data: data}
}

// resolvePath resolves p against workDir and rejects anything outside it.
// An empty p resolves to workDir itself.
func resolvePath(workDir, p string) (string, error) {
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("invalid work directory: %v", err)
	}

	if p == "" {
		return absWorkDir, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(absWorkDir, p)
	}
	absPath := filepath.Clean(p)

	rel, err := filepath.Rel(absWorkDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideWorkDir
	}

	return absPath, nil
}

func createSearchMemoriesTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args SearchMemoriesArgs) (SearchMemoriesResult, error) {
		return searchMemories(ctx, cfg, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "search_memories",
		Description: "Recall stored memories about clients, projects and past decisions. Returns literal matches and semantically similar memories.",
	}, handler)
}

func createStoreMemoryTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args StoreMemoryArgs) (StoreMemoryResult, error) {
		return storeMemory(ctx, cfg, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "store_memory",
		Description: "Remember a fact, preference or decision for future sessions.",
	}, handler)
}

func createListDirectoryTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args ListDirectoryArgs) (ListDirectoryResult, error) {
		return listDirectory(cfg, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "list_directory",
		Description: "List files and subdirectories in the work directory, e.g. to find exported PDFs.",
	}, handler)
}

func createExportPDFTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args ExportPDFArgs) (ExportPDFResult, error) {
		return exportPDF(ctx, cfg, args), nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "export_pdf_to_notion",
		Description: "Export a PDF from the work directory to a new Notion page.",
	}, handler)
}

type toolBuilder struct {
	name   string
	create func(ToolsConfig) (tool.Tool, error)
}

// BuildTools creates all agent tools with the given configuration.
func BuildTools(cfg ToolsConfig) ([]tool.Tool, error) {
	builders := []toolBuilder{
		{"search_memories", createSearchMemoriesTool},
		{"store_memory", createStoreMemoryTool},
		{"list_directory", createListDirectoryTool},
	}
	if cfg.Exporter != nil {
		builders = append(builders, toolBuilder{"export_pdf_to_notion", createExportPDFTool})
	}

	tools := make([]tool.Tool, 0, len(builders))
	for _, b := range builders {
		t, err := b.create(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", b.name, err)
		}
		tools = append(tools, t)
	}

	return tools, nil
}
