// ABOUTME: Tool registry mapping names to schemas and executors
// ABOUTME: Execution never fails past the registry; errors become result text
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnknownTool is returned when no tool is registered under a name
var ErrUnknownTool = errors.New("unknown tool")

// ErrInvalidArguments is returned when tool arguments are not a JSON object
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Tool is one callable capability offered to the model
type Tool struct {
	Name        string
	Description string

	// Parameters is a JSON schema object
	Parameters map[string]interface{}
	Execute    func(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds the tools available to the execution loop
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions renders every tool as an OpenAI function definition, sorted by name
func (r *Registry) Definitions() []openai.Tool {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]openai.Tool, 0, len(names))
	for _, n := range names {
		t := r.tools[n]
		params := t.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// Execute runs the named tool with raw JSON arguments. The returned string is
// always suitable as a tool result: on failure it describes the error, and
// err reports the same failure for logging and metrics.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) (result string, err error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, name)
		return errorResult(err), err
	}

	args := map[string]interface{}{}
	if strings.TrimSpace(rawArgs) != "" {
		if jerr := json.Unmarshal([]byte(rawArgs), &args); jerr != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidArguments, jerr)
			return errorResult(err), err
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
			result = errorResult(err)
		}
	}()

	out, err := t.Execute(ctx, args)
	if err != nil {
		return errorResult(err), err
	}
	return out, nil
}

func errorResult(err error) string {
	return "Error: " + err.Error()
}

// StringArg returns a trimmed string argument or ""
func StringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// IntArg returns an integer argument or def. JSON numbers decode as float64.
func IntArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
