package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/edgeoftrust/watch-relay/internal/model"
)

// ToolEvent is the PreToolUse payload the agent writes to the hook's stdin.
type ToolEvent struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

func ParseToolEvent(r io.Reader) (*ToolEvent, error) {
	var ev ToolEvent
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

var toolsRequiringApproval = map[string]bool{
	"Bash":         true,
	"Edit":         true,
	"Write":        true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

func (e *ToolEvent) RequiresApproval() bool {
	return toolsRequiringApproval[e.ToolName]
}

func (e *ToolEvent) Kind() model.RequestKind {
	switch e.ToolName {
	case "Bash":
		return model.RequestKindBash
	case "Edit", "MultiEdit", "NotebookEdit":
		return model.RequestKindFileEdit
	case "Write":
		return model.RequestKindFileCreate
	case "Read", "Glob", "Grep":
		return model.RequestKindFileRead
	default:
		return model.RequestKindToolUse
	}
}

// destructivePatterns flag commands that can destroy data or escalate
// privileges. Matching is best effort; unmatched bash still lands in the
// medium tier and needs approval either way.
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bdd\s+.*\bof=`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bshutdown\b|\breboot\b`),
	regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]+\s+)*777\b`),
	regexp.MustCompile(`\bgit\s+push\s+.*(--force|-f)\b`),
	regexp.MustCompile(`\bdrop\s+(table|database)\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`\btruncate\s+-s\s*0\b`),
}

func (e *ToolEvent) RiskTier() model.RiskTier {
	switch e.Kind() {
	case model.RequestKindBash:
		cmd := strings.ToLower(e.Command())
		for _, p := range destructivePatterns {
			if p.MatchString(cmd) {
				return model.RiskTierHigh
			}
		}
		return model.RiskTierMedium
	case model.RequestKindFileRead:
		return model.RiskTierLow
	default:
		return model.RiskTierMedium
	}
}

// Title builds the short line shown on the watch face.
func (e *ToolEvent) Title() string {
	switch e.ToolName {
	case "Bash":
		firstLine := strings.SplitN(e.Command(), "\n", 2)[0]
		return "Run: " + truncate(firstLine, 40)
	case "Edit", "MultiEdit":
		return "Edit: " + baseName(e.inputString("file_path"))
	case "Write":
		return "Create: " + baseName(e.inputString("file_path"))
	case "NotebookEdit":
		return "Edit: " + baseName(e.inputString("notebook_path"))
	default:
		return e.ToolName
	}
}

func (e *ToolEvent) Description() string {
	switch e.ToolName {
	case "Bash":
		return truncate(e.Command(), 200)
	case "Edit":
		old := truncate(e.inputString("old_string"), 30)
		new := truncate(e.inputString("new_string"), 30)
		if old != "" && new != "" {
			return fmt.Sprintf("'%s' -> '%s'", old, new)
		}
		return "Edit file content"
	case "Write":
		return fmt.Sprintf("Write %d characters", len(e.inputString("content")))
	case "MultiEdit":
		edits, _ := e.ToolInput["edits"].([]any)
		return fmt.Sprintf("%d edits", len(edits))
	default:
		return ""
	}
}

func (e *ToolEvent) FilePath() string {
	if p := e.inputString("file_path"); p != "" {
		return p
	}
	return e.inputString("notebook_path")
}

func (e *ToolEvent) Command() string {
	return e.inputString("command")
}

func (e *ToolEvent) inputString(key string) string {
	s, _ := e.ToolInput[key].(string)
	return s
}

func baseName(p string) string {
	if p == "" {
		return "unknown"
	}
	return path.Base(p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
