package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/service/chat"
)

var (
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	titleStyle = lipgloss.NewStyle().Bold(true)
	humanStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Bold(true)
	aiStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true)
)

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderMarkdown falls back to the raw text when no renderer can be built.
func renderMarkdown(content string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// streamPrinter writes the growing text of ai messages as it arrives. Each
// message is tracked by id so repeated snapshots only print what is new.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
	last    string
	quiet   bool
}

func newStreamPrinter(out io.Writer) *streamPrinter {
	return &streamPrinter{out: out, printed: make(map[string]string)}
}

// skip marks the messages as already shown.
func (p *streamPrinter) skip(messages []*models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range messages {
		p.printed[msg.ID] = msg.Content.String()
	}
}

func (p *streamPrinter) onView(view chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet {
		return
	}

	for _, msg := range view.Messages {
		if msg.Role != models.RoleAI {
			continue
		}
		text := msg.Content.String()
		prev := p.printed[msg.ID]
		// A rewritten message is not reprinted.
		if len(text) <= len(prev) || !strings.HasPrefix(text, prev) {
			continue
		}
		if p.last != "" && p.last != msg.ID {
			fmt.Fprintln(p.out)
		}
		fmt.Fprint(p.out, text[len(prev):])
		p.printed[msg.ID] = text
		p.last = msg.ID
	}
}

// finish ends the streamed line if anything was printed.
func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		fmt.Fprintln(p.out)
	}
}

func formatUsage(usage *models.UsageMetadata) string {
	if usage == nil {
		return ""
	}
	return fmt.Sprintf("tokens: %d in / %d out / %d total", usage.InputTokens, usage.OutputTokens, usage.TotalTokens)
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleHuman:
		return humanStyle.Render("you")
	case models.RoleAI:
		return aiStyle.Render("assistant")
	default:
		return mutedStyle.Render(string(role))
	}
}

func lastAIMessage(messages []*models.Message) *models.Message {
	for i := len(messages) - 1; i >= 0; i -= 1 {
		if messages[i].Role == models.RoleAI {
			return messages[i]
		}
	}
	return nil
}
