package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zjregee/alterchat/internal/models"
	"github.com/zjregee/alterchat/internal/service/chat"
)

func aiText(id, text string) *models.Message {
	return &models.Message{ID: id, Role: models.RoleAI, Content: models.TextContent(text)}
}

func TestStreamPrinterPrintsDeltas(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out)

	human := &models.Message{ID: "h1", Role: models.RoleHuman, Content: models.TextContent("hi")}
	p.onView(chat.View{Messages: []*models.Message{human}})
	p.onView(chat.View{Messages: []*models.Message{human, aiText("a1", "")}})
	p.onView(chat.View{Messages: []*models.Message{human, aiText("a1", "Hel")}})
	p.onView(chat.View{Messages: []*models.Message{human, aiText("a1", "Hello")}})
	p.onView(chat.View{Messages: []*models.Message{human, aiText("a1", "Hello")}})
	p.onView(chat.View{Messages: []*models.Message{human, aiText("a1", "Hello"), aiText("a2", "again")}})
	p.finish()

	assert.Equal(t, "Hello\nagain\n", out.String())
}

func TestStreamPrinterSkipsKnownMessages(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out)

	old := aiText("a0", "earlier")
	p.skip([]*models.Message{old})
	p.onView(chat.View{Messages: []*models.Message{old, aiText("a1", "new")}})
	p.onView(chat.View{Messages: []*models.Message{old, aiText("a1", "rewritten")}})
	p.finish()

	assert.Equal(t, "new\n", out.String())
}

func TestStreamPrinterQuiet(t *testing.T) {
	var out bytes.Buffer
	p := newStreamPrinter(&out)
	p.quiet = true

	p.onView(chat.View{Messages: []*models.Message{aiText("a1", "Hello")}})
	p.finish()
	assert.Empty(t, out.String())
}

func TestFormatUsage(t *testing.T) {
	assert.Empty(t, formatUsage(nil))
	assert.Equal(t, "tokens: 1 in / 2 out / 3 total", formatUsage(&models.UsageMetadata{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", shorten("abc", 3))
	assert.Equal(t, "ab...", shorten("abc", 2))
	assert.Equal(t, "字字...", shorten("字字字", 2))
}
