package generate

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/pagesmith/internal/attachment"
)

type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range input {
		f.prompts = append(f.prompts, m.Content)
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestClient_HTMLPrompt(t *testing.T) {
	m := &fakeModel{reply: "```html\n<html><body>hi</body></html>\n```\n"}
	c := NewWithModel(m, zerolog.Nop())

	out, err := c.HTML(context.Background(), "Build a counter", []attachment.File{
		{Name: "data.csv", ContentType: "text/csv", Data: []byte("a,b")},
	}, []string{"Page has a #count element"})
	require.NoError(t, err)
	assert.Equal(t, "<html><body>hi</body></html>", out)

	require.Len(t, m.prompts, 1)
	p := m.prompts[0]
	assert.Contains(t, p, `"Build a counter"`)
	assert.Contains(t, p, "- Page has a #count element")
	assert.Contains(t, p, "./data.csv")
	assert.NotContains(t, p, "Existing Code")
}

func TestClient_RevisePrompts(t *testing.T) {
	m := &fakeModel{reply: "updated"}
	c := NewWithModel(m, zerolog.Nop())
	ctx := context.Background()

	_, err := c.ReviseHTML(ctx, "Add dark mode", "<html>old</html>", nil, nil)
	require.NoError(t, err)
	_, err = c.ReviseReadme(ctx, "Add dark mode", "# Old", "<html>new</html>")
	require.NoError(t, err)
	_, err = c.Readme(ctx, "Add dark mode", "<html>new</html>")
	require.NoError(t, err)

	require.Len(t, m.prompts, 3)
	assert.Contains(t, m.prompts[0], "**Existing Code:**")
	assert.Contains(t, m.prompts[0], "<html>old</html>")
	assert.Contains(t, m.prompts[0], "**Attachments:**\nNone")
	assert.Contains(t, m.prompts[1], "update the existing professional README.md")
	assert.Contains(t, m.prompts[1], `"# Old"`)
	assert.Contains(t, m.prompts[2], "write a professional README.md")
	assert.NotContains(t, m.prompts[2], "Existing Readme")
}

func TestClient_ModelError(t *testing.T) {
	c := NewWithModel(&fakeModel{err: errors.New("quota exceeded")}, zerolog.Nop())
	_, err := c.Readme(context.Background(), "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestClean(t *testing.T) {
	cases := map[string]string{
		"  plain  ":                     "plain",
		"```html\n<p>x</p>\n```":        "<p>x</p>",
		"```\n# Title\n\nbody\n```  \n": "# Title\n\nbody",
		"```markdown\n# T":              "# T",
		"":                              "",
		"   \n\t ":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Clean(in), "input %q", in)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{}, zerolog.Nop())
	assert.Error(t, err)
}
