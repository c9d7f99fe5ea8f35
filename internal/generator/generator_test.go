package generator

import (
	"context"
	"testing"

	"github.com/haasonsaas/shammah/pkg/models"
)

type fakeDecoder struct {
	text      string
	tokensIn  int
	tokensOut int
	err       error
}

func (f *fakeDecoder) Decode(ctx context.Context, prompt string, maxNewTokens int, tokenCB func(string)) (string, int, int, error) {
	if tokenCB != nil {
		tokenCB(f.text)
	}
	return f.text, f.tokensIn, f.tokensOut, f.err
}

func TestTryGenerate_PlainText(t *testing.T) {
	g := New(&fakeDecoder{text: "hello there"}, "test-model")
	resp, err := g.TryGenerate(context.Background(), []models.Message{{Role: models.RoleUser, Content: []models.Block{models.TextBlock("hi")}}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Confidence < highConfidence {
		t.Fatalf("expected high confidence for plain text, got %f", resp.Confidence)
	}
}

func TestTryGenerate_ExtractsToolUse(t *testing.T) {
	text := `before <tool_use><name>search</name><parameters>{"q":"go"}</parameters></tool_use> after`
	g := New(&fakeDecoder{text: text}, "m")
	resp, err := g.TryGenerate(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolUses) != 1 || resp.ToolUses[0].Name != "search" {
		t.Fatalf("expected one search tool_use, got %+v", resp.ToolUses)
	}
	if resp.Text != "before  after" && resp.Text != "before after" {
		// stripped text should not contain the tool_use block markup
		if containsToolUseMarkup(resp.Text) {
			t.Fatalf("tool_use block should be stripped from text: %q", resp.Text)
		}
	}
}

func containsToolUseMarkup(s string) bool {
	return len(toolUseBlockRE.FindAllString(s, -1)) > 0
}

func TestTryGenerate_MalformedToolUseFailsWhole(t *testing.T) {
	text := `<tool_use><name>search</name><parameters>{not json}</parameters></tool_use>`
	g := New(&fakeDecoder{text: text}, "m")
	_, err := g.TryGenerate(context.Background(), nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for malformed tool_use JSON")
	}
}

func TestTryGenerate_EmptyTextLowConfidence(t *testing.T) {
	g := New(&fakeDecoder{text: ""}, "m")
	resp, err := g.TryGenerate(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Confidence >= lowConfidence {
		t.Fatalf("expected low confidence for empty text, got %f", resp.Confidence)
	}
}

func TestTryGenerate_ErrorMarkerLowConfidence(t *testing.T) {
	g := New(&fakeDecoder{text: "[Error: device unavailable"}, "m")
	resp, err := g.TryGenerate(context.Background(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Confidence != lowConfidence {
		t.Fatalf("expected low confidence for a local decode error marker, got %f", resp.Confidence)
	}
}
