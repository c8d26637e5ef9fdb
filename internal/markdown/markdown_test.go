package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("# 공지\n\n**중요**한 내용입니다.\n\n- [x] 완료")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<strong>중요</strong>")
	assert.Contains(t, out, "<li>")
}

func TestRenderSanitises(t *testing.T) {
	tests := []struct {
		name   string
		source string
		absent string
	}{
		{"script tag", "hello <script>alert(1)</script>", "<script"},
		{"event handler", `<img src="x.png" onerror="alert(1)">`, "onerror"},
		{"javascript link", "[click](javascript:alert(1))", "javascript:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Render(tt.source)
			require.NoError(t, err)
			assert.NotContains(t, out, tt.absent)
		})
	}
}

func TestRenderEmpty(t *testing.T) {
	out, err := Render("  \n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderKeepsCodeLanguage(t *testing.T) {
	out, err := Render("```go\nfmt.Println(1)\n```")
	require.NoError(t, err)
	assert.Contains(t, out, `class="language-go"`)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "제목 본문 A & B", Excerpt("# 제목\n\n본문 **A & B**", 0))
	assert.Equal(t, "abcde…", Excerpt("abcdefghij", 5))
	assert.Equal(t, "가나다", Excerpt("가나다", 3))
}
