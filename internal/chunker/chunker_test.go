package chunker

import (
	"strings"
	"testing"

	"github.com/arturoeanton/go-code-retriever/internal/domain"
)

var fooLines = []string{
	"function Foo() {",
	"  const [count, setCount] = useState(0);",
	"  const [open, setOpen] = useState(false);",
	"  if (count > 10) {",
	"    setOpen(true);",
	"  }",
	"  const label = open ? 'open' : 'closed';",
	"  const doubled = count * 2;",
	"  const tripled = count * 3;",
	"  const total = doubled + tripled;",
	"  console.log(total);",
	"  return (",
	"    <button onClick={() => setCount(count + 1)}>{label}</button>",
	"  );",
	"}",
}

var barLines = []string{
	"const Bar = () => {",
	"  const label = 'bar';",
	"  const upper = label.toUpperCase();",
	"  const size = upper.length;",
	"  if (size > 2) {",
	"    console.log(upper);",
	"  }",
	"  const result = upper + size;",
	"  return result;",
	"};",
}

func fortyLineFile() string {
	lines := append([]string{}, fooLines...)
	lines = append(lines, barLines...)
	lines = append(lines, "export default Foo;")
	for i := 0; len(lines) < 40; i++ {
		lines = append(lines, "// trailing note "+strings.Repeat("x", i%5))
	}
	return strings.Join(lines, "\n")
}

func assertWellFormed(t *testing.T, chunks []domain.Chunk) {
	t.Helper()
	for i, c := range chunks {
		if c.StartLine > c.EndLine {
			t.Fatalf("chunk %d: start %d > end %d", i, c.StartLine, c.EndLine)
		}
		if strings.TrimSpace(c.Text) == "" {
			t.Fatalf("chunk %d is empty", i)
		}
		if got := len(strings.Split(c.Text, "\n")); got != c.EndLine-c.StartLine+1 {
			t.Fatalf("chunk %d: %d lines of text for range %d-%d", i, got, c.StartLine, c.EndLine)
		}
	}
}

func assertGapless(t *testing.T, chunks []domain.Chunk, totalLines int) {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatalf("expected chunks")
	}
	if chunks[0].StartLine != 1 {
		t.Fatalf("first chunk starts at %d", chunks[0].StartLine)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartLine != chunks[i-1].EndLine+1 {
			t.Fatalf("gap or overlap between chunk %d (%d-%d) and %d (%d-%d)",
				i-1, chunks[i-1].StartLine, chunks[i-1].EndLine, i, chunks[i].StartLine, chunks[i].EndLine)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndLine != totalLines {
		t.Fatalf("last chunk ends at %d, want %d", last.EndLine, totalLines)
	}
}

func TestChunkSplitOnBlocksFortyLineFile(t *testing.T) {
	code := fortyLineFile()
	chunks := ChunkWithOptions(code, "App.jsx", Options{MaxChunkSize: 500, SplitOnBlocks: true})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	assertWellFormed(t, chunks)
	assertGapless(t, chunks, 40)

	if chunks[0].StartLine != 1 || chunks[0].EndLine != 15 {
		t.Fatalf("Foo chunk covers %d-%d, want 1-15", chunks[0].StartLine, chunks[0].EndLine)
	}
	if chunks[1].StartLine != 16 || chunks[1].EndLine != 25 {
		t.Fatalf("Bar chunk covers %d-%d, want 16-25", chunks[1].StartLine, chunks[1].EndLine)
	}
	if chunks[0].Type != domain.ChunkTypeReactHook {
		t.Fatalf("Foo chunk type = %s, want react_hook", chunks[0].Type)
	}
	if chunks[1].Type != domain.ChunkTypeCodeBlock {
		t.Fatalf("Bar chunk type = %s, want code_block", chunks[1].Type)
	}
	if chunks[2].Type != domain.ChunkTypeModuleExport {
		t.Fatalf("tail chunk type = %s, want module_export", chunks[2].Type)
	}
	for _, c := range chunks {
		if c.Language != domain.LanguageJSX || c.Filename != "App.jsx" {
			t.Fatalf("unexpected file metadata: %+v", c)
		}
	}
}

func TestChunkSizeOnlyCoversInput(t *testing.T) {
	code := fortyLineFile()
	for _, limit := range []int{40, 120, 300, 500, 10000} {
		chunks := Chunk(code, "App.jsx", limit)
		assertWellFormed(t, chunks)
		assertGapless(t, chunks, 40)
	}
}

func TestChunkFlushesBeforeOverflow(t *testing.T) {
	line := strings.Repeat("a", 100)
	code := strings.Join([]string{line, line, line, line, line}, "\n")

	chunks := Chunk(code, "a.js", 250)
	want := [][2]int{{1, 2}, {3, 4}, {5, 5}}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		if chunks[i].StartLine != w[0] || chunks[i].EndLine != w[1] {
			t.Fatalf("chunk %d covers %d-%d, want %d-%d", i, chunks[i].StartLine, chunks[i].EndLine, w[0], w[1])
		}
	}
}

func TestChunkOversizedLineKeptWhole(t *testing.T) {
	long := "const big = '" + strings.Repeat("z", 800) + "';"
	code := "let a = 1;\n" + long + "\nlet b = 2;"

	chunks := Chunk(code, "big.js", 500)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].Text != long || chunks[1].StartLine != 2 || chunks[1].EndLine != 2 {
		t.Fatalf("oversized line was not kept as its own chunk: %+v", chunks[1])
	}
}

func TestChunkDropsWhitespaceBuffers(t *testing.T) {
	if got := Chunk("", "empty.ts", 500); len(got) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(got))
	}
	if got := Chunk("\n   \n\t\n", "blank.ts", 500); len(got) != 0 {
		t.Fatalf("expected no chunks for blank input, got %d", len(got))
	}

	padding := strings.Repeat(" ", 30)
	code := strings.Join([]string{padding, padding, "let x = 1;"}, "\n")
	chunks := Chunk(code, "pad.js", 35)
	if len(chunks) != 1 || chunks[0].StartLine != 3 {
		t.Fatalf("expected only the code line to survive, got %+v", chunks)
	}
}

func TestChunkDefaultsNonPositiveSize(t *testing.T) {
	code := fortyLineFile()
	a := Chunk(code, "a.js", 0)
	b := Chunk(code, "a.js", DefaultMaxChunkSize)
	if len(a) != len(b) {
		t.Fatalf("size 0 should fall back to default: %d vs %d chunks", len(a), len(b))
	}
}

func TestDetectType(t *testing.T) {
	cases := []struct {
		code string
		want domain.ChunkType
	}{
		{"useEffect(() => {}, [])", domain.ChunkTypeReactHook},
		{"const [a, b] = useState(1); export function Component() {}", domain.ChunkTypeReactHook},
		{"function MyComponent() { return null }", domain.ChunkTypeReactComponent},
		{"class App extends React.Component {}", domain.ChunkTypeClassComponent},
		{"function render() {}", domain.ChunkTypeCodeBlock},
		{"interface Props { name: string }", domain.ChunkTypeTypeScriptDefinition},
		{"const x = typeof y;", domain.ChunkTypeTypeScriptDefinition},
		{"export const a = 1;", domain.ChunkTypeModuleExport},
		{"import React from 'react';", domain.ChunkTypeImportStatement},
		{"let a = 1 + 2;", domain.ChunkTypeCodeBlock},
	}
	for _, tc := range cases {
		if got := DetectType(tc.code); got != tc.want {
			t.Errorf("DetectType(%q) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := map[string]domain.Language{
		"App.tsx":       domain.LanguageJSX,
		"App.jsx":       domain.LanguageJSX,
		"util.ts":       domain.LanguageTypeScript,
		"index.js":      domain.LanguageJavaScript,
		"README":        domain.LanguageJavaScript,
		"hooks.test.ts": domain.LanguageTypeScript,
	}
	for name, want := range cases {
		if got := DetectLanguage(name); got != want {
			t.Errorf("DetectLanguage(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestIsSourceFile(t *testing.T) {
	for _, name := range []string{"a.js", "a.jsx", "a.ts", "a.tsx"} {
		if !IsSourceFile(name) {
			t.Errorf("expected %s to be a source file", name)
		}
	}
	for _, name := range []string{"a.css", "a.json", "a.md", "Makefile"} {
		if IsSourceFile(name) {
			t.Errorf("expected %s to be rejected", name)
		}
	}
}

func TestIsBlockStart(t *testing.T) {
	yes := []string{
		"function Foo() {",
		"  const Bar = () => {",
		"class Store {",
		"export default App;",
		"interface Props {",
		"type Id = string;",
	}
	no := []string{
		"const [a, setA] = useState(0);",
		"return (",
		"// function in a comment",
		"exported = true",
	}
	for _, l := range yes {
		if !IsBlockStart(l) {
			t.Errorf("expected block start: %q", l)
		}
	}
	for _, l := range no {
		if IsBlockStart(l) {
			t.Errorf("unexpected block start: %q", l)
		}
	}
}
