package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernelapi/pkg/api"
	"kernelapi/pkg/kernel"
	"kernelapi/pkg/llm/llmtest"
)

func seededMemory(t *testing.T) *Memory {
	t.Helper()
	docs, err := Corpus()
	require.NoError(t, err)

	m := New(NewVolatileStore(), NewLocalEmbedder(0), 3)
	n, err := m.Seed(context.Background(), docs)
	require.NoError(t, err)
	require.Positive(t, n)
	return m
}

func TestCorpus(t *testing.T) {
	docs, err := Corpus()
	require.NoError(t, err)
	require.Len(t, docs, 5)
	for _, d := range docs {
		assert.True(t, strings.HasSuffix(d.Name, ".md"))
		assert.NotEmpty(t, strings.TrimSpace(d.Text))
	}
}

func TestChunk(t *testing.T) {
	t.Run("packs paragraphs up to the limit", func(t *testing.T) {
		text := "aaaa\n\nbbbb\n\ncccc"
		assert.Equal(t, []string{"aaaa\n\nbbbb", "cccc"}, Chunk(text, 10))
	})

	t.Run("splits long paragraphs on words", func(t *testing.T) {
		chunks := Chunk("one two three four five", 9)
		assert.Equal(t, []string{"one two", "three", "four five"}, chunks)
	})

	t.Run("drops blank paragraphs and CRLF", func(t *testing.T) {
		assert.Equal(t, []string{"a\n\nb"}, Chunk("a\r\n\r\n\r\n\r\nb\r\n", 100))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Chunk("  \n\n ", 100))
	})
}

func TestRecords_DeterministicIDs(t *testing.T) {
	docs := []Document{{Name: "a.md", Text: "first\n\nsecond"}}
	r1 := Records(docs, 6)
	r2 := Records(docs, 6)
	require.Len(t, r1, 2)
	assert.Equal(t, r1[0].ID, r2[0].ID)
	assert.NotEqual(t, r1[0].ID, r1[1].ID)
	assert.Equal(t, "a.md", r1[1].Source)
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewVolatileStore()
	docs, err := Corpus()
	require.NoError(t, err)

	n1, err := Seed(ctx, store, NewLocalEmbedder(64), docs)
	require.NoError(t, err)
	n2, err := Seed(ctx, store, NewLocalEmbedder(64), docs)
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, n1, count)
}

type failingEmbedder struct{ LocalEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestSeed_EmbedFailureWritesNothing(t *testing.T) {
	store := NewVolatileStore()
	_, err := Seed(context.Background(), store, &failingEmbedder{}, []Document{{Name: "x", Text: "hello"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	count, _ := store.Count(context.Background())
	assert.Zero(t, count)
}

func TestMemory_SeedOnce(t *testing.T) {
	m := New(NewVolatileStore(), NewLocalEmbedder(32), 0)
	ctx := context.Background()
	n, err := m.Seed(ctx, []Document{{Name: "a", Text: "creepers explode"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Seed(ctx, []Document{{Name: "b", Text: "one\n\ntwo"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "second call reports the first outcome")
}

func TestMemory_SearchFindsRelevantDocument(t *testing.T) {
	m := seededMemory(t)

	matches, err := m.Search(context.Background(), "redstone repeater comparator circuit", 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "redstone.md", matches[0].Source)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.md"), []byte("beta"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("gamma"), 0644))

	docs, err := LoadDocuments([]string{
		filepath.Join(dir, "**", "*.md"),
		filepath.Join(dir, "a.md"),
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	var texts []string
	for _, d := range docs {
		texts = append(texts, d.Text)
	}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, texts)
}

func TestLoadDocuments_BadPattern(t *testing.T) {
	_, err := LoadDocuments([]string{"[unterminated"})
	require.Error(t, err)
}

func TestPlugin_Search(t *testing.T) {
	m := seededMemory(t)
	k := kernel.New(llmtest.Fixed("unused"))
	set := k.NewFunctionSet()
	set.ImportPlugin(PluginName, m.Functions(k)...)

	fn, err := set.Function(PluginName, "search")
	require.NoError(t, err)

	out, err := fn.Invoke(context.Background(), kernel.NewVariables("how do pistons and redstone dust work"))
	require.NoError(t, err)
	assert.Contains(t, out, "[redstone.md]")
	assert.Len(t, strings.Split(out, "\n"), 3)
}

func TestPlugin_Ask(t *testing.T) {
	m := seededMemory(t)
	client := llmtest.Fixed("```json\n{\"answer\": \"Creepers explode.\"}\n```")
	k := kernel.New(client)

	fn := m.Functions(k)[1]
	require.Equal(t, "Ask", fn.Name())

	out, err := fn.Invoke(context.Background(), kernel.NewVariables("what do creepers do"))
	require.NoError(t, err)

	answer, kind, err := api.ParseAnswer(out)
	require.NoError(t, err)
	assert.Equal(t, api.AnswerStructured, kind)
	assert.Equal(t, "Creepers explode.", answer.Answer)
	require.NotEmpty(t, answer.Sources)
	for i := 1; i < len(answer.Sources); i++ {
		assert.GreaterOrEqual(t, answer.Sources[i-1].Relevance, answer.Sources[i].Relevance)
	}

	prompts := client.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Question: what do creepers do")
	assert.Contains(t, prompts[0], "[mobs.md]")
}

func TestPlugin_AskPlainCompletion(t *testing.T) {
	m := seededMemory(t)
	k := kernel.New(llmtest.Fixed("  Diamonds are found deep underground.  "))

	out, err := m.Functions(k)[1].Invoke(context.Background(), kernel.NewVariables("where are diamonds"))
	require.NoError(t, err)

	answer, kind, err := api.ParseAnswer(out)
	require.NoError(t, err)
	assert.Equal(t, api.AnswerStructured, kind)
	assert.Equal(t, "Diamonds are found deep underground.", answer.Answer)
}

func TestPlugin_AskEmptyStore(t *testing.T) {
	client := llmtest.Fixed("unused")
	k := kernel.New(client)
	m := New(NewVolatileStore(), NewLocalEmbedder(16), 3)

	out, err := m.Functions(k)[1].Invoke(context.Background(), kernel.NewVariables("anything"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"`+NoInformation+`"}`, out)
	assert.Zero(t, client.Calls())
}

func TestSources_DedupesByBestRelevance(t *testing.T) {
	got := sources([]Match{
		{Record: Record{Source: "a"}, Score: 0.5},
		{Record: Record{Source: "b"}, Score: 0.7},
		{Record: Record{Source: "a"}, Score: 0.9},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.InDelta(t, 0.9, got[0].Relevance, 1e-6)
	assert.Equal(t, "b", got[1].Name)
}
