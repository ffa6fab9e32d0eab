package jsonrepair

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced inline", "```{\"a\":1}```", `{"a":1}`},
		{"prose around", "Voici le résultat : {\"a\":{\"b\":\"}\"}} merci", `{"a":{"b":"}"}}`},
		{"unterminated", "```json\n{\"score\":72,\"skills\":[\"a\"", `{"score":72,"skills":["a"`},
		{"none", "no json here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Extract(tt.raw))
		})
	}
}

func TestStrategies(t *testing.T) {
	t.Parallel()

	t.Run("as-is rejects arrays", func(t *testing.T) {
		_, err := AsIs(`[1,2]`)
		assert.Error(t, err)
	})

	t.Run("normalize quotes and commas", func(t *testing.T) {
		out, err := Normalize(`{'score': 80, "txt": “ok”, 'skills': ['go', 'sql',],}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"score":80,"txt":"ok","skills":["go","sql"]}`, out)
	})

	t.Run("normalize keeps apostrophes inside strings", func(t *testing.T) {
		out, err := Normalize(`{"txt": "l'offre, correcte",}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"txt":"l'offre, correcte"}`, out)
	})

	t.Run("close truncated array", func(t *testing.T) {
		out, err := CloseTruncated(`{"score":72,"skills":["a","b"],"missing":["c"`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"score":72,"skills":["a","b"],"missing":["c"]}`, out)
	})

	t.Run("close truncated string", func(t *testing.T) {
		out, err := CloseTruncated(`{"score":72,"txt":"bonne corresp`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"score":72,"txt":"bonne corresp"}`, out)
	})

	t.Run("close dangling comma and colon", func(t *testing.T) {
		out, err := CloseTruncated(`{"a":{"b":1,`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":{"b":1}}`, out)

		out, err = CloseTruncated(`{"a":1,"b":`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1,"b":null}`, out)
	})

	t.Run("close cannot fix a dangling key", func(t *testing.T) {
		_, err := CloseTruncated(`{"score":72,"ski`)
		assert.Error(t, err)
	})

	t.Run("drop incomplete member", func(t *testing.T) {
		out, err := DropIncompleteMember(`{"score":72,"ski`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"score":72}`, out)

		out, err = DropIncompleteMember(`{"JOB_ID:1":{"score":80},"JOB_ID:2":{"score":6`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"JOB_ID:1":{"score":80}}`, out)
	})
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("truncated response", func(t *testing.T) {
		got, err := Parse(`{"score":72,"skills":["a","b"],"missing":["c"`)
		require.NoError(t, err)
		assert.Equal(t, 72.0, got["score"])
		assert.Equal(t, []any{"c"}, got["missing"])
	})

	t.Run("strategy reported", func(t *testing.T) {
		_, strategy, err := Repair("```json\n{\"a\": 1,}\n```")
		require.NoError(t, err)
		assert.Equal(t, "normalize", strategy)

		_, strategy, err = Repair(`{"a": 1}`)
		require.NoError(t, err)
		assert.Equal(t, "as-is", strategy)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := Parse("I cannot help with that.")
		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.ErrorIs(t, err, ErrNoObject)
		assert.Equal(t, "I cannot help with that.", perr.Snippet)
	})

	t.Run("unrepairable keeps snippet", func(t *testing.T) {
		raw := `{"score": ` + strings.Repeat("x", 600)
		_, err := Parse(raw)
		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Len(t, perr.Snippet, SnippetLength)
		assert.True(t, strings.HasPrefix(perr.Snippet, `{"score": x`))
	})
}
