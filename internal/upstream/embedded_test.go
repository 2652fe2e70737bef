package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddedHolder struct {
	ID     string       `json:"id"`
	Config EmbeddedJSON `json:"config"`
}

func TestEmbeddedJSONFailsSoft(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty string":  `""`,
		"truncated":     `"{\"model\":\"gpt"`,
		"number":        `"5"`,
		"array":         `"[1,2]"`,
		"quoted string": `"\"hello\""`,
		"null":          `null`,
		"bare number":   `5`,
		"bare array":    `[1,2]`,
		"whitespace":    `"   "`,
	}
	for name, field := range cases {
		field := field
		t.Run(name, func(t *testing.T) {
			var h embeddedHolder
			err := json.Unmarshal([]byte(`{"id":"t1","config":`+field+`}`), &h)
			require.NoError(t, err)
			assert.Equal(t, "t1", h.ID)
			assert.True(t, h.Config.IsZero())
			assert.Nil(t, h.Config.Map())
		})
	}
}

func TestEmbeddedJSONParsesObjects(t *testing.T) {
	var h embeddedHolder
	body := `{"id":"t2","config":"{\"judge_model\":\"gpt-4o\",\"threshold\":0.7}"}`
	require.NoError(t, json.Unmarshal([]byte(body), &h))
	require.False(t, h.Config.IsZero())
	assert.Equal(t, "gpt-4o", h.Config.Map()["judge_model"])

	var typed struct {
		Threshold float64 `json:"threshold"`
	}
	require.NoError(t, h.Config.Decode(&typed))
	assert.InDelta(t, 0.7, typed.Threshold, 1e-9)

	var raw embeddedHolder
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t3","config":{"a":1}}`), &raw))
	assert.Equal(t, float64(1), raw.Config.Map()["a"])
}

func TestEmbeddedJSONMarshal(t *testing.T) {
	out, err := json.Marshal(embeddedHolder{ID: "x", Config: ParseEmbedded(`{"a":true}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","config":{"a":true}}`, string(out))

	out, err = json.Marshal(embeddedHolder{ID: "y", Config: ParseEmbedded("not json")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"y","config":null}`, string(out))
}
