package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Confidence string   `json:"confidence" enum:"high|medium|low" description:"overall confidence"`
	Issues     []string `json:"issues"`
	Score      float64  `json:"score,omitempty"`
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`{{upper .name}} <{{join "," .cols}}> {{default "n/a" .missing}} {{json .obj}}`, map[string]any{
		"name": "sales",
		"cols": []any{"a", "b"},
		"obj":  map[string]any{"k": "v's"},
	})
	require.NoError(t, err)
	assert.Equal(t, `SALES <a,b> n/a {"k":"v's"}`, out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(verdict{})
	props := schema["properties"].(map[string]any)

	assert.Equal(t, "string", props["confidence"].(map[string]any)["type"])
	assert.Equal(t, []string{"high", "medium", "low"}, props["confidence"].(map[string]any)["enum"])
	assert.Equal(t, "array", props["issues"].(map[string]any)["type"])
	assert.Equal(t, []string{"confidence", "issues"}, schema["required"])
	assert.Contains(t, SchemaJSON(&verdict{}), `"confidence"`)
}

func TestValidateObject(t *testing.T) {
	schema := CreateSchema(verdict{})

	assert.NoError(t, ValidateObject(map[string]any{"confidence": "high", "issues": []any{}}, schema))

	err := ValidateObject(map[string]any{"issues": []any{}}, schema)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "confidence", ve.Field)

	err = ValidateObject(map[string]any{"confidence": "maybe", "issues": []any{}}, schema)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "one of")

	err = ValidateObject(map[string]any{"confidence": "low", "issues": "x"}, schema)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "issues", ve.Field)
}

func TestExtractJSONObject(t *testing.T) {
	obj, err := ExtractJSONObject("Sure!\n```json\n{\"winner\": \"sql\", \"reason\": \"exact\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "sql", obj["winner"])

	_, err = ExtractJSONObject("no json here")
	assert.ErrorIs(t, err, ErrNoJSONObject)

	_, err = ExtractJSONObject("{not json}")
	assert.Error(t, err)
}

func TestDecodeInto(t *testing.T) {
	var v verdict
	require.NoError(t, DecodeInto(`{"confidence":"Low","issues":["missing column: bonus"]}`, &v))
	assert.Equal(t, "Low", v.Confidence)
	assert.Equal(t, []string{"missing column: bonus"}, v.Issues)

	assert.Error(t, DecodeInto(`{"issues":[]}`, &v))
}
