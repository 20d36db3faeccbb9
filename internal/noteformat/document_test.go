package noteformat

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentTypedFields(t *testing.T) {
	doc, err := ParseDocument([]byte(richSample))
	require.NoError(t, err)

	assert.Equal(t, "Ab12-1700000000000", doc.ID)
	assert.True(t, doc.Compress)
	require.Len(t, doc.Content, 10)

	heading := doc.Content[0]
	assert.Equal(t, KindHeading, heading.Kind)
	assert.Equal(t, 2, heading.Attrs.HeadingLevel)
	assert.False(t, heading.Block)
	assert.True(t, heading.Children[0].Block)

	nested := doc.Content[3]
	assert.Equal(t, ListOrdered, nested.Attrs.ListType)
	assert.Equal(t, 2, nested.Attrs.ListLevel)

	para := doc.Content[1].Children[0]
	require.Len(t, para.Runs, 4)
	assert.True(t, para.Runs[1].HasStyle(StyleBold))
	assert.True(t, para.Runs[3].HasStyle(StyleCode))

	unknown := doc.Content[9]
	assert.Equal(t, NodeKind("tb"), unknown.Kind)
	assert.Equal(t, []string{"border"}, unknown.Attrs.extraKeys())
}

func TestMarshalDocumentKeepsTags(t *testing.T) {
	doc, err := ParseDocument([]byte(richSample))
	require.NoError(t, err)

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	reparsed, err := ParseDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, reparsed)

	// spot check the wire shape
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1", raw["2"])
	assert.Equal(t, true, raw["__compress__"])
	content := raw["5"].([]any)
	heading := content[0].(map[string]any)
	assert.Equal(t, "h", heading["6"])
	assert.Equal(t, map[string]any{"l": "h2"}, heading["4"])
	block := heading["5"].([]any)[0].(map[string]any)
	assert.Equal(t, "2", block["2"])
	assert.Equal(t, []any{map[string]any{"8": "Weekly notes"}}, block["7"])
}

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("t", 42)
	assert.Equal(t, "t001-42", ids.NewID())
	assert.Equal(t, "t002-42", ids.NewID())
}

func TestRandomIDs(t *testing.T) {
	clock := func() time.Time { return time.UnixMilli(1700000000123) }
	id := NewRandomIDs(clock).NewID()
	assert.Regexp(t, `^[A-Za-z0-9]{4}-1700000000123$`, id)
}
