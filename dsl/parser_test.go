package dsl_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ByLCY/textfit/dsl"
)

const sampleDSL = `
doc Cards v1 {
  meta {
    title: "Teasers"
    keywords: [
      "preview"
      "clamp"
    ]
  }

  resources {
    font Body {
      src: "builtin:latin-modern"
    }

    color Accent = #0F62FE
  }

  // 一个带展开按钮的截断盒子
  clamp teaser width 80mm height 12mm {
    font: Body
    size: 10px
    ellipsis: "... "
    "Hello, ${user.name|guest}! "
    element Badge width 12mm height 4mm label "new"
    slot expand width 14mm height 4mm label "more"
    slot collapse width 14mm height 4mm label "less"
  }
}
`

func TestParseDocument(t *testing.T) {
	doc, err := dsl.ParseString(sampleDSL)
	require.NoError(t, err)

	require.Equal(t, "Cards", doc.Name)
	require.Equal(t, "v1", doc.Version)
	require.Len(t, doc.Sections, 3)
	require.Equal(t, "meta", doc.Sections[0].Kind())
	require.Equal(t, "resources", doc.Sections[1].Kind())
	require.Equal(t, "clamp", doc.Sections[2].Kind())

	meta := doc.Sections[0].Meta
	require.NotNil(t, meta)
	title := meta.Block.Statements[0].Assignment
	require.NotNil(t, title)
	require.Equal(t, "title", title.Key)
	require.Equal(t, "Teasers", string(*title.Value.String))
	keywords := meta.Block.Statements[1].Assignment
	require.NotNil(t, keywords)
	require.NotNil(t, keywords.Value.Array)
	require.Len(t, keywords.Value.Array.Values, 2)

	clamps := doc.Clamps()
	require.Len(t, clamps, 1)
	c := clamps[0]
	require.Equal(t, "teaser", c.ID)
	w, ok := c.Param("width")
	require.True(t, ok)
	require.Equal(t, "80mm", w)
	h, ok := c.Param("height")
	require.True(t, ok)
	require.Equal(t, "12mm", h)
	_, ok = c.Param("missing")
	require.False(t, ok)

	stmts := c.Block.Statements
	require.Len(t, stmts, 7)
	require.Equal(t, "font", stmts[0].Assignment.Key)
	require.Equal(t, "10px", *stmts[1].Assignment.Value.Number)
	require.Equal(t, "... ", string(*stmts[2].Assignment.Value.String))

	require.NotNil(t, stmts[3].Text)
	require.True(t, strings.Contains(string(stmts[3].Text.Value), "${user.name|guest}"))

	el := stmts[4].Command
	require.NotNil(t, el)
	require.Equal(t, "element", el.Name)
	require.Equal(t, "Badge", el.Args[0].Value)
	require.Equal(t, "new", el.Args[len(el.Args)-1].Value)

	expand := stmts[5].Command
	require.Equal(t, "slot", expand.Name)
	require.Equal(t, "expand", expand.Args[0].Value)
	collapse := stmts[6].Command
	require.Equal(t, "collapse", collapse.Args[0].Value)
}

func TestParseExpression(t *testing.T) {
	doc, err := dsl.ParseString(`doc X v1 {
  meta {
    subject: user.profile.name
  }
}`)
	require.NoError(t, err)
	field := doc.Sections[0].Meta.Block.Statements[0].Assignment
	require.NotNil(t, field.Value.Expr)
	require.Equal(t, "user . profile . name", tokensToString(field.Value.Expr.Parts))
}

func TestParseErrors(t *testing.T) {
	_, err := dsl.ParseString(`doc X v1 { clamp }`)
	require.Error(t, err)

	// 百分比长度与内联对象不属于语法
	_, err = dsl.ParseString("doc X v1 {\n  clamp a width 50% {\n    \"hi\"\n  }\n}")
	require.Error(t, err)
	_, err = dsl.ParseString("doc X v1 {\n  meta {\n    title: { a: 1 }\n  }\n}")
	require.Error(t, err)

	_, err = dsl.ParseFile(filepath.Join(t.TempDir(), "missing.textfit"))
	require.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.textfit")
	require.NoError(t, os.WriteFile(path, []byte(sampleDSL), 0o644))
	doc, err := dsl.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Clamps(), 1)
}

func tokensToString(parts []*dsl.Lexeme) string {
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		values = append(values, p.Value)
	}
	return strings.Join(values, " ")
}
