package regscript

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes register scripts. Statements are separated by
// whitespace, newlines or semicolons.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s;]+`},

	// Durations must be tried before plain numbers ("100ms").
	{Name: "Duration", Pattern: `[0-9]+(?:ns|us|ms|s)`},
	{Name: "Number", Pattern: `0[xX][0-9A-Fa-f]+|[0-9]+`},

	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
})
