package lang

import (
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/jward/lattice/internal/graph"
)

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// DefaultParsers returns one parser per built-in language. Each call
// returns fresh parser instances since tree-sitter parsers are not safe
// for concurrent use.
func DefaultParsers() []Parser {
	dialects := []dialect{
		{
			name:     "go",
			exts:     []string{".go"},
			language: golang.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_declaration": graph.KindFunction,
				"method_declaration":   graph.KindMethod,
				"type_spec":            graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_statement", "for_statement", "expression_switch_statement", "type_switch_statement", "select_statement"),
			imports:      set("import_spec"),
			assigns:      set("assignment_statement", "short_var_declaration"),
			nameFields:   []string{"name"},
			calleeFields: []string{"function"},
		},
		{
			name:     "python",
			exts:     []string{".py"},
			language: python.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_definition": graph.KindFunction,
				"class_definition":    graph.KindClass,
			},
			calls:        set("call"),
			controls:     set("if_statement", "for_statement", "while_statement", "try_statement", "except_clause", "with_statement"),
			imports:      set("import_statement", "import_from_statement"),
			assigns:      set("assignment", "augmented_assignment"),
			nameFields:   []string{"name"},
			calleeFields: []string{"function"},
			superFields:  []string{"superclasses"},
		},
		{
			name:     "javascript",
			exts:     []string{".js"},
			language: javascript.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_declaration":           graph.KindFunction,
				"generator_function_declaration": graph.KindFunction,
				"method_definition":              graph.KindFunction,
				"class_declaration":              graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "try_statement", "catch_clause", "switch_statement"),
			imports:      set("import_statement"),
			assigns:      set("assignment_expression", "augmented_assignment_expression"),
			nameFields:   []string{"name"},
			calleeFields: []string{"function"},
			superFields:  []string{"superclass"},
		},
		{
			name:     "typescript",
			exts:     []string{".ts"},
			language: typescript.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_declaration":  graph.KindFunction,
				"method_definition":     graph.KindFunction,
				"class_declaration":     graph.KindClass,
				"interface_declaration": graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "try_statement", "catch_clause", "switch_statement"),
			imports:      set("import_statement"),
			assigns:      set("assignment_expression", "augmented_assignment_expression"),
			nameFields:   []string{"name"},
			calleeFields: []string{"function"},
			superFields:  []string{"superclass"},
		},
		{
			name:     "java",
			exts:     []string{".java"},
			language: java.GetLanguage(),
			decls: map[string]graph.Kind{
				"class_declaration":       graph.KindClass,
				"interface_declaration":   graph.KindClass,
				"method_declaration":      graph.KindFunction,
				"constructor_declaration": graph.KindFunction,
			},
			calls:        set("method_invocation"),
			controls:     set("if_statement", "for_statement", "enhanced_for_statement", "while_statement", "try_statement", "catch_clause", "switch_expression"),
			imports:      set("import_declaration"),
			assigns:      set("assignment_expression"),
			nameFields:   []string{"name"},
			calleeFields: []string{"name"},
			superFields:  []string{"superclass"},
		},
		{
			name:     "c",
			exts:     []string{".c", ".h"},
			language: c.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_definition": graph.KindFunction,
				"struct_specifier":    graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_statement", "for_statement", "while_statement", "do_statement", "switch_statement"),
			imports:      set("preproc_include"),
			assigns:      set("assignment_expression"),
			nameFields:   []string{"name", "declarator"},
			calleeFields: []string{"function"},
		},
		{
			name:     "cpp",
			exts:     []string{".cpp", ".cc", ".hpp"},
			language: cpp.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_definition": graph.KindFunction,
				"class_specifier":     graph.KindClass,
				"struct_specifier":    graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_statement", "for_statement", "while_statement", "do_statement", "switch_statement", "try_statement", "catch_clause"),
			imports:      set("preproc_include"),
			assigns:      set("assignment_expression"),
			nameFields:   []string{"name", "declarator"},
			calleeFields: []string{"function"},
		},
		{
			name:     "rust",
			exts:     []string{".rs"},
			language: rust.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_item": graph.KindFunction,
				"struct_item":   graph.KindClass,
				"enum_item":     graph.KindClass,
				"trait_item":    graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_expression", "for_expression", "while_expression", "loop_expression", "match_expression"),
			imports:      set("use_declaration"),
			assigns:      set("assignment_expression"),
			nameFields:   []string{"name"},
			calleeFields: []string{"function"},
		},
		{
			name:     "swift",
			exts:     []string{".swift"},
			language: swift.GetLanguage(),
			decls: map[string]graph.Kind{
				"function_declaration": graph.KindFunction,
				"class_declaration":    graph.KindClass,
				"protocol_declaration": graph.KindClass,
			},
			calls:        set("call_expression"),
			controls:     set("if_statement", "guard_statement", "for_statement", "while_statement", "switch_statement"),
			imports:      set("import_declaration"),
			assigns:      set("assignment"),
			nameFields:   []string{"name"},
			calleeFields: []string{"function"},
		},
	}

	parsers := make([]Parser, 0, len(dialects))
	for _, d := range dialects {
		parsers = append(parsers, newTreeParser(d))
	}
	return parsers
}
