package analyzer

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// grammar describes which syntax node kinds matter for metrics in one language
type grammar struct {
	name      string
	language  func() *sitter.Language
	functions map[string]bool
	classes   map[string]bool
	decisions map[string]bool
	// logical holds binary node kinds that count when their operator is in operators
	logical   map[string]bool
	operators map[string]bool
	comments  map[string]bool
	calls     map[string]bool
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

var (
	jsFunctions = set("function_declaration", "function_expression", "function", "arrow_function",
		"method_definition", "generator_function_declaration", "generator_function")
	jsDecisions = set("if_statement", "for_statement", "for_in_statement", "while_statement",
		"do_statement", "switch_case", "catch_clause", "ternary_expression")
)

var grammars = []*grammar{
	{
		name:      "python",
		language:  func() *sitter.Language { return sitter.NewLanguage(tree_sitter_python.Language()) },
		functions: set("function_definition"),
		classes:   set("class_definition"),
		decisions: set("if_statement", "elif_clause", "for_statement", "while_statement",
			"except_clause", "conditional_expression", "case_clause", "for_in_clause", "if_clause"),
		logical:   set("boolean_operator"),
		operators: set("and", "or"),
		comments:  set("comment"),
		calls:     set("call"),
	},
	{
		name:      "javascript",
		language:  func() *sitter.Language { return sitter.NewLanguage(tree_sitter_javascript.Language()) },
		functions: jsFunctions,
		classes:   set("class_declaration", "class"),
		decisions: jsDecisions,
		logical:   set("binary_expression"),
		operators: set("&&", "||", "??"),
		comments:  set("comment"),
		calls:     set("call_expression"),
	},
	{
		name:      "typescript",
		language:  func() *sitter.Language { return sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()) },
		functions: jsFunctions,
		classes:   set("class_declaration", "class", "abstract_class_declaration"),
		decisions: jsDecisions,
		logical:   set("binary_expression"),
		operators: set("&&", "||", "??"),
		comments:  set("comment"),
		calls:     set("call_expression"),
	},
	{
		name:      "tsx",
		language:  func() *sitter.Language { return sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()) },
		functions: jsFunctions,
		classes:   set("class_declaration", "class", "abstract_class_declaration"),
		decisions: jsDecisions,
		logical:   set("binary_expression"),
		operators: set("&&", "||", "??"),
		comments:  set("comment"),
		calls:     set("call_expression"),
	},
}

// treeSitterAnalyzer walks a tree-sitter syntax tree.
// A parser is created and closed per call (CGO resources are not shared).
type treeSitterAnalyzer struct {
	grammar *grammar
}

func (a *treeSitterAnalyzer) Supports(filename string) bool {
	return DetectLanguage(filename) == a.grammar.name
}

func (a *treeSitterAnalyzer) Analyze(filename, source string) (*FileAnalysis, error) {
	parser := sitter.NewParser()
	if parser == nil {
		return nil, fmt.Errorf("failed to create tree-sitter parser")
	}
	defer parser.Close()

	if err := parser.SetLanguage(a.grammar.language()); err != nil {
		return nil, fmt.Errorf("failed to set language %s: %w", a.grammar.name, err)
	}

	code := []byte(source)
	tree := parser.Parse(code, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", filename)
	}
	defer tree.Close()

	w := &walker{grammar: a.grammar, code: code, rows: make(lineSet)}
	root := tree.RootNode()
	w.collectTokens(root)
	w.collectFunctions(root, 0)

	analysis := &FileAnalysis{
		Language:   a.grammar.name,
		NLOC:       len(w.rows),
		TokenCount: len(w.tokenRows),
		Functions:  w.functions,
	}
	for _, f := range w.functions {
		analysis.CyclomaticComplexity += f.Complexity
	}
	return analysis, nil
}

type walker struct {
	grammar   *grammar
	code      []byte
	rows      lineSet
	tokenRows []int
	functions []Function
}

// collectTokens records every non-comment leaf; rows are 1-based
func (w *walker) collectTokens(node *sitter.Node) {
	if node == nil || w.grammar.comments[node.Kind()] {
		return
	}
	if node.ChildCount() == 0 {
		if node.EndByte() > node.StartByte() {
			start := int(node.StartPosition().Row) + 1
			w.rows.mark(start, int(node.EndPosition().Row)+1)
			w.tokenRows = append(w.tokenRows, start)
		}
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		w.collectTokens(node.Child(i))
	}
}

// collectFunctions records functions in source order; depth counts the
// enclosing functions and classes
func (w *walker) collectFunctions(node *sitter.Node, depth int) {
	if node == nil {
		return
	}

	kind := node.Kind()
	if w.grammar.functions[kind] {
		w.functions = append(w.functions, w.function(node, depth))
	}

	childDepth := depth
	if w.grammar.functions[kind] || w.grammar.classes[kind] {
		childDepth++
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		w.collectFunctions(node.Child(i), childDepth)
	}
}

func (w *walker) function(node *sitter.Node, depth int) Function {
	start := int(node.StartPosition().Row) + 1
	end := int(node.EndPosition().Row) + 1

	f := Function{
		Name:            w.functionName(node),
		LongName:        w.signature(node),
		StartLine:       start,
		EndLine:         end,
		NLOC:            w.rows.countBetween(start, end),
		Complexity:      1,
		Parameters:      w.parameters(node),
		Length:          end - start + 1,
		TopNestingLevel: depth,
		callees:         make(map[string]int),
	}
	for _, row := range w.tokenRows {
		if row >= start && row <= end {
			f.TokenCount++
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		w.measure(node.Child(i), &f)
	}
	f.fanOut()
	return f
}

// measure adds decision points and calls below node, not descending into
// nested functions (they are measured on their own)
func (w *walker) measure(node *sitter.Node, f *Function) {
	if node == nil {
		return
	}
	kind := node.Kind()
	if w.grammar.functions[kind] || w.grammar.comments[kind] {
		return
	}

	if w.grammar.decisions[kind] {
		f.Complexity++
	}
	if w.grammar.logical[kind] {
		if op := node.ChildByFieldName("operator"); op != nil && w.grammar.operators[op.Kind()] {
			f.Complexity++
		}
	}
	if w.grammar.calls[kind] {
		if name := w.callee(node.ChildByFieldName("function")); name != "" {
			f.callees[name]++
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		w.measure(node.Child(i), f)
	}
}

func (w *walker) callee(fn *sitter.Node) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return getNodeText(fn, w.code)
	case "attribute":
		return getNodeText(fn.ChildByFieldName("attribute"), w.code)
	case "member_expression":
		return getNodeText(fn.ChildByFieldName("property"), w.code)
	}
	return ""
}

func (w *walker) functionName(node *sitter.Node) string {
	name := getNodeText(node.ChildByFieldName("name"), w.code)
	if name == "" {
		// anonymous functions take the name they are bound to
		if parent := node.Parent(); parent != nil {
			switch parent.Kind() {
			case "variable_declarator", "public_field_definition", "field_definition":
				name = getNodeText(parent.ChildByFieldName("name"), w.code)
				if name == "" {
					name = getNodeText(parent.ChildByFieldName("property"), w.code)
				}
			case "pair":
				name = getNodeText(parent.ChildByFieldName("key"), w.code)
			case "assignment_expression":
				name = getNodeText(parent.ChildByFieldName("left"), w.code)
			}
		}
	}
	if name == "" {
		name = "(anonymous)"
	}

	if class := w.enclosingClass(node); class != "" {
		return class + "." + name
	}
	return name
}

func (w *walker) enclosingClass(node *sitter.Node) string {
	for current := node.Parent(); current != nil; current = current.Parent() {
		if w.grammar.functions[current.Kind()] {
			return ""
		}
		if w.grammar.classes[current.Kind()] {
			return getNodeText(current.ChildByFieldName("name"), w.code)
		}
	}
	return ""
}

// signature is the function's text up to its body
func (w *walker) signature(node *sitter.Node) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return collapseSpaces(getNodeText(node, w.code))
	}
	text := string(w.code[node.StartByte():body.StartByte()])
	return collapseSpaces(text)
}

func (w *walker) parameters(node *sitter.Node) []string {
	params := []string{}

	list := node.ChildByFieldName("parameters")
	if list == nil {
		// single unparenthesized arrow function parameter
		if p := node.ChildByFieldName("parameter"); p != nil {
			params = append(params, getNodeText(p, w.code))
		}
		return params
	}

	for i := uint(0); i < list.NamedChildCount(); i++ {
		child := list.NamedChild(i)
		if child == nil || w.grammar.comments[child.Kind()] {
			continue
		}
		params = append(params, w.parameterName(child))
	}
	return params
}

func (w *walker) parameterName(node *sitter.Node) string {
	switch node.Kind() {
	case "identifier", "shorthand_property_identifier_pattern":
		return getNodeText(node, w.code)
	}
	for _, field := range []string{"name", "pattern", "left"} {
		if n := node.ChildByFieldName(field); n != nil {
			return getNodeText(n, w.code)
		}
	}
	if id := firstIdentifier(node); id != nil {
		return getNodeText(id, w.code)
	}
	return getNodeText(node, w.code)
}

func firstIdentifier(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == "identifier" {
		return node
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if id := firstIdentifier(node.NamedChild(i)); id != nil {
			return id
		}
	}
	return nil
}

// getNodeText extracts text from a node using byte offsets
func getNodeText(node *sitter.Node, code []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(code) {
		end = uint(len(code))
	}
	return string(code[start:end])
}
