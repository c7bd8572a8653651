package analyzer

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strings"
)

// goAnalyzer uses the standard library's own Go parser
type goAnalyzer struct{}

func (goAnalyzer) Supports(filename string) bool {
	return DetectLanguage(filename) == "go"
}

func (goAnalyzer) Analyze(filename, source string) (*FileAnalysis, error) {
	src := []byte(source)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	rows, tokenRows := scanGoTokens(src)

	analysis := &FileAnalysis{
		Language:   "go",
		NLOC:       len(rows),
		TokenCount: len(tokenRows),
		Functions:  []Function{},
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}

		start := fset.Position(fn.Pos()).Line
		end := fset.Position(fn.End()).Line

		f := Function{
			Name:       goFuncName(fn),
			LongName:   collapseSpaces(string(src[fset.Position(fn.Pos()).Offset:fset.Position(fn.Body.Lbrace).Offset])),
			StartLine:  start,
			EndLine:    end,
			NLOC:       rows.countBetween(start, end),
			Complexity: 1,
			Parameters: goParams(fn.Type.Params),
			Length:     end - start + 1,
			callees:    make(map[string]int),
		}
		for _, row := range tokenRows {
			if row >= start && row <= end {
				f.TokenCount++
			}
		}

		ast.Inspect(fn.Body, func(n ast.Node) bool {
			switch node := n.(type) {
			case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
				f.Complexity++
			case *ast.CaseClause:
				if node.List != nil {
					f.Complexity++
				}
			case *ast.CommClause:
				if node.Comm != nil {
					f.Complexity++
				}
			case *ast.BinaryExpr:
				if node.Op == token.LAND || node.Op == token.LOR {
					f.Complexity++
				}
			case *ast.CallExpr:
				if name := goCallee(node.Fun); name != "" {
					f.callees[name]++
				}
			}
			return true
		})
		f.fanOut()

		analysis.CyclomaticComplexity += f.Complexity
		analysis.Functions = append(analysis.Functions, f)
	}

	return analysis, nil
}

// scanGoTokens returns the rows holding code and the row of every token.
// Comments are skipped and automatically inserted semicolons are not tokens.
func scanGoTokens(src []byte) (lineSet, []int) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, src, nil, 0)

	rows := make(lineSet)
	var tokenRows []int
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}
		row := fset.Position(pos).Line
		rows.mark(row, row+strings.Count(lit, "\n"))
		tokenRows = append(tokenRows, row)
	}
	return rows, tokenRows
}

func goFuncName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	recv := fn.Recv.List[0].Type
	if star, ok := recv.(*ast.StarExpr); ok {
		recv = star.X
	}
	switch r := recv.(type) {
	case *ast.IndexExpr:
		recv = r.X
	case *ast.IndexListExpr:
		recv = r.X
	}
	return types.ExprString(recv) + "." + fn.Name.Name
}

func goParams(fields *ast.FieldList) []string {
	params := []string{}
	if fields == nil {
		return params
	}
	for _, field := range fields.List {
		if len(field.Names) == 0 {
			params = append(params, types.ExprString(field.Type))
			continue
		}
		for _, name := range field.Names {
			params = append(params, name.Name)
		}
	}
	return params
}

func goCallee(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	}
	return ""
}
