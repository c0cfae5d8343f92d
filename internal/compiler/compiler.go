// Package compiler runs the front-end pipeline: parse -> check -> lint. It turns
// source text into checked class models ready for the model manager.
package compiler

import (
	"fmt"

	"github.com/lhaig/boundcheck/internal/checker"
	"github.com/lhaig/boundcheck/internal/diagnostic"
	"github.com/lhaig/boundcheck/internal/linter"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/parser"
)

// Result holds the output of compiling one source
type Result struct {
	File        string
	Source      string
	Classes     []*model.ClassModel
	Diagnostics *diagnostic.Diagnostics
}

// Compile runs parse + check. Classes are returned even when the checker rejected
// some of their elements; they are only withheld on syntax errors.
func Compile(source string) *Result {
	res := &Result{Source: source}

	p := parser.New(source)
	classes := p.Parse()
	if p.Diagnostics().HasErrors() {
		res.Diagnostics = p.Diagnostics()
		return res
	}

	res.Diagnostics = checker.Check(classes)
	res.Classes = classes
	return res
}

// Lint runs parse + check + lint and returns every diagnostic.
func Lint(source string) *diagnostic.Diagnostics {
	res := Compile(source)
	if res.Diagnostics.HasErrors() {
		return res.Diagnostics
	}
	res.Diagnostics.Merge(linter.Lint(res.Classes), "")
	res.Diagnostics.Sort()
	return res.Diagnostics
}

// Project is the outcome of compiling every file of a SourceRegistry
type Project struct {
	Files       []*Result
	Diagnostics *diagnostic.Diagnostics
}

// Classes returns the classes of every file in file order
func (p *Project) Classes() []*model.ClassModel {
	var all []*model.ClassModel
	for _, f := range p.Files {
		all = append(all, f.Classes...)
	}
	return all
}

// ClassNames returns the names of every compiled class
func (p *Project) ClassNames() []string {
	var names []string
	for _, c := range p.Classes() {
		names = append(names, c.Name)
	}
	return names
}

// CompileProject discovers and compiles every source under roots. Each file is compiled
// on its own; a class name defined in two files is an error on the second one.
func CompileProject(roots ...string) (*Project, error) {
	registry, err := NewSourceRegistry(roots...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize source registry: %w", err)
	}
	files, err := registry.Discover()
	if err != nil {
		return nil, err
	}

	proj := &Project{Diagnostics: diagnostic.New()}
	defined := make(map[string]string)
	for _, path := range files {
		source, _ := registry.Source(path)
		res := Compile(source)
		res.File = path

		unique := res.Classes[:0]
		for _, c := range res.Classes {
			if first, ok := defined[c.Name]; ok {
				res.Diagnostics.Errorf(c.Location.Line, c.Location.Column,
					"class %s is already defined in %s", c.Name, first)
				continue
			}
			defined[c.Name] = path
			unique = append(unique, c)
		}
		res.Classes = unique

		proj.Diagnostics.Merge(res.Diagnostics, path)
		proj.Files = append(proj.Files, res)
	}
	proj.Diagnostics.Sort()
	return proj, nil
}

// Lint runs the linter over every file that compiled without syntax errors
func (p *Project) Lint() *diagnostic.Diagnostics {
	diag := diagnostic.New()
	for _, f := range p.Files {
		if f.Diagnostics.HasErrors() {
			continue
		}
		diag.Merge(linter.Lint(f.Classes), f.File)
	}
	diag.Sort()
	return diag
}
