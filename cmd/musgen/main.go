package main

import (
	"os"
	"reflect"
	"strings"
	"time"

	musgen "github.com/mus-format/musgen-go/mus"
	genops "github.com/mus-format/musgen-go/options/generate"
	structops "github.com/mus-format/musgen-go/options/struct"
	typeops "github.com/mus-format/musgen-go/options/type"
	"github.com/poiesic/docrag/core"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	// Run from core via go:generate
	if strings.HasSuffix(cwd, "core") {
		if err := os.Chdir(".."); err != nil {
			panic(err)
		}
	}
	g, err := musgen.NewCodeGenerator(
		genops.WithPkgPath("github.com/poiesic/docrag/core"),
	)
	if err != nil {
		panic(err)
	}

	for _, t := range []reflect.Type{
		reflect.TypeFor[core.ID](),
		reflect.TypeFor[core.ContentKind](),
		reflect.TypeFor[core.EmbeddingState](),
		reflect.TypeFor[core.Role](),
		reflect.TypeFor[time.Duration](),
	} {
		g.AddDefinedType(t)
	}

	// Unix micro timestamps, decoded as UTC
	opts := typeops.WithTimeUnit(typeops.MicroUTC)
	err = g.AddStruct(reflect.TypeFor[core.Document](),
		structops.WithField(), // Id
		structops.WithField(), // Title
		structops.WithField(), // Content
		structops.WithField(), // Kind
		structops.WithField(), // Size
		structops.WithField(), // WordCount
		structops.WithField(opts),
		structops.WithField(opts),
		structops.WithField(), // Active
		structops.WithField(), // Tags
		structops.WithField(), // Summary
		structops.WithField(), // State
		structops.WithField(opts),
		structops.WithField(), // Revision
		structops.WithField()) // ContentHash
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.EmbeddingRecord](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts))
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Conversation](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts),
		structops.WithField(opts),
		structops.WithField())
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Source](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField())
	if err != nil {
		panic(err)
	}

	err = g.AddStruct(reflect.TypeFor[core.Turn](),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(),
		structops.WithField(opts))
	if err != nil {
		panic(err)
	}

	bs, err := g.Generate()
	if err != nil {
		panic(err)
	}

	err = os.WriteFile("./core/records_mus.gen.go", bs, 0644)
	if err != nil {
		panic(err)
	}
}
