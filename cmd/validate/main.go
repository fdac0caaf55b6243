package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gnemet/admingrid"
	"github.com/xeipuuv/gojsonschema"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run validates each catalog file against the embedded schema, or the one
// given with -schema, and returns the exit code.
func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("catalog-validator", flag.ContinueOnError)
	fs.SetOutput(out)
	schemaPath := fs.String("schema", "", "JSON schema file (default: the built-in catalog schema)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(out, "Usage: catalog-validator [-schema schema.json] <catalog> [catalog...]")
		return 2
	}

	schemaLoader := gojsonschema.NewBytesLoader(admingrid.CatalogSchema())
	if *schemaPath != "" {
		abs, err := filepath.Abs(*schemaPath)
		if err != nil {
			fmt.Fprintf(out, "Invalid schema path: %v\n", err)
			return 2
		}
		schemaLoader = gojsonschema.NewReferenceLoader("file://" + abs)
	}
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		fmt.Fprintf(out, "Invalid schema: %v\n", err)
		return 2
	}

	allValid := true
	for _, path := range fs.Args() {
		name := filepath.Base(path)
		data, err := admingrid.ReadCatalogJSON(path)
		if err != nil {
			fmt.Fprintf(out, "❌ Error reading %s: %v\n", name, err)
			allValid = false
			continue
		}

		result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
		if err != nil {
			fmt.Fprintf(out, "❌ Error validating %s: %v\n", name, err)
			allValid = false
			continue
		}
		if !result.Valid() {
			fmt.Fprintf(out, "❌ %s is invalid!\n", name)
			for _, desc := range result.Errors() {
				fmt.Fprintf(out, "   - %s\n", desc)
			}
			allValid = false
			continue
		}

		// Relations must point at models of the same catalog.
		cat, err := admingrid.ParseCatalog(data)
		if err == nil {
			for _, m := range cat.Models {
				if _, terr := cat.Table(m.Identity, "en"); terr != nil && err == nil {
					err = terr
				}
			}
		}
		if err != nil {
			fmt.Fprintf(out, "❌ %s is invalid!\n   - %v\n", name, err)
			allValid = false
			continue
		}
		fmt.Fprintf(out, "✅ %s is valid.\n", name)
	}

	if !allValid {
		return 1
	}
	return 0
}
