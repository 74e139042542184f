package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/ui"
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		FatalError("encoding JSON: %v", err)
	}
}

// outputYAML writes v to stdout as YAML. Values go through JSON first so
// that the YAML keys match the JSON field names.
func outputYAML(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		FatalError("encoding YAML: %v", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		FatalError("encoding YAML: %v", err)
	}
	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	if err := encoder.Encode(generic); err != nil {
		FatalError("encoding YAML: %v", err)
	}
	_ = encoder.Close()
}

// printWarnings prints per-mutation warnings unless --quiet.
func printWarnings(warnings []string) {
	if debug.IsQuiet() {
		return
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarnIcon(), w)
	}
}
