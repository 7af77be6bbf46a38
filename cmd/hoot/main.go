// Command hoot runs completions against the configured model vendors.
//
//	hoot complete --model gpt-4o-mini "What do owls eat?"
//	hoot stream --model claude-3-5-haiku-latest --schema answer.json "What do owls eat?"
//	hoot check
//	hoot models --provider google
//	hoot schema-check --model gemini-2.0-flash-001 --schema answer.json
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
