package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "verify":
		if len(args) >= 3 {
			switch args[2] {
			case "export":
				return runVerifyExport(args[3:], stdout, stderr)
			case "receipt":
				return runVerifyReceipt(args[3:], stdout, stderr)
			}
		}
	case "cid":
		return runCID(args[2:], stdout, stderr)
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, stderr io.Writer) {
	name := "signet"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(stderr, "usage:\n")
	fmt.Fprintf(stderr, "  %s verify export --in <export.json> --jwks <jwks.json> [--canonical jcs|sorted]\n", name)
	fmt.Fprintf(stderr, "  %s verify export --url <base-url> --trace <trace_id> [--canonical jcs|sorted]\n", name)
	fmt.Fprintf(stderr, "  %s verify receipt --in <receipt.json> [--canonical jcs|sorted]\n", name)
	fmt.Fprintf(stderr, "  %s cid --in <document.json> [--canonical jcs|sorted]\n", name)
}
