package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/infra/crypto"
)

func runCID(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cid", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var inPath string
	var canonical string
	fs.StringVar(&inPath, "in", "", "JSON document (- for stdin)")
	fs.StringVar(&canonical, "canonical", "jcs", "canonicalization mode")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" {
		fmt.Fprintln(stderr, "cid requires --in")
		return 1
	}

	var (
		raw []byte
		err error
	)
	if inPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(inPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	canon, err := crypto.NewCanonicalizer(crypto.Mode(canonical))
	if err != nil {
		fmt.Fprintf(stderr, "canonical mode: %v\n", err)
		return 1
	}
	cid, err := crypto.CID(canon, raw)
	if err != nil {
		fmt.Fprintf(stderr, "canonicalize: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, cid)
	return 0
}
