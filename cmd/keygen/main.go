// Package main derives or generates messaging identities and prints them as
// JSON. With -signature it derives deterministically from a wallet signature
// the way a login does; without, it generates a fresh random identity:
//
//	go run ./cmd/keygen
//	go run ./cmd/keygen -signature 0xdeadbeef...
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/provshare/provshare/pkg/keys"
)

type identityOutput struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	signature := flag.String(
		"signature",
		"",
		"wallet signature to derive the identity from (hex); empty generates randomly",
	)
	flag.Parse()

	var (
		id  *keys.Identity
		err error
	)
	if *signature != "" {
		id, err = keys.DeriveFromSignature([]byte(*signature))
	} else {
		id, err = keys.Generate()
	}
	if err != nil {
		return err
	}

	out := identityOutput{
		PublicKey:  id.PublicKey().String(),
		PrivateKey: id.PrivateKeyHex(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
