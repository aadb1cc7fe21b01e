// secret-init seeds the badger secret store with the ledger API
// credential so the rebalancer never needs LEDGER_API_KEY in its
// environment.
//
// Usage:
//
//	secret-init -store data/secrets.badger -secret-key <32-byte hex/base64> [-in .env]
//
// The credential is read from the LEDGER_API_KEY entry of the given
// .env file, or from the LEDGER_API_KEY environment variable when the
// file has none.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/betbot/vaultbot/pkg/secretstore"
	"github.com/joho/godotenv"
)

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		storePath = flag.String("store", getenv("SECRET_STORE_PATH", "data/secrets.badger"), "badger secret store path")
		secretKey = flag.String("secret-key", getenv("SECRET_STORE_KEY", ""), "store encryption key (32 bytes hex/base64)")
	)
	flag.Parse()

	encKey, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if encKey == nil {
		fatal(fmt.Errorf("encryption key is required: set SECRET_STORE_KEY or pass -secret-key"))
	}

	apiKey, err := resolveCredential(*inPath)
	if err != nil {
		fatal(err)
	}
	if apiKey == "" {
		fatal(fmt.Errorf("no LEDGER_API_KEY found in %s or the environment", *inPath))
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *storePath,
		EncryptionKey: encKey,
	})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	if err := store.SetString(secretstore.KeyLedgerAPIKey, apiKey); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "ledger credential stored in %s\n", *storePath)
}

func resolveCredential(envPath string) (string, error) {
	if kv, err := godotenv.Read(envPath); err == nil {
		if v := strings.TrimSpace(kv["LEDGER_API_KEY"]); v != "" {
			return v, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read %s: %w", envPath, err)
	}
	return strings.TrimSpace(os.Getenv("LEDGER_API_KEY")), nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
