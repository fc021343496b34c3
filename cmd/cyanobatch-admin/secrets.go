package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/target/cyano-batch/internal/cryptoutil"
)

func runEncryptSecret(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("encrypt-secret", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	value := fs.String("value", "", "Plaintext to encrypt; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plain := *value
	if plain == "" {
		var err error
		plain, err = readSecretLine(os.Stdin)
		if err != nil {
			return err
		}
	}

	out, err := encryptSecret(cmdCtx.Config.EncryptionKey, plain)
	if err != nil {
		return err
	}
	return writeln(os.Stdout, out)
}

func encryptSecret(key, plain string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("APP_ENCRYPTION_KEY must be set to encrypt secrets")
	}
	if plain == "" {
		return "", errors.New("nothing to encrypt")
	}
	enc, err := cryptoutil.NewFromKey(key)
	if err != nil {
		return "", fmt.Errorf("load encryption key: %w", err)
	}
	return enc.Encrypt([]byte(plain))
}

func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
