package main

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// defaultDerivationPath is the first account of the ethereum BIP-44 tree
const defaultDerivationPath = "m/44'/60'/0'/0/0"

// deriveKey derives the key at path from a BIP-39 mnemonic
func deriveKey(mnemonic, path string) (*ecdsa.PrivateKey, error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	derivationPath, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	account, err := w.Derive(derivationPath, false)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	sk, err := w.PrivateKey(account)
	return sk, tracerr.Wrap(err)
}

// importedKey returns the key given either in hex or as a mnemonic
func importedKey(c *cli.Context) (*ecdsa.PrivateKey, error) {
	hexKey := c.String(flagSK)
	mnemonic := c.String(flagMnemonic)
	switch {
	case hexKey != "" && mnemonic != "":
		return nil, tracerr.Wrap(fmt.Errorf("set only one of %v and %v", flagSK, flagMnemonic))
	case hexKey != "":
		sk, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		return sk, tracerr.Wrap(err)
	case mnemonic != "":
		return deriveKey(mnemonic, c.String(flagDerivationPath))
	default:
		return nil, tracerr.Wrap(fmt.Errorf("missing %v or %v", flagSK, flagMnemonic))
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return string(password), nil
}
