package main

import (
	"fmt"
	"os"

	"github.com/hermeznetwork/tracerr"
	"github.com/urfave/cli/v2"
)

const (
	flagCfg            = "cfg"
	flagEnv            = "env"
	flagSK             = "privatekey"
	flagMnemonic       = "mnemonic"
	flagDerivationPath = "path"
	flagTo             = "to"
	flagAmount         = "amount"
	flagHash           = "hash"
	flagWait           = "wait"
	flagPaymaster      = "paymaster"
	flagPaymasterInput = "paymasterinput"
	flagContract       = "contract"
	flagArg            = "arg"
	flagDep            = "dep"
	flagSalt           = "salt"
	flagLimit          = "limit"
)

var (
	// version represents the program based on the git tag
	version = "v0.1.0"
	// commit represents the program based on the git commit
	commit = "dev"
	// date represents the date of application was built
	date = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "zkwallet"
	app.Usage = "Move ether between L1 and the zk rollup L2, transfer and deploy on L2"
	app.Version = version
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     flagCfg,
			Usage:    "Wallet configuration `FILE`",
			Required: false,
		},
		&cli.StringFlag{
			Name:     flagEnv,
			Usage:    "`FILE` with environment variables (default \".env\")",
			Required: false,
		},
	}
	waitFlag := &cli.BoolFlag{
		Name:  flagWait,
		Usage: "wait for the transaction to be included",
	}
	paymasterFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  flagPaymaster,
			Usage: "`ADDRESS` of the paymaster that pays the fee",
		},
		&cli.StringFlag{
			Name:  flagPaymasterInput,
			Usage: "hex encoded inner `INPUT` of the general paymaster flow",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:    "version",
			Aliases: []string{},
			Usage:   "Show the application version and build",
			Action:  cmdVersion,
		},
		{
			Name:    "importkey",
			Aliases: []string{},
			Usage:   "Import an ethereum private key into the configured keystore",
			Action:  cmdImportKey,
			Flags: append(flags,
				&cli.StringFlag{
					Name:  flagSK,
					Usage: "ethereum `PRIVATE_KEY` in hex",
				},
				&cli.StringFlag{
					Name:  flagMnemonic,
					Usage: "BIP-39 `MNEMONIC` to derive the key from",
				},
				&cli.StringFlag{
					Name:  flagDerivationPath,
					Usage: "derivation `PATH` of the key in the mnemonic tree",
					Value: defaultDerivationPath,
				}),
		},
		{
			Name:    "balance",
			Aliases: []string{},
			Usage:   "Show the L1 and L2 balances of the wallet",
			Action:  cmdBalance,
			Flags:   flags,
		},
		{
			Name:    "transfer",
			Aliases: []string{},
			Usage:   "Transfer ether on L2",
			Action:  cmdTransfer,
			Flags: append(append(flags,
				&cli.StringFlag{
					Name:     flagTo,
					Usage:    "receiver `ADDRESS`",
					Required: true,
				},
				&cli.StringFlag{
					Name:     flagAmount,
					Usage:    "`AMOUNT` in ether, for example 0.01",
					Required: true,
				},
				waitFlag), paymasterFlags...),
		},
		{
			Name:    "deposit",
			Aliases: []string{},
			Usage:   "Deposit ether from L1 into L2",
			Action:  cmdDeposit,
			Flags: append(flags,
				&cli.StringFlag{
					Name:  flagTo,
					Usage: "L2 receiver `ADDRESS` (default the wallet)",
				},
				&cli.StringFlag{
					Name:     flagAmount,
					Usage:    "`AMOUNT` in ether",
					Required: true,
				},
				waitFlag),
		},
		{
			Name:    "withdraw",
			Aliases: []string{},
			Usage:   "Start a withdrawal of ether from L2 to L1",
			Action:  cmdWithdraw,
			Flags: append(append(flags,
				&cli.StringFlag{
					Name:  flagTo,
					Usage: "L1 receiver `ADDRESS` (default the wallet)",
				},
				&cli.StringFlag{
					Name:     flagAmount,
					Usage:    "`AMOUNT` in ether",
					Required: true,
				},
				waitFlag), paymasterFlags...),
		},
		{
			Name:    "finalize",
			Aliases: []string{},
			Usage:   "Finalize on L1 a withdrawal whose L2 block is finalized",
			Action:  cmdFinalize,
			Flags: append(flags,
				&cli.StringFlag{
					Name:     flagHash,
					Usage:    "`HASH` of the L2 withdrawal transaction",
					Required: true,
				},
				waitFlag),
		},
		{
			Name:    "deploy",
			Aliases: []string{},
			Usage:   "Deploy a contract on L2",
			Action:  cmdDeploy,
			Flags: append(append(flags,
				&cli.StringFlag{
					Name:     flagContract,
					Usage:    "combined JSON `FILE` with the abi and bin of the contract",
					Required: true,
				},
				&cli.StringSliceFlag{
					Name:  flagArg,
					Usage: "constructor `ARG`, in order",
				},
				&cli.StringSliceFlag{
					Name:  flagDep,
					Usage: "combined JSON `FILE` of a contract the deployed one creates",
				},
				&cli.StringFlag{
					Name:  flagSalt,
					Usage: "hex encoded 32 byte `SALT` to deploy with create2",
				}), paymasterFlags...),
		},
		{
			Name:    "status",
			Aliases: []string{},
			Usage:   "Refresh and show the state of the operations in the journal",
			Action:  cmdStatus,
			Flags: append(flags,
				&cli.StringFlag{
					Name:  flagHash,
					Usage: "`HASH` of the operation (default all the unfinished ones)",
				},
				&cli.UintFlag{
					Name:  flagLimit,
					Usage: "show the last `N` operations instead of the unfinished ones",
				}),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("\nError: %v\n", tracerr.Sprint(err))
		os.Exit(1)
	}
}
