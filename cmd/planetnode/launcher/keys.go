package launcher

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/network"
)

var keyCommand = cli.Command{
	Name:     "key",
	Usage:    "Manage node, miner and validator keys",
	Category: "KEY COMMANDS",
	Subcommands: []cli.Command{
		{
			Name:   "generate",
			Usage:  "Generate a new private key",
			Action: generateKey,
		},
		{
			Name:      "derive",
			Usage:     "Print the public key, address and peer id of a private key",
			ArgsUsage: "<private key hex>",
			Action:    deriveKey,
		},
	},
}

var apvCommand = cli.Command{
	Name:     "apv",
	Usage:    "Manage app protocol versions",
	Category: "NETWORK COMMANDS",
	Subcommands: []cli.Command{
		{
			Name:      "sign",
			Usage:     "Sign an app protocol version token",
			ArgsUsage: "<private key hex> <version>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "extra", Usage: "Hex encoded extra data"},
			},
			Action: signAPV,
		},
		{
			Name:      "verify",
			Usage:     "Check a token's signature and print its fields",
			ArgsUsage: "<token>",
			Action:    verifyAPV,
		},
	},
}

func generateKey(ctx *cli.Context) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	return printKey(ctx.App.Writer, key)
}

func deriveKey(ctx *cli.Context) error {
	if ctx.NArg() != 1 || ctx.Args().First() == "" {
		return errors.New("want exactly one private key")
	}
	key, err := loadKey("key", ctx.Args().First(), "")
	if err != nil {
		return err
	}
	return printKey(ctx.App.Writer, key)
}

func printKey(w io.Writer, key *ecdsa.PrivateKey) error {
	pub := validatorpk.FromECDSA(&key.PublicKey)
	id, err := network.PeerIDOf(pub)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "private:   %s\n", hex.EncodeToString(crypto.FromECDSA(key)))
	fmt.Fprintf(w, "public:    %s\n", hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey)))
	fmt.Fprintf(w, "validator: %s\n", pub.String())
	fmt.Fprintf(w, "address:   %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	fmt.Fprintf(w, "peer:      %s\n", id)
	return nil
}

func signAPV(ctx *cli.Context) error {
	if ctx.NArg() != 2 || ctx.Args().Get(0) == "" {
		return errors.New("want a private key and a version")
	}
	key, err := loadKey("key", ctx.Args().Get(0), "")
	if err != nil {
		return err
	}
	var version int32
	if _, err := fmt.Sscan(ctx.Args().Get(1), &version); err != nil {
		return errors.Wrap(err, "version")
	}
	var extra []byte
	if s := ctx.String("extra"); s != "" {
		if extra, err = hex.DecodeString(s); err != nil {
			return errors.Wrap(err, "extra")
		}
	}
	apv, err := network.SignAppProtocolVersion(key, version, extra)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, apv.Token())
	return nil
}

func verifyAPV(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("want exactly one token")
	}
	apv, err := network.ParseAppProtocolVersion(ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "version: %d\n", apv.Version)
	fmt.Fprintf(ctx.App.Writer, "signer:  %s\n", apv.Signer.Hex())
	if len(apv.Extra) > 0 {
		fmt.Fprintf(ctx.App.Writer, "extra:   %s\n", hex.EncodeToString(apv.Extra))
	}
	return nil
}
