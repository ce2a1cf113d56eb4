package launcher

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-planet-node/actions"
	"github.com/rony4d/go-planet-node/genesis"
	"github.com/rony4d/go-planet-node/inter"
	"github.com/rony4d/go-planet-node/inter/validatorpk"
	"github.com/rony4d/go-planet-node/policy"
)

var (
	genesisOutFlag = cli.StringFlag{
		Name:  "out",
		Usage: "Where to write the genesis block",
		Value: "genesis.rlp",
	}
	genesisBalanceFlag = cli.StringFlag{
		Name:  "balance",
		Usage: "Raw key currency balance of every fake validator",
		Value: "1000000000000000000",
	}
)

var genesisCommand = cli.Command{
	Name:     "genesis",
	Usage:    "Build genesis blocks",
	Category: "GENESIS COMMANDS",
	Subcommands: []cli.Command{
		{
			Name:  "fake",
			Usage: "Write a deterministic genesis for a local network",
			Description: `Validators use the fake keys 1..N. Validator 1 signs the block,
print its key with "planetnode genesis fakekey 1".`,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "validators", Usage: "Number of validators", Value: 1},
				genesisBalanceFlag,
				genesisOutFlag,
			},
			Action: writeFakeGenesis,
		},
		{
			Name:      "fakekey",
			Usage:     "Print fake validator key N",
			ArgsUsage: "<N>",
			Action:    printFakeKey,
		},
		{
			Name:  "custom",
			Usage: "Write a genesis with explicit validators and allocations",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "signer", Usage: "Hex private key signing block 0"},
				cli.StringSliceFlag{Name: "validator", Usage: "PUBKEY:POWER, repeatable"},
				cli.StringSliceFlag{Name: "alloc", Usage: "ADDRESS:RAWAMOUNT of the key currency, repeatable"},
				cli.Int64Flag{Name: "time", Usage: "Unix time of block 0 (default: now)"},
				genesisOutFlag,
			},
			Action: writeCustomGenesis,
		},
	},
}

func writeFakeGenesis(ctx *cli.Context) error {
	n := ctx.Int("validators")
	if n < 1 {
		return errors.New("need at least one validator")
	}
	balance, ok := new(big.Int).SetString(ctx.String(genesisBalanceFlag.Name), 10)
	if !ok {
		return errors.Errorf("balance %q is not an integer", ctx.String(genesisBalanceFlag.Name))
	}
	return buildAndWrite(ctx, genesis.FakeGenesis(n, balance), "1", true)
}

func printFakeKey(ctx *cli.Context) error {
	n, err := strconv.Atoi(ctx.Args().First())
	if err != nil || n < 1 {
		return errors.New("want a positive key index")
	}
	return printKey(ctx.App.Writer, genesis.FakeKey(n))
}

func writeCustomGenesis(ctx *cli.Context) error {
	g := genesis.Genesis{Time: time.Now().UTC()}
	if ctx.IsSet("time") {
		g.Time = time.Unix(ctx.Int64("time"), 0).UTC()
	}
	for _, s := range ctx.StringSlice("validator") {
		v, err := parseValidator(s)
		if err != nil {
			return errors.Wrapf(err, "validator %q", s)
		}
		g.Validators = append(g.Validators, v)
	}
	for _, s := range ctx.StringSlice("alloc") {
		a, err := parseAllocation(s)
		if err != nil {
			return errors.Wrapf(err, "alloc %q", s)
		}
		g.Allocations = append(g.Allocations, a)
	}
	return buildAndWrite(ctx, g, ctx.String("signer"), false)
}

func buildAndWrite(ctx *cli.Context, g genesis.Genesis, signer string, fake bool) error {
	key := genesis.FakeKey(1)
	if !fake {
		var err error
		if key, err = loadKey("signer", signer, ""); err != nil {
			return err
		}
		if key == nil {
			return errors.New("--signer is required")
		}
	}
	b, err := g.Build(key)
	if err != nil {
		return err
	}
	out := ctx.String(genesisOutFlag.Name)
	if err := genesis.WriteFile(out, b); err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "Wrote genesis %s to %s\n", b.Hash().Hex(), out)
	return nil
}

func parseValidator(s string) (inter.Validator, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return inter.Validator{}, errors.New("want PUBKEY:POWER")
	}
	pk, err := validatorpk.FromString(s[:i])
	if err != nil {
		return inter.Validator{}, err
	}
	power, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return inter.Validator{}, errors.Wrap(err, "power")
	}
	return inter.Validator{PubKey: pk, Power: power}, nil
}

func parseAllocation(s string) (actions.Allocation, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) {
		return actions.Allocation{}, errors.New("want ADDRESS:RAWAMOUNT")
	}
	amount, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return actions.Allocation{}, errors.Errorf("amount %q is not an integer", parts[1])
	}
	return actions.Allocation{
		Address: common.HexToAddress(parts[0]),
		Amount:  inter.FungibleAssetValue{Currency: policy.KeyCurrency, RawValue: amount},
	}, nil
}
