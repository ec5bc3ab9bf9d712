package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli"

	contract "visitorbook/contracts/visitorbook"
	jwttoken "visitorbook/internal/jwt_token"
	"visitorbook/pkg/domain"
)

func runToken(c *cli.Context) error {
	caller, err := domain.ParseAddress(c.String("address"))
	if err != nil {
		return fmt.Errorf("--address: %w", err)
	}
	svc := jwttoken.NewJWTService(c.String("key"), c.String("issuer"))
	token, err := svc.GenerateCallerToken(caller, c.Duration("ttl"))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, struct {
		Caller    string `json:"caller"`
		Token     string `json:"token"`
		ExpiresIn string `json:"expires_in"`
	}{
		Caller:    caller.Hex(),
		Token:     token,
		ExpiresIn: c.Duration("ttl").String(),
	})
}

func runDecodeRevert(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one HEX argument, got %d", c.NArg())
	}
	data, err := hexutil.Decode(c.Args().First())
	if err != nil {
		return fmt.Errorf("revert data: %w", err)
	}
	name, args, err := contract.DecodeRevert(data)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, struct {
		Error string `json:"error"`
		Args  []any  `json:"args"`
	}{
		Error: name,
		Args:  args,
	})
}

func runSelectors(c *cli.Context) error {
	out := map[string]string{}
	for _, name := range []string{
		contract.ErrorInsufficientPayment,
		contract.ErrorTransferFailed,
		contract.ErrorAlreadyVisited,
		contract.ErrorIndexOutOfBounds,
	} {
		sel, err := contract.Selector(name)
		if err != nil {
			return err
		}
		out[name] = hexutil.Encode(sel[:])
	}
	out[contract.EventVisit] = contract.VisitTopic().Hex()
	return printJSON(c.App.Writer, out)
}
