// Command visitorbook-cli issues development caller tokens and decodes the
// revert payloads returned by the visitorbook API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "dev"

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "visitorbook-cli"
	app.Usage = "developer tooling for the visitorbook API"
	app.Version = version
	app.Writer = stdout
	app.ErrWriter = stderr

	app.Commands = []cli.Command{
		{
			Name:      "token",
			Usage:     "issue a bearer token for a caller address",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "address, a",
					Usage: "*caller `ADDRESS` (0x-prefixed hex)",
				},
				cli.StringFlag{
					Name:   "key, k",
					Value:  "dev-secret-key-change-in-production",
					Usage:  " HMAC signing `KEY`",
					EnvVar: "JWT_SIGNING_KEY",
				},
				cli.StringFlag{
					Name:   "issuer, i",
					Value:  "visitorbook",
					Usage:  " token `ISSUER`",
					EnvVar: "JWT_ISSUER",
				},
				cli.DurationFlag{
					Name:  "ttl, t",
					Value: time.Hour,
					Usage: " token lifetime `DURATION`",
				},
			},
			Action: runToken,
		},
		{
			Name:      "decode-revert",
			Usage:     "decode a revert_data value into the error name and arguments",
			ArgsUsage: "HEX",
			Action:    runDecodeRevert,
		},
		{
			Name:   "selectors",
			Usage:  "print the 4-byte selector of every registry error",
			Action: runSelectors,
		},
	}
	return app
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
