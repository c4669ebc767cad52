// Package main implements a small operator tool around the marshalling
// engine: it canonicalizes payloads, resolves names against a name map and
// inspects the envelopes of a payload.
package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sort"

	"github.com/eventzio/eventz/marshall"
	"github.com/eventzio/eventz/resolver"
	urfave "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

func main() {
	app := makeApp(os.Stdin)

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func makeApp(in io.Reader) *urfave.App {
	return &urfave.App{
		Name:  "eventz",
		Usage: "inspect and canonicalize eventz payloads",
		Commands: []*urfave.Command{
			{
				Name:      "canon",
				Usage:     "rewrite a JSON payload in canonical form",
				ArgsUsage: "[file]",
				Action: func(c *urfave.Context) error {
					return canonAction(c, in)
				},
			},
			{
				Name:  "resolve",
				Usage: "resolve a name against a YAML name map",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:     "map",
						Usage:    "path to the YAML file of public to private pairs",
						Required: true,
					},
					&urfave.StringFlag{
						Name:  "public",
						Usage: "public name to resolve to a private path",
					},
					&urfave.StringFlag{
						Name:  "private",
						Usage: "private path to resolve to a public name",
					},
				},
				Action: resolveAction,
			},
			{
				Name:      "inspect",
				Usage:     "list the envelopes contained in a payload",
				ArgsUsage: "[file]",
				Action: func(c *urfave.Context) error {
					return inspectAction(c, in)
				},
			},
		},
	}
}

func canonAction(c *urfave.Context, in io.Reader) error {
	data, err := readInput(c, in)
	if err != nil {
		return err
	}

	out, err := marshall.Canonicalize(data)
	if err != nil {
		return xerrors.Errorf("failed to canonicalize: %v", err)
	}

	fmt.Fprintln(c.App.Writer, string(out))

	return nil
}

func resolveAction(c *urfave.Context) error {
	pairs, err := loadMap(c.String("map"))
	if err != nil {
		return err
	}

	res, err := resolver.NewResolver(pairs)
	if err != nil {
		return xerrors.Errorf("invalid name map: %v", err)
	}

	public := c.String("public")
	private := c.String("private")

	switch {
	case public != "" && private == "":
		path, err := res.ResolveType(public)
		if err != nil {
			return xerrors.Errorf("failed to resolve: %v", err)
		}

		fmt.Fprintln(c.App.Writer, path)

	case private != "" && public == "":
		name, err := res.ResolvePath(private)
		if err != nil {
			return xerrors.Errorf("failed to resolve: %v", err)
		}

		fmt.Fprintln(c.App.Writer, name)

	default:
		return xerrors.New("expect exactly one of --public or --private")
	}

	return nil
}

func inspectAction(c *urfave.Context, in io.Reader) error {
	data, err := readInput(c, in)
	if err != nil {
		return err
	}

	report, err := marshall.Inspect(data)
	if err != nil {
		return xerrors.Errorf("failed to inspect: %v", err)
	}

	fmt.Fprintf(c.App.Writer, "objects: %d\n", report.Objects)
	fmt.Fprintf(c.App.Writer, "enums: %d\n", report.Enums)
	fmt.Fprintf(c.App.Writer, "codecs: %d\n", report.CodecEnvelopes)

	for _, name := range sorted(report.Types) {
		fmt.Fprintf(c.App.Writer, "type %s\n", name)
	}

	for _, name := range sorted(report.Codecs) {
		fmt.Fprintf(c.App.Writer, "codec %s\n", name)
	}

	return nil
}

func readInput(c *urfave.Context, in io.Reader) ([]byte, error) {
	path := c.Args().First()
	if path == "" {
		data, err := ioutil.ReadAll(in)
		if err != nil {
			return nil, xerrors.Errorf("failed to read input: %v", err)
		}

		return data, nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read '%s': %v", path, err)
	}

	return data, nil
}

func loadMap(path string) (map[string]string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read '%s': %v", path, err)
	}

	pairs := make(map[string]string)

	err = yaml.Unmarshal(data, &pairs)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse '%s': %v", path, err)
	}

	return pairs, nil
}

func sorted(set map[string]int) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
