package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mnehpets/nsrpc/client"
	"github.com/mnehpets/nsrpc/config"
	"github.com/mnehpets/nsrpc/credentials"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the state shared by all subcommands.
type app struct {
	envFiles   []string
	schemaPath string
	timeout    int
	strictIDs  bool
	verbose    bool

	out    io.Writer
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:          "nsrpc",
		Short:        "Call methods of a namespaced JSON-RPC 2.0 server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", nil, "read settings from these .env files (default ./.env if present)")
	flags.StringVar(&a.schemaPath, "schema", "", "schema file listing the server's methods (overrides "+config.EnvSchema+")")
	flags.IntVar(&a.timeout, "timeout", int(client.DefaultTimeout.Seconds()), "timeout in seconds, 0 for none (overrides "+config.EnvTimeout+")")
	flags.BoolVar(&a.strictIDs, "strict-ids", false, "reject responses without an id (overrides "+config.EnvStrictIDs+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log every request")

	root.AddCommand(a.pingCmd(), a.callCmd(), a.listCmd(), a.sealCmd())
	return root
}

// setup loads the configuration and applies flags that were set explicitly.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.verbose {
		a.logger, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		a.logger, err = zcfg.Build()
	}
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	a.cfg, err = config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("schema") {
		a.cfg.SchemaPath = a.schemaPath
	}
	if flags.Changed("timeout") {
		a.cfg.Timeout = a.timeout
	}
	if flags.Changed("strict-ids") {
		a.cfg.StrictIDs = a.strictIDs
	}
	return nil
}

func (a *app) newClient(ctx context.Context) (*client.Client, error) {
	return a.cfg.NewClient(ctx, a.logger)
}

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.PrepareConnection(); err != nil {
				return err
			}
			if err := c.AssertCanConnect(ctx); err != nil {
				return err
			}
			srv := c.Server()
			fmt.Fprintf(a.out, "ok %s\n", credentials.Address(srv.Host, srv.Port))
			return nil
		},
	}
}

func (a *app) callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <Method.Path> [params-json]",
		Short: "Call a method and print its result",
		Long: `Call a method and print its JSON result.

params-json must be a JSON array (positional parameters) or object (named
parameters). The method must be listed in the schema.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params interface{}
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("params are not valid JSON: %s", args[1])
				}
				params = json.RawMessage(args[1])
			}

			ctx := cmd.Context()
			c, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(ctx, args[0], params)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, resp.Result, "", "  "); err != nil {
				return fmt.Errorf("format result: %w", err)
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(a.out)
			return err
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the methods in the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.cfg.LoadSchema()
			if err != nil {
				return err
			}
			return root.Walk(func(path string) error {
				_, err := fmt.Fprintln(a.out, path)
				return err
			})
		},
	}
}

func (a *app) sealCmd() *cobra.Command {
	var user, pass string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal credentials for " + config.EnvCredentials,
		Long: `Seal a user and password for the configured server and print the
settings to use instead of ` + config.EnvUser + ` and ` + config.EnvPass + `.

The key is taken from ` + config.EnvCredentialsKey + `. If it is not set, a new
key is generated and printed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keySpec := os.Getenv(config.EnvCredentialsKey)
			generated := keySpec == ""
			if generated {
				key, err := credentials.GenerateKey()
				if err != nil {
					return err
				}
				keySpec = credentials.EncodeKey("k1", key)
			}
			keyID, keys, err := credentials.ParseKeys(keySpec)
			if err != nil {
				return err
			}
			sealer, err := credentials.NewSealer(keyID, keys)
			if err != nil {
				return err
			}
			srv := a.cfg.Server
			token, err := sealer.Seal(credentials.Credentials{User: user, Pass: pass}, credentials.Address(srv.Host, srv.Port))
			if err != nil {
				return err
			}
			if generated {
				fmt.Fprintf(a.out, "%s=%s\n", config.EnvCredentialsKey, keySpec)
			}
			fmt.Fprintf(a.out, "%s=%s\n", config.EnvCredentials, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user name")
	cmd.Flags().StringVar(&pass, "pass", "", "password")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
