package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/sealed-config/api"
	"github.com/ruteri/sealed-config/cmd/flags"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/envelope"
	"github.com/ruteri/sealed-config/httpserver"
	"github.com/ruteri/sealed-config/instanceutils/configresolver"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var flagIn = &cli.StringFlag{
	Name:  "in",
	Value: "-",
	Usage: "envelope file to read, - for stdin",
}
var flagOut = &cli.StringFlag{
	Name:  "out",
	Value: "-",
	Usage: "file to write, - for stdout",
}
var flagValue = &cli.StringFlag{
	Name:  "value",
	Usage: "value to encrypt, parsed as JSON when valid and taken as a string otherwise",
}
var flagValueFile = &cli.StringFlag{
	Name:  "value-file",
	Usage: "file holding the value to encrypt",
}
var flagNode = &cli.StringFlag{
	Name:     "node",
	Required: true,
	Usage:    "node whose record holds the value",
}
var flagPath = &cli.StringFlag{
	Name:     "path",
	Required: true,
	Usage:    "dotted field path in the node record, e.g. secrets.db_password",
}
var flagPublicOut = &cli.StringFlag{
	Name:  "public-out",
	Usage: "also write the public key to this file",
}

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "generate a P-256 identity key pair",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Required: true, Usage: "file to write the private key PEM to"},
		flagPublicOut,
	},
	Action: func(cCtx *cli.Context) error {
		pub, priv, err := cryptoutils.RandomP256Keypair()
		if err != nil {
			return err
		}
		privPEM, err := priv.PEM()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cCtx.String("out"), privPEM, 0o600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		if path := cCtx.String(flagPublicOut.Name); path != "" {
			if err := os.WriteFile(path, pub.PEM(), 0o644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}
		}

		fmt.Fprintf(cCtx.App.ErrWriter, "fingerprint: %s\n", pub.Fingerprint())
		_, err = cCtx.App.Writer.Write(pub.PEM())
		return err
	},
}

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "generate an API bearer token for a directory user",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true, Usage: "directory user the token authenticates"},
	},
	Action: func(cCtx *cli.Context) error {
		token, entry, err := api.GenerateToken(cCtx.String("name"))
		if err != nil {
			return err
		}
		file, err := yaml.Marshal(api.CallerTokensFile{Callers: []api.CallerToken{entry}})
		if err != nil {
			return err
		}

		fmt.Fprintf(cCtx.App.ErrWriter, "# --api-tokens entry\n%s", file)
		_, err = fmt.Fprintln(cCtx.App.Writer, token)
		return err
	},
}

var createCommand = &cli.Command{
	Name:  "create",
	Usage: "encrypt a value for the principals selected by a policy",
	Flags: append([]cli.Flag{flagValue, flagValueFile, flagOut}, flags.PolicyFlags...),
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		value, err := readValue(cCtx)
		if err != nil {
			return err
		}
		policy, err := flags.PolicyFromFlags(cCtx)
		if err != nil {
			return err
		}

		env, err := engine.Controller.Create(cCtx.Context, value, policy)
		if err != nil {
			return err
		}
		return writeEnvelope(cCtx, env)
	},
}

var loadCommand = &cli.Command{
	Name:  "load",
	Usage: "decrypt an envelope with the local identity",
	Flags: []cli.Flag{flagIn, flagOut},
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		env, err := readEnvelope(cCtx)
		if err != nil {
			return err
		}

		value, err := engine.Controller.Load(env, nil)
		if err != nil {
			return err
		}
		return writeOutput(cCtx, append(value, '\n'))
	},
}

var updateCommand = &cli.Command{
	Name:  "update",
	Usage: "re-encrypt an envelope if its recipients or format are out of date",
	Flags: append([]cli.Flag{flagIn, flagOut}, flags.PolicyFlags...),
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		env, err := readEnvelope(cCtx)
		if err != nil {
			return err
		}
		policy, err := flags.PolicyFromFlags(cCtx)
		if err != nil {
			return err
		}

		updated, changed, err := engine.Controller.Update(cCtx.Context, env, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(cCtx.App.ErrWriter, "updated: %t\n", changed)
		return writeEnvelope(cCtx, updated)
	},
}

var existsCommand = &cli.Command{
	Name:  "exists",
	Usage: "check whether the input is a well-formed envelope; exits 1 if not",
	Flags: []cli.Flag{flagIn},
	Action: func(cCtx *cli.Context) error {
		raw, err := readInput(cCtx)
		if err != nil {
			return err
		}
		if !envelope.Exists(raw) {
			fmt.Fprintln(cCtx.App.Writer, "false")
			return cli.Exit("", 1)
		}
		fmt.Fprintln(cCtx.App.Writer, "true")
		return nil
	},
}

var sealCommand = &cli.Command{
	Name:  "seal",
	Usage: "encrypt a value and store it on a node record",
	Flags: append([]cli.Flag{flagNode, flagPath, flagValue, flagValueFile}, flags.PolicyFlags...),
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		value, err := readValue(cCtx)
		if err != nil {
			return err
		}
		policy, err := flags.PolicyFromFlags(cCtx)
		if err != nil {
			return err
		}

		env, err := engine.Controller.Seal(cCtx.Context, nodeFlag(cCtx), pathFlag(cCtx), value, policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(cCtx.App.Writer, "sealed %s:%s for %d recipients\n", cCtx.String(flagNode.Name), cCtx.String(flagPath.Name), len(env.Recipients()))
		return nil
	},
}

var unsealCommand = &cli.Command{
	Name:  "unseal",
	Usage: "decrypt a value stored on a node record with the local identity",
	Flags: []cli.Flag{flagNode, flagPath},
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}

		value, err := engine.Controller.Unseal(cCtx.Context, nodeFlag(cCtx), pathFlag(cCtx))
		if err != nil {
			return err
		}
		_, err = cCtx.App.Writer.Write(append(value, '\n'))
		return err
	},
}

var resealCommand = &cli.Command{
	Name:  "reseal",
	Usage: "re-encrypt a stored value if the policy's recipients changed",
	Flags: append([]cli.Flag{flagNode, flagPath}, flags.PolicyFlags...),
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		policy, err := flags.PolicyFromFlags(cCtx)
		if err != nil {
			return err
		}

		env, updated, err := engine.Controller.Reseal(cCtx.Context, nodeFlag(cCtx), pathFlag(cCtx), policy)
		if err != nil {
			return err
		}
		fmt.Fprintf(cCtx.App.Writer, "updated: %t, recipients: %d\n", updated, len(env.Recipients()))
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "describe a stored value without decrypting it",
	Flags: []cli.Flag{flagNode, flagPath},
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}

		status, err := engine.Controller.Inspect(cCtx.Context, nodeFlag(cCtx), pathFlag(cCtx))
		if err != nil {
			return err
		}
		return printJSON(cCtx.App.Writer, status)
	},
}

var resolveCommand = &cli.Command{
	Name:  "resolve",
	Usage: "print the fingerprints a policy currently resolves to",
	Flags: flags.PolicyFlags,
	Action: func(cCtx *cli.Context) error {
		engine, err := flags.SetupEngine(cCtx, flags.SetupLogger(cCtx))
		if err != nil {
			return err
		}
		policy, err := flags.PolicyFromFlags(cCtx)
		if err != nil {
			return err
		}

		keys, err := engine.Resolver.Resolve(cCtx.Context, policy)
		if err != nil {
			return err
		}
		for _, fp := range keys.Fingerprints() {
			fmt.Fprintln(cCtx.App.Writer, fp)
		}
		return nil
	},
}

var renderCommand = &cli.Command{
	Name:  "render",
	Usage: "decrypt every envelope of a node record readable by the local identity",
	Flags: []cli.Flag{
		flagIn,
		flagOut,
		&cli.BoolFlag{Name: "strict", Usage: "fail on envelopes sealed for other principals"},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		engine, err := flags.SetupEngine(cCtx, logger)
		if err != nil {
			return err
		}
		if engine.Identity == nil {
			return fmt.Errorf("render requires --%s", flags.IdentityKeyFlag.Name)
		}
		record, err := readInput(cCtx)
		if err != nil {
			return err
		}

		result, err := configresolver.ResolveRecord(logger, engine.Codec, engine.Identity.PrivateKey(), record, cCtx.Bool("strict"))
		if err != nil {
			return err
		}
		logger.Info("Rendered node record",
			"decrypted", len(result.Decrypted),
			"skipped", len(result.Skipped))
		return writeOutput(cCtx, append(result.Record, '\n'))
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve the record commands over HTTP",
	Flags: flags.ServerFlags,
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		engine, err := flags.SetupEngine(cCtx, logger)
		if err != nil {
			return err
		}
		if engine.Store == nil {
			return errors.New("serve requires at least one --storage location")
		}

		cfg, err := flags.ConfigureServer(cCtx, logger)
		if err != nil {
			return err
		}
		if engine.Lookup == nil {
			logger.Warn("No directory configured, callers cannot be matched to recipients and unseal and rotate will be refused")
		}
		handler := httpserver.NewHandler(engine.Controller, engine.Resolver, engine.Lookup, logger)
		routes := []httpserver.RouteRegistrar{handler}
		if cfg.ServeDirectory {
			if engine.Directory == nil || engine.Lookup == nil {
				return errors.New("--serve-directory requires --inventory-file or --directory-url")
			}
			routes = append(routes, handler.DirectoryHandler(engine.Directory, engine.Lookup))
		}

		server, err := httpserver.New(cfg, routes...)
		if err != nil {
			logger.Error("Failed to create server", "err", err)
			return err
		}

		logger.Info("Starting server", "storage", engine.Store.LocationURI())
		server.RunInBackground()

		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

		logger.Info("Server is running, press Ctrl+C to stop")
		<-exit
		logger.Info("Shutdown signal received")

		server.Shutdown()
		logger.Info("Server shutdown complete")
		return nil
	},
}

func nodeFlag(cCtx *cli.Context) interfaces.NodeIdentity {
	return interfaces.NodeIdentity(cCtx.String(flagNode.Name))
}

func pathFlag(cCtx *cli.Context) interfaces.FieldPath {
	return interfaces.FieldPath(cCtx.String(flagPath.Name))
}

// readValue returns the value to encrypt. Valid JSON is kept as is, anything
// else becomes a JSON string.
func readValue(cCtx *cli.Context) (any, error) {
	var raw []byte
	switch {
	case cCtx.IsSet(flagValue.Name) && cCtx.IsSet(flagValueFile.Name):
		return nil, fmt.Errorf("--%s and --%s are mutually exclusive", flagValue.Name, flagValueFile.Name)
	case cCtx.IsSet(flagValue.Name):
		raw = []byte(cCtx.String(flagValue.Name))
	case cCtx.IsSet(flagValueFile.Name):
		data, err := os.ReadFile(cCtx.String(flagValueFile.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to read value file: %w", err)
		}
		raw = data
	default:
		return nil, fmt.Errorf("one of --%s or --%s is required", flagValue.Name, flagValueFile.Name)
	}

	if json.Valid(raw) {
		return json.RawMessage(raw), nil
	}
	return string(raw), nil
}

func readInput(cCtx *cli.Context) ([]byte, error) {
	path := cCtx.String(flagIn.Name)
	if path == "" || path == "-" {
		return io.ReadAll(cCtx.App.Reader)
	}
	return os.ReadFile(path)
}

func readEnvelope(cCtx *cli.Context) (envelope.Envelope, error) {
	raw, err := readInput(cCtx)
	if err != nil {
		return nil, err
	}
	return envelope.Parse(raw)
}

func writeEnvelope(cCtx *cli.Context, env envelope.Envelope) error {
	raw, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	return writeOutput(cCtx, append(raw, '\n'))
}

func writeOutput(cCtx *cli.Context, data []byte) error {
	path := cCtx.String(flagOut.Name)
	if path == "" || path == "-" {
		_, err := cCtx.App.Writer.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
