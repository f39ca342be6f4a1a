// Package cli implements the masq command line tool. It runs the whole
// lifecycle of a masked message against a local store: create, list, show,
// grant and recover.
package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/masq"
	"go.dedis.ch/masq/access"
	"go.dedis.ch/masq/core/store/kv"
	"go.dedis.ch/masq/ident"
	"go.dedis.ch/masq/node"
	"go.dedis.ch/masq/serde/json"
	"go.dedis.ch/masq/service"
	"go.dedis.ch/masq/vault/ocs"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// DefaultContext is the context label decryption envelopes must carry to be
// accepted by the local vault.
var DefaultContext = []byte("go.dedis.ch/masq")

// config is the optional YAML configuration of the tool. Command line flags
// take precedence over the file.
type config struct {
	Store    string `yaml:"store"`
	KeyFile  string `yaml:"keyfile"`
	VaultKey string `yaml:"vaultkey"`
}

// NewApp creates the masq application.
func NewApp(out io.Writer) *urfave.App {
	app := &urfave.App{
		Name:   "masq",
		Usage:  "store and share masked messages",
		Writer: out,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "config",
				Usage: "path to an optional YAML configuration file",
			},
			&urfave.StringFlag{
				Name:  "store",
				Value: "masq.db",
				Usage: "path of the database",
			},
			&urfave.StringFlag{
				Name:  "keyfile",
				Value: "masq.key",
				Usage: "path of the identity key file",
			},
			&urfave.StringFlag{
				Name:  "vaultkey",
				Value: "vault.key",
				Usage: "path of the vault key file",
			},
		},
		Commands: []*urfave.Command{
			{
				Name:   "identity",
				Usage:  "print the local identity",
				Action: withService(identityAction),
			},
			{
				Name:  "create",
				Usage: "mask a message and store it",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:     "message",
						Required: true,
						Usage:    "the message to mask",
					},
				},
				Action: withService(createAction),
			},
			{
				Name:   "list",
				Usage:  "list the ids of the nodes created by the local identity",
				Action: withService(listAction),
			},
			{
				Name:  "show",
				Usage: "show a node record",
				Flags: []urfave.Flag{
					&urfave.Uint64Flag{
						Name:     "id",
						Required: true,
						Usage:    "the node id",
					},
				},
				Action: withService(showAction),
			},
			{
				Name:  "authorized",
				Usage: "list the identities authorized on a node",
				Flags: []urfave.Flag{
					&urfave.Uint64Flag{
						Name:     "id",
						Required: true,
						Usage:    "the node id",
					},
				},
				Action: withService(authorizedAction),
			},
			{
				Name:  "grant",
				Usage: "authorize another identity to recover a node's message",
				Flags: []urfave.Flag{
					&urfave.Uint64Flag{
						Name:     "id",
						Required: true,
						Usage:    "the node id",
					},
					&urfave.StringFlag{
						Name:     "delegate",
						Required: true,
						Usage:    "hexadecimal identity of the delegate",
					},
				},
				Action: withService(grantAction),
			},
			{
				Name:  "recover",
				Usage: "recover the message of a node",
				Flags: []urfave.Flag{
					&urfave.Uint64Flag{
						Name:     "id",
						Required: true,
						Usage:    "the node id",
					},
				},
				Action: withService(recoverAction),
			},
			{
				Name:  "metrics",
				Usage: "serve the Prometheus metrics",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  "addr",
						Value: "127.0.0.1:9090",
						Usage: "address to listen on",
					},
				},
				Action: metricsAction,
			},
		},
	}

	return app
}

// loadConfig resolves the configuration from the optional YAML file and the
// flags.
func loadConfig(c *urfave.Context) (config, error) {
	cfg := config{
		Store:    c.String("store"),
		KeyFile:  c.String("keyfile"),
		VaultKey: c.String("vaultkey"),
	}

	path := c.String("config")
	if path == "" {
		return cfg, nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("failed to read config: %v", err)
	}

	file := config{}

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return cfg, xerrors.Errorf("failed to parse config: %v", err)
	}

	if file.Store != "" && !c.IsSet("store") {
		cfg.Store = file.Store
	}

	if file.KeyFile != "" && !c.IsSet("keyfile") {
		cfg.KeyFile = file.KeyFile
	}

	if file.VaultKey != "" && !c.IsSet("vaultkey") {
		cfg.VaultKey = file.VaultKey
	}

	return cfg, nil
}

// withService wires the store, the identity and the vault before running the
// action.
func withService(fn func(*urfave.Context, *service.Service) error) urfave.ActionFunc {
	return func(c *urfave.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return xerrors.Errorf("failed to load config: %v", err)
		}

		db, err := kv.New(cfg.Store)
		if err != nil {
			return xerrors.Errorf("failed to open store: %v", err)
		}

		defer db.Close()

		kp, err := ident.LoadOrCreate(cfg.KeyFile)
		if err != nil {
			return xerrors.Errorf("failed to load identity: %v", err)
		}

		sctx := json.NewContext()

		vlt, err := ocs.NewPersistentVault(DefaultContext, sctx, db, cfg.VaultKey)
		if err != nil {
			return xerrors.Errorf("failed to open vault: %v", err)
		}

		registry := node.NewRegistry(db, sctx)
		controller := access.NewController(registry, vlt)

		srv, err := service.NewService(kp, registry, controller, vlt, sctx, DefaultContext)
		if err != nil {
			return xerrors.Errorf("failed to create service: %v", err)
		}

		return fn(c, srv)
	}
}

func identityAction(c *urfave.Context, srv *service.Service) error {
	fmt.Fprintln(c.App.Writer, srv.Identity())

	return nil
}

func createAction(c *urfave.Context, srv *service.Service) error {
	id, err := srv.Create([]byte(c.String("message")))
	if err != nil {
		return xerrors.Errorf("failed to create node: %v", err)
	}

	fmt.Fprintln(c.App.Writer, id)

	return nil
}

func listAction(c *urfave.Context, srv *service.Service) error {
	ids, err := srv.ListMine()
	if err != nil {
		return xerrors.Errorf("failed to list nodes: %v", err)
	}

	for _, id := range ids {
		fmt.Fprintln(c.App.Writer, id)
	}

	return nil
}

func showAction(c *urfave.Context, srv *service.Service) error {
	record, err := srv.GetNode(c.Uint64("id"))
	if err != nil {
		return xerrors.Errorf("failed to get node: %v", err)
	}

	handle := record.GetHandle()

	fmt.Fprintf(c.App.Writer, "id:\t%d\n", record.GetID())
	fmt.Fprintf(c.App.Writer, "owner:\t%s\n", record.GetOwner())
	fmt.Fprintf(c.App.Writer, "handle:\t%s\n", handle)
	fmt.Fprintf(c.App.Writer, "payload:\t%s\n", hex.EncodeToString(record.GetPayload()))
	fmt.Fprintf(c.App.Writer, "created:\t%s\n", record.GetCreatedAt())

	return nil
}

func authorizedAction(c *urfave.Context, srv *service.Service) error {
	list, err := srv.ListAuthorized(c.Uint64("id"))
	if err != nil {
		return xerrors.Errorf("failed to list authorized: %v", err)
	}

	for _, member := range list {
		fmt.Fprintln(c.App.Writer, member)
	}

	return nil
}

func grantAction(c *urfave.Context, srv *service.Service) error {
	delegate, err := ident.Parse(c.String("delegate"))
	if err != nil {
		return xerrors.Errorf("invalid delegate: %v", err)
	}

	err = srv.Grant(c.Uint64("id"), delegate)
	if err != nil {
		return xerrors.Errorf("failed to grant: %v", err)
	}

	return nil
}

func recoverAction(c *urfave.Context, srv *service.Service) error {
	message, err := srv.RecoverMessage(c.Uint64("id"))
	if err != nil {
		return xerrors.Errorf("failed to recover message: %v", err)
	}

	fmt.Fprintln(c.App.Writer, string(message))

	return nil
}

func metricsAction(c *urfave.Context) error {
	registry := prometheus.NewRegistry()

	err := registry.Register(prometheus.NewGoCollector())
	if err != nil {
		return xerrors.Errorf("failed to register go collector: %v", err)
	}

	for _, collector := range masq.PromCollectors {
		err := registry.Register(collector)
		if err != nil {
			return xerrors.Errorf("failed to register collector: %v", err)
		}
	}

	masq.Logger.Info().Str("addr", c.String("addr")).Msg("serving metrics")

	return http.ListenAndServe(c.String("addr"),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
