package cli

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/masq/ident"
)

func TestApp_Scenario(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-cli")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	owner := principal(dir, "owner.key")
	delegate := principal(dir, "delegate.key")

	// The owner masks a message.
	out, err := owner.run("create", "--message", "masked hello world")
	require.NoError(t, err)
	require.Equal(t, "1", out)

	out, err = owner.run("list")
	require.NoError(t, err)
	require.Equal(t, "1", out)

	out, err = owner.run("show", "--id", "1")
	require.NoError(t, err)
	require.Contains(t, out, "owner:")
	require.NotContains(t, out, "masked hello world")

	// The owner recovers it.
	out, err = owner.run("recover", "--id", "1")
	require.NoError(t, err)
	require.Equal(t, "masked hello world", out)

	// The delegate is rejected until the owner grants it.
	_, err = delegate.run("recover", "--id", "1")
	require.Error(t, err)

	delegateID, err := delegate.run("identity")
	require.NoError(t, err)

	_, err = ident.Parse(delegateID)
	require.NoError(t, err)

	_, err = owner.run("grant", "--id", "1", "--delegate", delegateID)
	require.NoError(t, err)

	out, err = delegate.run("recover", "--id", "1")
	require.NoError(t, err)
	require.Equal(t, "masked hello world", out)

	out, err = owner.run("authorized", "--id", "1")
	require.NoError(t, err)
	require.Len(t, strings.Split(out, "\n"), 2)

	// A second grant of the same delegate is refused.
	_, err = owner.run("grant", "--id", "1", "--delegate", delegateID)
	require.Error(t, err)

	_, err = owner.run("grant", "--id", "1", "--delegate", "not hexadecimal")
	require.Error(t, err)
}

func TestApp_ConfigFile(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-cli")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	store := filepath.Join(dir, "conf.db")

	conf := fmt.Sprintf("store: %s\n", store)

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(conf), 0600))

	app := NewApp(new(bytes.Buffer))

	err = app.Run([]string{"masq",
		"--config", path,
		"--keyfile", filepath.Join(dir, "masq.key"),
		"--vaultkey", filepath.Join(dir, "vault.key"),
		"identity",
	})
	require.NoError(t, err)

	// The store path came from the configuration file.
	_, err = os.Stat(store)
	require.NoError(t, err)
}

func TestApp_ConfigFile_Missing(t *testing.T) {
	app := NewApp(new(bytes.Buffer))

	err := app.Run([]string{"masq",
		"--config", "definitely-missing.yml",
		"identity",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load config")
}

func TestApp_ConfigFile_Malformed(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "masq-cli")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte("\tnot yaml"), 0600))

	app := NewApp(new(bytes.Buffer))

	err = app.Run([]string{"masq", "--config", path, "identity"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse config")
}

// -----------------------------------------------------------------------------
// Utility functions

// testPrincipal runs commands against a shared store with a per-principal
// identity key.
type testPrincipal struct {
	dir     string
	keyfile string
}

func principal(dir, keyfile string) testPrincipal {
	return testPrincipal{dir: dir, keyfile: keyfile}
}

func (p testPrincipal) run(args ...string) (string, error) {
	out := new(bytes.Buffer)
	app := NewApp(out)

	argv := []string{"masq",
		"--store", filepath.Join(p.dir, "masq.db"),
		"--keyfile", filepath.Join(p.dir, p.keyfile),
		"--vaultkey", filepath.Join(p.dir, "vault.key"),
	}

	err := app.Run(append(argv, args...))

	return strings.TrimSpace(out.String()), err
}
