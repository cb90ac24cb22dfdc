package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "OnlineVoting.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadContract_FromArtifactNetwork(t *testing.T) {
	path := writeArtifact(t, `{"contractName":"OnlineVoting","networks":{"1337":{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}}}`)

	contract, err := LoadContract(path, "1337", "")
	require.NoError(t, err)
	assert.Equal(t, testContract, contract.Address)
	assert.Contains(t, contract.ABI.Methods, "vote")
}

func TestLoadContract_OverrideWins(t *testing.T) {
	path := writeArtifact(t, `{"networks":{"1337":{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}}}`)
	override := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	contract, err := LoadContract(path, "1337", override)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(override), contract.Address)
}

func TestLoadContract_OverrideWithoutArtifact(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")

	contract, err := LoadContract(missing, "1337", testContract.Hex())
	require.NoError(t, err)
	assert.Equal(t, testContract, contract.Address)
}

func TestLoadContract_Errors(t *testing.T) {
	t.Run("network not deployed", func(t *testing.T) {
		path := writeArtifact(t, `{"networks":{"5777":{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}}}`)
		_, err := LoadContract(path, "1337", "")
		assert.Error(t, err)
	})

	t.Run("artifact missing and no override", func(t *testing.T) {
		_, err := LoadContract(filepath.Join(t.TempDir(), "missing.json"), "1337", "")
		assert.Error(t, err)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := LoadContract("", "1337", "not-an-address")
		assert.Error(t, err)
	})

	t.Run("abi missing methods", func(t *testing.T) {
		path := writeArtifact(t, `{"abi":[{"type":"function","name":"foo","inputs":[],"outputs":[]}],"networks":{"1337":{"address":"0x5FbDB2315678afecb367f032d93F642f64180aa3"}}}`)
		_, err := LoadContract(path, "1337", "")
		assert.Error(t, err)
	})
}
