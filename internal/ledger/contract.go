package ledger

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed onlinevoting.abi.json
var onlineVotingABI string

// Contract は呼び出し対象のコントラクトのABIとアドレス。
type Contract struct {
	ABI     abi.ABI
	Address common.Address
}

// DefaultABI は組み込みのOnlineVoting ABIを返す。
func DefaultABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(onlineVotingABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse embedded abi: %w", err)
	}
	return parsed, nil
}

// artifact はtruffleのビルド成果物（build/contracts/*.json）のうち必要な部分。
type artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Networks map[string]struct {
		Address string `json:"address"`
	} `json:"networks"`
}

// LoadContract はコントラクトのABIとアドレスを解決する。
// addressOverrideが指定されていればそれを優先し、なければ
// ビルド成果物のnetworks[networkID].addressを使う。
// 成果物にABIがあればそれを使い、なければ組み込みABIを使う。
func LoadContract(artifactPath, networkID, addressOverride string) (Contract, error) {
	parsed, err := DefaultABI()
	if err != nil {
		return Contract{}, err
	}

	var address string
	if artifactPath != "" {
		data, err := os.ReadFile(artifactPath)
		switch {
		case err == nil:
			var art artifact
			if err := json.Unmarshal(data, &art); err != nil {
				return Contract{}, fmt.Errorf("failed to parse contract artifact %s: %w", artifactPath, err)
			}
			if len(art.ABI) > 0 && string(art.ABI) != "null" {
				fromArtifact, err := abi.JSON(bytes.NewReader(art.ABI))
				if err != nil {
					return Contract{}, fmt.Errorf("failed to parse artifact abi: %w", err)
				}
				parsed = fromArtifact
			}
			if network, ok := art.Networks[networkID]; ok {
				address = network.Address
			}
		case errors.Is(err, os.ErrNotExist) && addressOverride != "":
			// アドレスが明示されていれば成果物は不要
		default:
			return Contract{}, fmt.Errorf("failed to read contract artifact %s: %w", artifactPath, err)
		}
	}

	if addressOverride != "" {
		address = addressOverride
	}
	if address == "" {
		return Contract{}, fmt.Errorf("contract address is not configured for network %s", networkID)
	}
	if !common.IsHexAddress(address) {
		return Contract{}, fmt.Errorf("invalid contract address: %s", address)
	}

	for _, name := range []string{"registerUser", "getUser", "loginUser", "candidatesCount", "candidates", "addCandidate", "vote", "getWinner"} {
		if _, ok := parsed.Methods[name]; !ok {
			return Contract{}, fmt.Errorf("contract abi is missing method %s", name)
		}
	}

	return Contract{ABI: parsed, Address: common.HexToAddress(address)}, nil
}
