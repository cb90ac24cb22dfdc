package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
)

// ClientConfig は台帳クライアントの設定。
type ClientConfig struct {
	CallTimeout         time.Duration // 1回の呼び出し（トランザクションは採掘まで）の上限
	GasLimit            uint64
	ReceiptPollInterval time.Duration
	Observer            Observer
}

// DefaultClientConfig はデフォルト設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CallTimeout:         15 * time.Second,
		GasLimit:            3_000_000,
		ReceiptPollInterval: 250 * time.Millisecond,
	}
}

// Client はJSON-RPC経由でOnlineVotingコントラクトを呼び出す台帳クライアント。
// トランザクションはノードがアンロックしているアカウントから eth_sendTransaction で送信する。
type Client struct {
	rpc      *rpc.Client
	eth      *ethclient.Client
	contract Contract
	config   ClientConfig
	breaker  *gobreaker.CircuitBreaker
}

// コンパイル時にインターフェースの実装を検証
var (
	_ IdentityRegistry = (*Client)(nil)
	_ CandidateLedger  = (*Client)(nil)
	_ AccountLister    = (*Client)(nil)
)

// Dial は台帳ノードに接続してClientを生成する。
func Dial(ctx context.Context, rawURL string, contract Contract, config ClientConfig) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %w", err)
	}
	return NewClient(rc, contract, config), nil
}

// NewClient は接続済みのRPCクライアントからClientを生成する。
func NewClient(rc *rpc.Client, contract Contract, config ClientConfig) *Client {
	defaults := DefaultClientConfig()
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.GasLimit == 0 {
		config.GasLimit = defaults.GasLimit
	}
	if config.ReceiptPollInterval <= 0 {
		config.ReceiptPollInterval = defaults.ReceiptPollInterval
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ledger",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// revertはノードが正常に応答した結果なので失敗として数えない
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			_, ok := revertReason(err)
			return ok
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("ledger circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Client{
		rpc:      rc,
		eth:      ethclient.NewClient(rc),
		contract: contract,
		config:   config,
		breaker:  breaker,
	}
}

// Close はRPC接続を閉じる。
func (c *Client) Close() {
	c.rpc.Close()
}

// Accounts はノードが管理するアカウント一覧を返す。
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	var accounts []common.Address
	err := c.invoke(ctx, "eth_accounts", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &accounts, "eth_accounts")
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// RegisterUser は有権者登録トランザクションを送信する。
func (c *Client) RegisterUser(ctx context.Context, from common.Address, name, mobile, credential string) (*Receipt, error) {
	return c.transact(ctx, from, "registerUser", name, mobile, credential)
}

// GetUser は指定アドレスの有権者情報を取得する。
func (c *Client) GetUser(ctx context.Context, addr common.Address) (*UserRecord, error) {
	values, err := c.view(ctx, "getUser", addr)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, c.decodeFault("getUser", fmt.Errorf("unexpected output count %d", len(values)))
	}
	name, _ := values[0].(string)
	mobile, _ := values[1].(string)
	credential, _ := values[2].(string)
	address, ok := values[3].(common.Address)
	if !ok {
		return nil, c.decodeFault("getUser", fmt.Errorf("unexpected address type %T", values[3]))
	}
	return &UserRecord{Name: name, Mobile: mobile, Credential: credential, Address: address}, nil
}

// LoginUser は登録番号とアドレスの組が有効かを返す。
func (c *Client) LoginUser(ctx context.Context, credential string, addr common.Address) (bool, error) {
	values, err := c.view(ctx, "loginUser", credential, addr)
	if err != nil {
		return false, err
	}
	if len(values) != 1 {
		return false, c.decodeFault("loginUser", fmt.Errorf("unexpected output count %d", len(values)))
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, c.decodeFault("loginUser", fmt.Errorf("unexpected output type %T", values[0]))
	}
	return ok, nil
}

// CandidatesCount は登録済み候補者数を返す。
func (c *Client) CandidatesCount(ctx context.Context) (uint64, error) {
	values, err := c.view(ctx, "candidatesCount")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, c.decodeFault("candidatesCount", fmt.Errorf("unexpected output count %d", len(values)))
	}
	count, err := toUint64(values[0])
	if err != nil {
		return 0, c.decodeFault("candidatesCount", err)
	}
	return count, nil
}

// Candidate は指定IDの候補者を取得する。
func (c *Client) Candidate(ctx context.Context, id uint64) (*CandidateRecord, error) {
	out, err := c.call(ctx, "candidates", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := c.contract.ABI.UnpackIntoMap(fields, "candidates", out); err != nil {
		return nil, c.decodeFault("candidates", err)
	}

	record := &CandidateRecord{}
	var decodeErr error
	uintField := func(key string) uint64 {
		v, err := toUint64(fields[key])
		if err != nil && decodeErr == nil {
			decodeErr = fmt.Errorf("field %s: %w", key, err)
		}
		return v
	}
	record.ID = uintField("id")
	record.Age = uintField("age")
	record.DOB = uintField("dob")
	record.Experience = uintField("experience")
	record.VoteCount = uintField("voteCount")
	record.Name, _ = fields["name"].(string)
	record.PhotoFileName, _ = fields["photoFileName"].(string)
	record.Region, _ = fields["region"].(string)
	record.ManifestoFileName, _ = fields["manifestoFileName"].(string)
	if decodeErr != nil {
		return nil, c.decodeFault("candidates", decodeErr)
	}
	return record, nil
}

// AddCandidate は候補者登録トランザクションを送信する。
func (c *Client) AddCandidate(ctx context.Context, from common.Address, cand NewCandidate) (*Receipt, error) {
	return c.transact(ctx, from, "addCandidate",
		cand.Name,
		cand.PhotoFileName,
		new(big.Int).SetUint64(cand.Age),
		new(big.Int).SetUint64(cand.DOB),
		cand.Region,
		new(big.Int).SetUint64(cand.Experience),
		cand.ManifestoFileName,
	)
}

// Vote は投票トランザクションを送信する。
func (c *Client) Vote(ctx context.Context, from common.Address, candidateID uint64) (*Receipt, error) {
	return c.transact(ctx, from, "vote", new(big.Int).SetUint64(candidateID))
}

// GetWinner は最多得票の候補者を返す。
func (c *Client) GetWinner(ctx context.Context) (*WinnerRecord, error) {
	values, err := c.view(ctx, "getWinner")
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, c.decodeFault("getWinner", fmt.Errorf("unexpected output count %d", len(values)))
	}
	name, _ := values[0].(string)
	votes, err := toUint64(values[1])
	if err != nil {
		return nil, c.decodeFault("getWinner", err)
	}
	return &WinnerRecord{Name: name, Votes: votes}, nil
}

// view は読み取り専用メソッドを呼び出し、戻り値を復号する。
func (c *Client) view(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	values, err := c.contract.ABI.Unpack(method, out)
	if err != nil {
		return nil, c.decodeFault(method, err)
	}
	return values, nil
}

// call はeth_callで読み取り専用メソッドを呼び出す。
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	input, err := c.contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.contract.Address, Data: input}

	var out []byte
	err = c.invoke(ctx, method, func(ctx context.Context) error {
		var callErr error
		out, callErr = c.eth.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// sendTxArgs はeth_sendTransactionの引数。
type sendTxArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Gas  hexutil.Uint64  `json:"gas"`
	Data hexutil.Bytes   `json:"data"`
}

// transact は状態変更メソッドをトランザクションとして送信し、採掘を待つ。
//
//  1. eth_callで事前に実行し、revertならその理由で失敗させる
//  2. eth_sendTransactionで送信する
//  3. receiptが得られるまでポーリングする
//  4. status=0なら同じ呼び出しを採掘ブロックで再実行して理由を得る
func (c *Client) transact(ctx context.Context, from common.Address, method string, args ...interface{}) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	input, err := c.contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{
		From: from,
		To:   &c.contract.Address,
		Gas:  c.config.GasLimit,
		Data: input,
	}

	if err := c.invoke(ctx, method, func(ctx context.Context) error {
		_, callErr := c.eth.CallContract(ctx, msg, nil)
		return callErr
	}); err != nil {
		return nil, err
	}

	var hash common.Hash
	if err := c.invoke(ctx, method, func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", sendTxArgs{
			From: from,
			To:   &c.contract.Address,
			Gas:  hexutil.Uint64(c.config.GasLimit),
			Data: input,
		})
	}); err != nil {
		return nil, err
	}

	receipt, err := c.waitMined(ctx, method, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, c.replayFailure(ctx, method, msg, receipt)
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return &Receipt{TxHash: hash, BlockNumber: block}, nil
}

// waitMined はreceiptが得られるまで一定間隔でポーリングする。
func (c *Client) waitMined(ctx context.Context, method string, hash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	backoff := retry.NewConstant(c.config.ReceiptPollInterval)

	var receipt *types.Receipt
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.eth.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		fault := c.classify(ctx, method, err)
		c.config.Observer.RecordLedgerCall(method, fault.Kind.String(), time.Since(start))
		return nil, fault
	}
	return receipt, nil
}

// replayFailure は失敗したトランザクションを採掘ブロックで再実行し、revert理由を取得する。
func (c *Client) replayFailure(ctx context.Context, method string, msg ethereum.CallMsg, receipt *types.Receipt) error {
	reason := genericRevertReason
	if _, err := c.eth.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		if r, ok := revertReason(err); ok {
			reason = r
		}
	}
	c.config.Observer.RecordLedgerCall(method, FaultRuleViolation.String(), 0)
	return &Fault{Kind: FaultRuleViolation, Method: method, Reason: reason, Err: errTransactionReverted}
}

// invoke はサーキットブレーカーを通してRPC呼び出しを実行し、失敗を分類する。
func (c *Client) invoke(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		fault := c.classify(ctx, method, err)
		c.config.Observer.RecordLedgerCall(method, fault.Kind.String(), time.Since(start))
		return fault
	}
	c.config.Observer.RecordLedgerCall(method, "ok", time.Since(start))
	return nil
}

// classify はコンテキストの期限切れを優先してFaultに分類する。
// HTTPトランスポートは期限切れを独自のエラーで返すことがあるため、ctx側も確認する。
func (c *Client) classify(ctx context.Context, method string, err error) *Fault {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Fault{Kind: FaultTimeout, Method: method, Err: err}
	}
	return Classify(method, err)
}

func (c *Client) decodeFault(method string, err error) *Fault {
	return &Fault{Kind: FaultDecode, Method: method, Err: fmt.Errorf("failed to decode output: %w", err)}
}

func toUint64(v interface{}) (uint64, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected integer type %T", v)
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("integer out of range: %s", n)
	}
	return n.Uint64(), nil
}
