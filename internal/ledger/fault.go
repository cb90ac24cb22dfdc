package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"

	"github.com/hitoshi/evote/internal/model"
)

// FaultKind は台帳呼び出し失敗の分類。
type FaultKind int

const (
	// FaultRuleViolation は台帳が業務ルール違反としてrevertした失敗。
	FaultRuleViolation FaultKind = iota + 1
	// FaultTimeout は呼び出しが期限内に完了しなかった失敗。
	FaultTimeout
	// FaultTransport はノードに到達できない、または応答が解釈できない失敗。
	FaultTransport
	// FaultDecode は応答は得られたが戻り値を復号できない失敗。
	FaultDecode
)

// String はメトリクスのラベル等に使う名前を返す。
func (k FaultKind) String() string {
	switch k {
	case FaultRuleViolation:
		return "rule_violation"
	case FaultTimeout:
		return "timeout"
	case FaultTransport:
		return "transport"
	case FaultDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// genericRevertReason は台帳が理由を返さなかった場合の理由文字列。
const genericRevertReason = "transaction reverted"

var errTransactionReverted = errors.New("transaction mined with failed status")

// Fault は分類済みの台帳呼び出し失敗を表す。
type Fault struct {
	Kind   FaultKind
	Method string
	Reason string // FaultRuleViolationの場合のrevert理由
	Err    error
}

// Error はerrorインターフェースを実装する。
func (f *Fault) Error() string {
	switch f.Kind {
	case FaultRuleViolation:
		return fmt.Sprintf("ledger %s reverted: %s", f.Method, f.Reason)
	default:
		return fmt.Sprintf("ledger %s %s: %v", f.Method, f.Kind, f.Err)
	}
}

// Unwrap は元のエラーを返す。
func (f *Fault) Unwrap() error {
	return f.Err
}

// AsFault はerrの連鎖からFaultを取り出す。
func AsFault(err error) (*Fault, bool) {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

// Classify はRPC呼び出しのエラーをFaultに分類する。
// 判定順はタイムアウト、サーキットブレーカー、revert、それ以外の順。
func Classify(method string, err error) *Fault {
	if fault, ok := AsFault(err); ok {
		return fault
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Fault{Kind: FaultTimeout, Method: method, Err: err}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Fault{Kind: FaultTransport, Method: method, Err: err}
	}
	if reason, ok := revertReason(err); ok {
		return &Fault{Kind: FaultRuleViolation, Method: method, Reason: reason, Err: err}
	}
	return &Fault{Kind: FaultTransport, Method: method, Err: err}
}

// revertReason はエラーからrevert理由を取り出す。
// revertでないエラーの場合はfalseを返す。
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := unpackRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	if reason, ok := reasonFromMessage(msg); ok {
		return reason, true
	}

	// geth系ノードはrevertをコード3で返す
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return genericRevertReason, true
	}
	return "", false
}

// unpackRevertData はError(string)でエンコードされたrevertデータを復号する。
func unpackRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		decoded, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = decoded
	case map[string]interface{}:
		// ganacheは {"<txhash>": {"error": "revert", "reason": "..."}} 形式で返すことがある
		for _, entry := range v {
			if m, ok := entry.(map[string]interface{}); ok {
				if reason, ok := m["reason"].(string); ok && reason != "" {
					return reason, true
				}
			}
		}
		return "", false
	default:
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}

// 長いマーカーを先に判定する
var revertMarkers = []string{
	"reverted with reason string",
	"execution reverted:",
	"VM Exception while processing transaction: revert",
}

// reasonFromMessage はノードのエラーメッセージからrevert理由を取り出す。
func reasonFromMessage(msg string) (string, bool) {
	for _, marker := range revertMarkers {
		idx := strings.Index(msg, marker)
		if idx < 0 {
			continue
		}
		reason := strings.TrimSpace(msg[idx+len(marker):])
		reason = strings.Trim(reason, "'\"")
		if reason == "" {
			return genericRevertReason, true
		}
		return reason, true
	}
	if strings.Contains(msg, "execution reverted") {
		return genericRevertReason, true
	}
	return "", false
}

// Normalize は台帳のFaultを呼び出し元向けのAPIErrorに変換する。
// Faultでないエラーはそのまま返す。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	fault, ok := AsFault(err)
	if !ok {
		return err
	}
	switch fault.Kind {
	case FaultRuleViolation:
		reason := fault.Reason
		if reason == "" {
			reason = genericRevertReason
		}
		return model.NewLedgerRuleViolationError(reason)
	case FaultTimeout:
		return model.NewLedgerTimeoutError()
	default:
		return model.NewLedgerUnavailableError()
	}
}
