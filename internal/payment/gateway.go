// Package payment は決済ゲートウェイ連携と購入記録を提供する。
// ゲートウェイ注文の作成、決済コールバックの署名検証、購入の永続化を含む。
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultOrdersEndpoint はRazorpay注文作成APIのエンドポイント。
const defaultOrdersEndpoint = "https://api.razorpay.com/v1/orders"

// GatewayOrderRequest はゲートウェイへの注文作成リクエスト。
type GatewayOrderRequest struct {
	Amount      int64  // 最小通貨単位（INRならpaise）
	Currency    string
	Receipt     string
	UserID      string
	UserEmail   string
	ProductName string
}

// GatewayOrder はゲートウェイが発行した注文。
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Gateway は決済ゲートウェイのインターフェース。
type Gateway interface {
	// CreateOrder はゲートウェイに注文を作成する。
	CreateOrder(ctx context.Context, req *GatewayOrderRequest) (*GatewayOrder, error)
}

// RazorpayClient はRazorpay Orders APIのクライアント。
// keyID/keySecretによるBasic認証を使用する。
type RazorpayClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	keyID      string
	keySecret  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewRazorpayClient はRazorpayClientの新しいインスタンスを生成する。
func NewRazorpayClient(httpClient *http.Client, logger *slog.Logger, keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		httpClient: httpClient,
		logger:     logger,
		keyID:      keyID,
		keySecret:  keySecret,
		endpoint:   defaultOrdersEndpoint,
	}
}

// razorpayOrderBody はRazorpay Orders APIのリクエストボディ。
type razorpayOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

// razorpayOrderResponse はRazorpay Orders APIのレスポンス。
type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder はRazorpayに注文を作成する。
// notesにはゲートウェイダッシュボードでの突合用にユーザー情報を埋め込む。
func (c *RazorpayClient) CreateOrder(ctx context.Context, req *GatewayOrderRequest) (*GatewayOrder, error) {
	// 1. リクエストボディ構築
	body := razorpayOrderBody{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes: map[string]string{
			"userId":      req.UserID,
			"userEmail":   req.UserEmail,
			"productName": req.ProductName,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	// 2. HTTPリクエスト作成
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	// 3. HTTPリクエスト実行
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("決済ゲートウェイの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	// 4. HTTPステータスチェック
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("決済ゲートウェイがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("receipt", req.Receipt),
		)
		return nil, fmt.Errorf("決済ゲートウェイがステータス %d を返しました", resp.StatusCode)
	}

	// 5. JSONデコード
	var result razorpayOrderResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.ID == "" {
		return nil, fmt.Errorf("決済ゲートウェイのレスポンスに注文IDがありません")
	}

	return &GatewayOrder{
		ID:       result.ID,
		Amount:   result.Amount,
		Currency: result.Currency,
		Receipt:  result.Receipt,
		Status:   result.Status,
	}, nil
}

// compile-time interface check
var _ Gateway = (*RazorpayClient)(nil)
