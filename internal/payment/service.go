package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liveeazy/backend/internal/metrics"
	"github.com/liveeazy/backend/internal/model"
	"github.com/liveeazy/backend/internal/notification"
	"github.com/liveeazy/backend/internal/repository"
	"github.com/liveeazy/backend/internal/security"
)

// defaultCurrency は通貨未指定時に使用する通貨コード。
const defaultCurrency = "INR"

// defaultProductName は商品名未指定時に使用する商品名。
const defaultProductName = "LiveEazy"

// notifyTimeout は購入通知メール送信の打ち切り時間。
const notifyTimeout = 30 * time.Second

// Service は注文作成・決済検証・購入照会のビジネスロジックを提供する。
type Service struct {
	gateway   Gateway
	userRepo  repository.UserRepository
	orderRepo repository.OrderRepository
	notifier  notification.Notifier
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	keySecret string
}

// NewService はServiceを生成する。
// keySecretは決済コールバックの署名検証に使用するゲートウェイのシークレット。
func NewService(
	gateway Gateway,
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	notifier notification.Notifier,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	keySecret string,
) *Service {
	return &Service{
		gateway:   gateway,
		userRepo:  userRepo,
		orderRepo: orderRepo,
		notifier:  notifier,
		sanitizer: sanitizer,
		metrics:   collector,
		keySecret: keySecret,
	}
}

// CreateOrder はゲートウェイに注文を作成し、ローカルにstatus=createdで記録する。
// 金額は最小通貨単位の正の整数。通貨・商品名の未指定時は既定値を使用する。
func (s *Service) CreateOrder(ctx context.Context, session *model.Session, amount int64, currency, productName string) (*model.Order, error) {
	// 1. 入力検証
	if amount <= 0 {
		return nil, model.NewInvalidAmountError(amount)
	}
	if currency == "" {
		currency = defaultCurrency
	}
	productName = s.sanitizer.Sanitize(productName)
	if productName == "" {
		productName = defaultProductName
	}

	// 2. ユーザーの存在確認
	user, err := s.userRepo.FindByID(ctx, session.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	// 3. ゲートウェイに注文を作成
	receipt := generateReceipt()
	gatewayOrder, err := s.gateway.CreateOrder(ctx, &GatewayOrderRequest{
		Amount:      amount,
		Currency:    currency,
		Receipt:     receipt,
		UserID:      user.ID,
		UserEmail:   user.Email,
		ProductName: productName,
	})
	if err != nil {
		slog.Error("gateway order creation failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewOrderCreationFailedError()
	}

	// 4. ローカルに注文レコードを作成
	order := &model.Order{
		ID:          gatewayOrder.ID,
		UserID:      user.ID,
		Amount:      gatewayOrder.Amount,
		Currency:    gatewayOrder.Currency,
		ProductName: productName,
		Receipt:     receipt,
		Status:      model.OrderStatusCreated,
		CreatedAt:   time.Now(),
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		// ゲートウェイ側には注文が存在するがローカルには無い状態。
		// 突合用にゲートウェイ注文IDをログに残し、メトリクスで監視する。
		slog.Error("local order persist failed after gateway creation",
			slog.String("gateway_order_id", gatewayOrder.ID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordOrderPersistFailure()
		return nil, model.NewPersistenceError()
	}

	s.metrics.RecordOrderCreated()
	slog.Info("order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", user.ID),
		slog.Int64("amount", order.Amount),
	)

	return order, nil
}

// VerifyPayment は決済コールバックの署名を検証し、注文を完了させて購入を記録する。
// 署名が不一致の場合は一切の状態変更を行わない。
// 同一注文への再検証は冪等で、既存の購入記録を返す。
func (s *Service) VerifyPayment(ctx context.Context, session *model.Session, orderID, paymentID, signature string) (*model.Purchase, error) {
	// 1. 入力検証
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, model.NewBadRequestError("orderID, paymentID, signatureは必須です")
	}

	// 2. 署名検証（状態変更より先に行う）
	if !verifySignature(s.keySecret, orderID, paymentID, signature) {
		slog.Warn("payment signature mismatch",
			slog.String("order_id", orderID),
			slog.String("user_id", session.SubjectID),
		)
		s.metrics.RecordPaymentVerifyFailure("signature")
		return nil, model.NewInvalidSignatureError()
	}

	// 3. 注文の取得
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if order == nil {
		s.metrics.RecordPaymentVerifyFailure("order_not_found")
		return nil, model.NewOrderNotFoundError(orderID)
	}

	// 4. 所有者チェック
	if order.UserID != session.SubjectID {
		slog.Warn("payment verification for another user's order",
			slog.String("order_id", orderID),
			slog.String("order_user_id", order.UserID),
			slog.String("session_user_id", session.SubjectID),
		)
		s.metrics.RecordPaymentVerifyFailure("ownership")
		return nil, model.NewForbiddenOrderError()
	}

	// 5. 注文をcompletedに遷移（条件付きUPDATE）
	transitioned, err := s.orderRepo.Complete(ctx, orderID, paymentID, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to complete order: %w", err)
	}
	if !transitioned {
		// 既にcompleted: 再検証なので既存の購入記録を返す
		existing, err := s.userRepo.FindPurchaseByOrderID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to find existing purchase: %w", err)
		}
		if existing != nil {
			slog.Info("payment already verified", slog.String("order_id", orderID))
			return existing, nil
		}
		// 完了済みだが購入記録が無い（前回の追記失敗）: 追記をやり直す
	}

	// 6. 購入事実を追記
	purchase := &model.Purchase{
		ID:           uuid.New().String(),
		UserID:       order.UserID,
		OrderID:      order.ID,
		ProductName:  order.ProductName,
		Amount:       order.Amount,
		Currency:     order.Currency,
		PurchaseDate: time.Now(),
	}
	if err := s.userRepo.AppendPurchase(ctx, purchase); err != nil {
		if errors.Is(err, model.ErrPurchaseExists) {
			existing, findErr := s.userRepo.FindPurchaseByOrderID(ctx, orderID)
			if findErr == nil && existing != nil {
				return existing, nil
			}
			return nil, fmt.Errorf("failed to load recorded purchase: %w", err)
		}
		// 決済自体は検証済みのため、記録失敗は監視対象として残す
		slog.Error("purchase append failed after verification",
			slog.String("order_id", orderID),
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordPurchaseAppendFailure()
		return nil, model.NewPersistenceError()
	}

	s.metrics.RecordPaymentVerified()
	slog.Info("payment verified",
		slog.String("order_id", orderID),
		slog.String("payment_id", paymentID),
		slog.String("user_id", order.UserID),
	)

	// 7. 購入通知メール（送信失敗は決済結果に影響させない）
	s.notifyAsync(purchase)

	return purchase, nil
}

// GetPurchaseStatus はユーザーの購入有無と最新の購入を返す。
func (s *Service) GetPurchaseStatus(ctx context.Context, userID string) (bool, *model.Purchase, error) {
	last, err := s.userRepo.LastPayment(ctx, userID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get purchase status: %w", err)
	}
	return last != nil, last, nil
}

// ListPurchases はユーザーの購入一覧を購入日時の昇順（追記順）で返す。
func (s *Service) ListPurchases(ctx context.Context, userID string) ([]model.Purchase, error) {
	purchases, err := s.userRepo.ListPurchases(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// GetPaymentHistory はユーザーの注文履歴を新しい順に最大limit件返す。
// 決済が完了しなかった注文（status=created）も含む。
func (s *Service) GetPaymentHistory(ctx context.Context, userID string, limit int) ([]model.Order, error) {
	orders, err := s.orderRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// notifyAsync は購入通知メールを非同期に送信する。
// リクエストのcontextに縛られないよう独立したcontextを使う。
func (s *Service) notifyAsync(purchase *model.Purchase) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		user, err := s.userRepo.FindByID(ctx, purchase.UserID)
		if err != nil || user == nil {
			slog.Error("failed to load user for purchase notification",
				slog.String("order_id", purchase.OrderID),
			)
			s.metrics.RecordNotificationFailure()
			return
		}

		if err := s.notifier.NotifyPurchase(ctx, purchase, user.Email, user.Name); err != nil {
			slog.Error("purchase notification failed",
				slog.String("order_id", purchase.OrderID),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordNotificationFailure()
		}
	}()
}

// generateReceipt は注文のレシート識別子を生成する。
// 形式: rcpt_<unixミリ秒>_<UUID先頭8文字>
func generateReceipt() string {
	short := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("rcpt_%d_%s", time.Now().UnixMilli(), short)
}
