package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifySignature は決済コールバックの署名を検証する。
// 署名は "注文ID|決済ID" に対するHMAC-SHA256の16進表現。
// 比較は定数時間で行う。
func verifySignature(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
