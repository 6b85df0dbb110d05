package util

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 去除 0/O/1/I 等易混淆字元
const orderCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const orderCodeSuffixLen = 6

// GenerateOrderCode 產生 ORD-YYYYMMDD-XXXXXX 格式的訂單編號
// 唯一性由資料庫 unique index 保證
func GenerateOrderCode(now time.Time) string {
	id := uuid.New()
	suffix := make([]byte, orderCodeSuffixLen)
	for i := range suffix {
		suffix[i] = orderCodeAlphabet[int(id[i])%len(orderCodeAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
