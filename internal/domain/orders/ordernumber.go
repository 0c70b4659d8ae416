package orders

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/speps/go-hashids/v2"
)

// MaxOrderIDLen is the gateway's hard limit on order identifiers.
const MaxOrderIDLen = 21

const orderIDPrefix = "ORD"

// OrderIDGenerator mints gateway-safe order ids: "ORD" plus a hashid of the
// creation time and a random nonce, truncated to the 21-char limit.
type OrderIDGenerator struct {
	h *hashids.HashID
}

func NewOrderIDGenerator() (*OrderIDGenerator, error) {
	data := hashids.NewData()
	data.Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	data.MinLength = 8
	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, err
	}
	return &OrderIDGenerator{h: h}, nil
}

func (g *OrderIDGenerator) Generate() string {
	nonce := uuid.New()
	tag, err := g.h.EncodeInt64([]int64{
		time.Now().UnixMilli(),
		int64(binary.BigEndian.Uint32(nonce[:4])),
	})
	if err != nil {
		// EncodeInt64 only fails on negative inputs; fall back to the nonce.
		tag = strings.ReplaceAll(nonce.String(), "-", "")
	}
	return NormalizeOrderID(orderIDPrefix + tag)
}

// NormalizeOrderID trims surrounding whitespace and enforces the gateway's
// length limit on caller-supplied ids.
func NormalizeOrderID(orderID string) string {
	orderID = strings.TrimSpace(orderID)
	if len(orderID) > MaxOrderIDLen {
		orderID = orderID[:MaxOrderIDLen]
	}
	return orderID
}
