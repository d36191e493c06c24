package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

// rayLogInit is the ray_log record type of a pool initialization.
const rayLogInit = 0

// initLogSize is type(1) + time(8) + pc_decimals(1) + coin_decimals(1) +
// pc_lot_size(8) + coin_lot_size(8) + pc_amount(8) + coin_amount(8) + market(32).
const initLogSize = 75

const initializeMarker = "Program log: initialize2"

var rayLogPattern = regexp.MustCompile(`ray_log: ([A-Za-z0-9+/=]+)`)

// InitLog is the ray_log record written when a pool is initialized.
// "pc" is the quote side and "coin" the base side.
type InitLog struct {
	OpenTime     int64
	PCDecimals   uint8
	CoinDecimals uint8
	PCLotSize    uint64
	CoinLotSize  uint64
	PCAmount     uint64
	CoinAmount   uint64
	Market       string
}

// ParseInitLog returns the first pool initialization record found in logs.
func ParseInitLog(logs []string) (*InitLog, bool) {
	for _, line := range logs {
		matches := rayLogPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(matches[1])
		if err != nil || len(data) < initLogSize || data[0] != rayLogInit {
			continue
		}
		return &InitLog{
			OpenTime:     int64(binary.LittleEndian.Uint64(data[1:])),
			PCDecimals:   data[9],
			CoinDecimals: data[10],
			PCLotSize:    binary.LittleEndian.Uint64(data[11:]),
			CoinLotSize:  binary.LittleEndian.Uint64(data[19:]),
			PCAmount:     binary.LittleEndian.Uint64(data[27:]),
			CoinAmount:   binary.LittleEndian.Uint64(data[35:]),
			Market:       base58.Encode(data[43:75]),
		}, true
	}
	return nil, false
}

// IsPoolInit reports whether transaction logs contain a pool initialization.
func IsPoolInit(logs []string) bool {
	if _, ok := ParseInitLog(logs); ok {
		return true
	}
	for _, line := range logs {
		if strings.HasPrefix(line, initializeMarker) {
			return true
		}
	}
	return false
}

// EncodeInitLog renders l as a ray_log line. Used to script logs in tests and dry runs.
func EncodeInitLog(l InitLog) (string, error) {
	market, err := base58.Decode(l.Market)
	if err != nil || len(market) != 32 {
		return "", fmt.Errorf("market %q: invalid pubkey", l.Market)
	}
	data := make([]byte, initLogSize)
	data[0] = rayLogInit
	binary.LittleEndian.PutUint64(data[1:], uint64(l.OpenTime))
	data[9] = l.PCDecimals
	data[10] = l.CoinDecimals
	binary.LittleEndian.PutUint64(data[11:], l.PCLotSize)
	binary.LittleEndian.PutUint64(data[19:], l.CoinLotSize)
	binary.LittleEndian.PutUint64(data[27:], l.PCAmount)
	binary.LittleEndian.PutUint64(data[35:], l.CoinAmount)
	copy(data[43:], market)
	return "Program log: ray_log: " + base64.StdEncoding.EncodeToString(data), nil
}
