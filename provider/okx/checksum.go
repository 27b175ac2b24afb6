package okx

import (
	"hash/crc32"
	"strings"

	"github.com/dorlov/go-bookbridge/domain"
)

// checksumDepth is the number of levels per side OKX signs.
const checksumDepth = 25

// ChecksumPayload renders the canonical string OKX computes its CRC32 over:
// the top 25 bids and asks interleaved as price:size pairs,
//
//	bid1px:bid1sz:ask1px:ask1sz:bid2px:bid2sz:...
//
// When one side has fewer than 25 levels the remaining pairs of the other
// side follow back to back. Prices and sizes keep their exact wire
// representation; decimal.String round-trips the original scale.
func ChecksumPayload(bids, asks []domain.PriceLevel) string {
	fields := make([]string, 0, 4*checksumDepth)

	for i := 0; i < checksumDepth; i++ {
		if i < len(bids) {
			fields = append(fields, bids[i].Price.String(), bids[i].Quantity.String())
		}
		if i < len(asks) {
			fields = append(fields, asks[i].Price.String(), asks[i].Quantity.String())
		}
		if i >= len(bids) && i >= len(asks) {
			break
		}
	}

	return strings.Join(fields, ":")
}

// Checksum is the CRC32 (IEEE) of the canonical top-of-book string.
func Checksum(bids, asks []domain.PriceLevel) uint32 {
	return crc32.ChecksumIEEE([]byte(ChecksumPayload(bids, asks)))
}
