package helper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Client order tags let a fill event be routed back to its position without a
// datastore scan. Format: pe<positionID><ROLE><nonce6>, e.g. "pe1042x3fa81c".
// Alphanumeric only: most venues reject separators in client order ids.
type OrderRole string

const (
	RoleEntry OrderRole = "e"
	RoleExit  OrderRole = "x"
)

type ParsedTag struct {
	PositionID int64
	Role       OrderRole
	Raw        string
}

var tagRegex = regexp.MustCompile(`^pe(\d+)([ex])([a-f0-9]{6})$`)

// BuildOrderTag makes a fresh client order tag for a position's order.
func BuildOrderTag(positionID int64, role OrderRole) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("pe%d%s%s", positionID, role, nonce)
}

// ParseOrderTag extracts the position id from a client order tag.
// Returns nil for foreign/legacy tags — the caller falls back to order-id match.
func ParseOrderTag(tag string) *ParsedTag {
	m := tagRegex.FindStringSubmatch(strings.ToLower(tag))
	if m == nil {
		return nil
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &ParsedTag{PositionID: id, Role: OrderRole(m[2]), Raw: tag}
}
